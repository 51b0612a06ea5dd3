package rest_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func eventBody(name, typ string, mult float64, from, to time.Duration) map[string]any {
	now := time.Now().UTC()
	return map[string]any{
		"name":             name,
		"description":      name,
		"event_type":       typ,
		"start_time":       now.Add(from),
		"end_time":         now.Add(to),
		"bonus_multiplier": mult,
	}
}

func TestEvents_AdminCreateAnnouncesRunning(t *testing.T) {
	s := newServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ch, unsub, err := s.ps.Subscribe(ctx, events.AnnounceChannel)
	require.NoError(t, err)
	defer unsub()

	body := eventBody("Double EXP", "exp_boost", 2, -time.Minute, time.Hour)
	w := s.do(http.MethodPost, "/api/admin/events", body, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code, "admin key required")

	w = s.do(http.MethodPost, "/api/admin/events", body, "", adminKey()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)["event"].(map[string]any)
	assert.Equal(t, true, created["is_active"])
	assert.Equal(t, []string{audit.ActionEventCreate}, s.audit.Actions())

	select {
	case msg := <-ch:
		var ev events.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ev))
		assert.JSONEq(t, `{"message":"Event started: Double EXP"}`, string(ev.Data))
	case <-ctx.Done():
		t.Fatal("running event not announced")
	}

	w = s.do(http.MethodPost, "/api/admin/events", eventBody("Bad", "exp_boost", 20, 0, time.Hour), "", adminKey()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestEvents_ActiveUpcomingAndGet(t *testing.T) {
	s := newServer(t)
	p := s.newPlayer(t, "eventfan")

	for _, b := range []map[string]any{
		eventBody("Now", "gold_boost", 1.5, -time.Hour, time.Hour),
		eventBody("Tomorrow", "exp_boost", 2, 24*time.Hour, 48*time.Hour),
	} {
		w := s.do(http.MethodPost, "/api/admin/events", b, "", adminKey()...)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := s.do(http.MethodGet, "/api/events/active", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/events/active", nil, p.token)
	require.Equal(t, http.StatusOK, w.Code)
	active := decode(t, w)["events"].([]any)
	require.Len(t, active, 1)
	now := active[0].(map[string]any)
	assert.Equal(t, "Now", now["name"])

	w = s.do(http.MethodGet, "/api/events/upcoming", nil, p.token)
	require.Equal(t, http.StatusOK, w.Code)
	upcoming := decode(t, w)["events"].([]any)
	require.Len(t, upcoming, 1)
	assert.Equal(t, "Tomorrow", upcoming[0].(map[string]any)["name"])

	w = s.do(http.MethodGet, fmt.Sprintf("/api/events/%v", now["id"]), nil, p.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "gold_boost", decode(t, w)["event_type"])

	w = s.do(http.MethodGet, "/api/events/9999", nil, p.token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvents_BonusesForActiveCharacter(t *testing.T) {
	s := newServer(t)
	p := s.newPlayer(t, "booster")

	zoned := eventBody("Far gold", "gold_boost", 3, -time.Hour, time.Hour)
	zoned["target_zones"] = []int{7}
	for _, b := range []map[string]any{eventBody("Exp", "exp_boost", 2, -time.Hour, time.Hour), zoned} {
		w := s.do(http.MethodPost, "/api/admin/events", b, "", adminKey()...)
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := s.do(http.MethodGet, "/api/events/bonuses", nil, p.token, p.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	b := decode(t, w)
	assert.Equal(t, 2.0, b["exp_bonus"])
	assert.Equal(t, 1.0, b["gold_bonus"], "starting zone is outside the gold event")
	assert.Len(t, b["active_events"], 2)

	w = s.do(http.MethodGet, "/api/events/bonuses?zone=7&level=3", nil, p.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 3.0, decode(t, w)["gold_bonus"])
}

func TestEvents_AdminUpdateAndDelete(t *testing.T) {
	s := newServer(t)
	p := s.newPlayer(t, "watcher")

	w := s.do(http.MethodPost, "/api/admin/events", eventBody("Arena", "pvp_arena", 1, time.Hour, 2*time.Hour), "", adminKey()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	path := fmt.Sprintf("/api/admin/events/%v", decode(t, w)["event"].(map[string]any)["id"])

	w = s.do(http.MethodPut, path, map[string]any{"is_active": false}, "", adminKey()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, false, decode(t, w)["event"].(map[string]any)["is_active"])

	w = s.do(http.MethodGet, "/api/events/upcoming", nil, p.token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode(t, w)["events"], "disabled events are hidden")

	w = s.do(http.MethodPut, path, map[string]any{"bonus_multiplier": 0.2}, "", adminKey()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodDelete, path, nil, "", adminKey()...)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodDelete, path, nil, "", adminKey()...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, []string{audit.ActionEventCreate, audit.ActionEventUpdate, audit.ActionEventDelete}, s.audit.Actions())
}
