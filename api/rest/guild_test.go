package rest_test

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/kasuganosora/kadim/server/model"
	"github.com/kasuganosora/kadim/server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func guildPath(id int64, suffix string) string {
	return fmt.Sprintf("/api/guild/%d%s", id, suffix)
}

// createGuild founds a guild led by p and returns its id.
func (s *server) createGuild(t *testing.T, p player, name, tag string) int64 {
	t.Helper()
	w := s.do(http.MethodPost, "/api/guild", map[string]string{"name": name, "tag": tag}, p.token, p.header()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["guild"].(map[string]any)["id"].(float64))
}

func roleOf(t *testing.T, body map[string]any, charID int64) string {
	t.Helper()
	for _, m := range body["guild"].(map[string]any)["members"].([]any) {
		mm := m.(map[string]any)
		if int64(mm["char_id"].(float64)) == charID {
			return mm["role"].(string)
		}
	}
	return ""
}

func TestGuild_CreateAndJoin(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	b := s.newPlayer(t, "bobby")
	id := s.createGuild(t, a, "Knights", "KNT")

	w := s.do(http.MethodPost, "/api/guild", map[string]string{"name": "Knights", "tag": "OTHER"}, b.token, b.header()...)
	assert.Equal(t, http.StatusConflict, w.Code, "name taken")

	w = s.do(http.MethodPost, guildPath(id, "/join"), nil, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, float64(2), body["guild"].(map[string]any)["member_count"])
	assert.Equal(t, "MEMBER", roleOf(t, body, b.charID))

	w = s.do(http.MethodGet, "/api/guild/my", nil, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, guildPath(id, ""), nil, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "KNT", decode(t, w)["guild"].(map[string]any)["tag"])

	w = s.do(http.MethodPost, "/api/guild/leave", nil, a.token, a.header()...)
	assert.Equal(t, http.StatusConflict, w.Code, "leader cannot leave")

	w = s.do(http.MethodPost, "/api/guild/leave", nil, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, "/api/guild/my", nil, b.token, b.header()...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGuild_Ranks(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	b := s.newPlayer(t, "bobby")
	c := s.newPlayer(t, "carol")
	id := s.createGuild(t, a, "Knights", "KNT")
	for _, p := range []player{b, c} {
		require.Equal(t, http.StatusOK, s.do(http.MethodPost, guildPath(id, "/join"), nil, p.token, p.header()...).Code)
	}

	w := s.do(http.MethodPost, guildPath(id, "/promote"), map[string]any{"char_id": b.charID}, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "OFFICER", roleOf(t, decode(t, w), b.charID))

	w = s.do(http.MethodPost, guildPath(id, "/demote"), map[string]any{"char_id": a.charID}, b.token, b.header()...)
	assert.Equal(t, http.StatusForbidden, w.Code, "officer cannot demote the leader")

	w = s.do(http.MethodPost, guildPath(id, "/promote"), map[string]any{"char_id": c.charID}, b.token, b.header()...)
	assert.Equal(t, http.StatusForbidden, w.Code, "officer cannot make a peer")

	w = s.do(http.MethodPost, guildPath(id, "/kick"), map[string]any{"char_id": c.charID}, b.token, b.header()...)
	assert.Equal(t, http.StatusForbidden, w.Code, "officers cannot kick")
	w = s.do(http.MethodPost, guildPath(id, "/kick"), map[string]any{"char_id": c.charID}, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "", roleOf(t, decode(t, w), c.charID))

	w = s.do(http.MethodPost, guildPath(id, "/demote"), map[string]any{"char_id": b.charID}, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "MEMBER", roleOf(t, decode(t, w), b.charID))

	w = s.do(http.MethodPost, guildPath(id, "/transfer"), map[string]any{"char_id": b.charID}, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "LEADER", roleOf(t, body, b.charID))
	assert.Equal(t, "VICE_LEADER", roleOf(t, body, a.charID))

	w = s.do(http.MethodPost, guildPath(id, "/promote"), map[string]any{"char_id": b.charID}, b.token, b.header()...)
	assert.Equal(t, http.StatusBadRequest, w.Code, "self target")
}

func TestGuild_AnnouncementAndDonate(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	b := s.newPlayer(t, "bobby")
	id := s.createGuild(t, a, "Knights", "KNT")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, guildPath(id, "/join"), nil, b.token, b.header()...).Code)

	w := s.do(http.MethodPut, guildPath(id, "/announcement"), map[string]string{"announcement": "raid at nine"}, b.token, b.header()...)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = s.do(http.MethodPut, guildPath(id, "/announcement"), map[string]string{"announcement": "raid at nine"}, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "raid at nine", decode(t, w)["guild"].(map[string]any)["announcement"])

	w = s.do(http.MethodPost, guildPath(id, "/donate"), map[string]any{"amount": 500}, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, float64(500), res["contribution"])
	assert.Equal(t, float64(model.StartingGold-500), res["char_gold"])
	assert.Equal(t, float64(500), res["guild"].(map[string]any)["gold"])

	w = s.do(http.MethodPost, guildPath(id, "/donate"), map[string]any{"amount": 100000}, b.token, b.header()...)
	assert.Equal(t, http.StatusBadRequest, w.Code, "not enough gold")
	w = s.do(http.MethodPost, guildPath(id, "/donate"), map[string]any{"amount": 0}, b.token, b.header()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, int64(model.StartingGold-500), testutil.Reload[model.Character](t, s.db, b.charID).Gold)
}

func TestGuild_Storage(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	b := s.newPlayer(t, "bobby")
	id := s.createGuild(t, a, "Knights", "KNT")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, guildPath(id, "/join"), nil, b.token, b.header()...).Code)
	ore := testutil.GiveItem(t, s.db, b.charID, model.KindMaterial, "ore", 10)

	w := s.do(http.MethodPost, guildPath(id, "/storage/deposit"), map[string]any{"inventory_id": ore.ID, "qty": 4}, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	storageID := int64(decode(t, w)["item"].(map[string]any)["id"].(float64))
	assert.Equal(t, 6, testutil.Reload[model.InventoryItem](t, s.db, ore.ID).Qty)

	w = s.do(http.MethodGet, guildPath(id, "/storage"), nil, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["items"], 1)

	w = s.do(http.MethodPost, guildPath(id, "/storage/withdraw"), map[string]any{"storage_id": storageID, "qty": 1}, b.token, b.header()...)
	assert.Equal(t, http.StatusForbidden, w.Code, "members cannot withdraw")

	w = s.do(http.MethodPost, guildPath(id, "/storage/withdraw"), map[string]any{"storage_id": storageID, "qty": 4}, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	item := decode(t, w)["item"].(map[string]any)
	assert.Equal(t, float64(a.charID), item["char_id"])
	assert.Equal(t, float64(4), item["qty"])

	w = s.do(http.MethodGet, guildPath(id, "/storage"), nil, a.token, a.header()...)
	assert.Empty(t, decode(t, w)["items"])
}

func TestGuild_Disband(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	b := s.newPlayer(t, "bobby")
	id := s.createGuild(t, a, "Knights", "KNT")
	require.Equal(t, http.StatusOK, s.do(http.MethodPost, guildPath(id, "/join"), nil, b.token, b.header()...).Code)

	w := s.do(http.MethodPost, guildPath(id, "/disband"), nil, b.token, b.header()...)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, guildPath(id, "/disband"), nil, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodGet, guildPath(id, ""), nil, a.token, a.header()...)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = s.do(http.MethodGet, "/api/guild/my", nil, b.token, b.header()...)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
