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

func tradePath(id int64, suffix string) string {
	return fmt.Sprintf("/api/trade/%d%s", id, suffix)
}

func tradeOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	tr, ok := body["trade"].(map[string]any)
	require.True(t, ok, "trade missing: %v", body)
	return tr
}

func (s *server) openTrade(t *testing.T, a, b player) int64 {
	t.Helper()
	w := s.do(http.MethodPost, "/api/trade/request", map[string]any{"target_id": b.charID}, a.token, a.header()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(tradeOf(t, decode(t, w))["id"].(float64))
}

func TestTrade_Complete(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	b := s.newPlayer(t, "bobby")
	sword := testutil.GiveItem(t, s.db, b.charID, model.KindWeapon, "sword", 1)
	id := s.openTrade(t, a, b)

	w := s.do(http.MethodPost, tradePath(id, "/gold"), map[string]any{"amount": 100}, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodPost, tradePath(id, "/items"), map[string]any{"inventory_id": sword.ID}, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tr := tradeOf(t, decode(t, w))
	assert.Len(t, tr["offers"], 1)
	version := int64(tr["version"].(float64))

	w = s.do(http.MethodPost, tradePath(id, "/confirm"), map[string]any{"version": version}, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tr = tradeOf(t, decode(t, w))
	assert.Equal(t, "PENDING", tr["status"])
	assert.Equal(t, true, tr["initiator_confirmed"])

	w = s.do(http.MethodPost, tradePath(id, "/confirm"), nil, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "COMPLETED", tradeOf(t, decode(t, w))["status"])

	assert.Equal(t, int64(model.StartingGold-100), testutil.Reload[model.Character](t, s.db, a.charID).Gold)
	assert.Equal(t, int64(model.StartingGold+100), testutil.Reload[model.Character](t, s.db, b.charID).Gold)
	moved := testutil.Reload[model.InventoryItem](t, s.db, sword.ID)
	assert.Equal(t, a.charID, moved.CharID)

	w = s.do(http.MethodPost, tradePath(id, "/cancel"), nil, a.token, a.header()...)
	assert.Equal(t, http.StatusConflict, w.Code, "completed trades are closed")
}

func TestTrade_ChangeResetsConfirmation(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	b := s.newPlayer(t, "bobby")
	id := s.openTrade(t, a, b)

	w := s.do(http.MethodPost, tradePath(id, "/confirm"), nil, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	stale := int64(tradeOf(t, decode(t, w))["version"].(float64))

	w = s.do(http.MethodPost, tradePath(id, "/gold"), map[string]any{"amount": 50}, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, tradeOf(t, decode(t, w))["initiator_confirmed"])

	w = s.do(http.MethodPost, tradePath(id, "/confirm"), map[string]any{"version": stale}, a.token, a.header()...)
	assert.Equal(t, http.StatusConflict, w.Code, "offer changed since review")
}

func TestTrade_Rejections(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	b := s.newPlayer(t, "bobby")
	c := s.newPlayer(t, "carol")

	w := s.do(http.MethodPost, "/api/trade/request", map[string]any{"target_id": a.charID}, a.token, a.header()...)
	assert.Equal(t, http.StatusBadRequest, w.Code, "self trade")

	id := s.openTrade(t, a, b)
	w = s.do(http.MethodPost, "/api/trade/request", map[string]any{"target_id": b.charID}, c.token, c.header()...)
	assert.Equal(t, http.StatusConflict, w.Code, "target busy")

	w = s.do(http.MethodGet, tradePath(id, ""), nil, c.token, c.header()...)
	assert.Equal(t, http.StatusNotFound, w.Code, "outsiders cannot see the trade")

	w = s.do(http.MethodPost, tradePath(id, "/gold"), map[string]any{"amount": 999999}, a.token, a.header()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPost, tradePath(id, "/gold"), map[string]any{}, a.token, a.header()...)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/trade/my", nil, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["trades"], 1)

	w = s.do(http.MethodPost, tradePath(id, "/cancel"), nil, b.token, b.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "CANCELLED", tradeOf(t, decode(t, w))["status"])
}
