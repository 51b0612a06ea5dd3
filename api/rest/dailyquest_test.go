package rest_test

import (
	"net/http"
	"testing"

	"github.com/kasuganosora/kadim/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDailyQuest_ProgressWithoutCharacter(t *testing.T) {
	s := newServer(t)
	p := s.register(t, "alice")

	w := s.do(http.MethodGet, "/api/dailyQuest/progress", nil, p.token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	day := decode(t, w)
	assert.Len(t, day["quests"], 5)
	assert.Equal(t, false, day["all_completed"])

	w = s.do(http.MethodGet, "/api/dailyQuest/progress", nil, p.token, "X-Character-ID", "99")
	assert.Equal(t, http.StatusNotFound, w.Code, "explicit character must exist")
}

func TestDailyQuest_UpdateAndClaim(t *testing.T) {
	s := newServer(t)
	p := s.newPlayer(t, "alice")

	w := s.do(http.MethodGet, "/api/dailyQuest/progress", nil, p.token, p.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	quests := decode(t, w)["quests"].([]any)
	require.NotEmpty(t, quests)
	first := quests[0].(map[string]any)
	questID := first["quest_id"].(string)

	w = s.do(http.MethodPost, "/api/dailyQuest/claim/"+questID, nil, p.token, p.header()...)
	assert.Equal(t, http.StatusBadRequest, w.Code, "not completed yet")

	w = s.do(http.MethodPost, "/api/dailyQuest/update", map[string]any{"type": "dance"}, p.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	for _, q := range quests {
		qq := q.(map[string]any)
		w = s.do(http.MethodPost, "/api/dailyQuest/update", map[string]any{
			"type": qq["type"], "amount": qq["target"],
		}, p.token)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	assert.Equal(t, true, decode(t, w)["all_completed"])

	reward := first["reward"].(map[string]any)
	w = s.do(http.MethodPost, "/api/dailyQuest/claim/"+questID, nil, p.token, p.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode(t, w)
	assert.Equal(t, float64(model.StartingGold)+reward["gold"].(float64), res["char_gold"])

	w = s.do(http.MethodPost, "/api/dailyQuest/claim/"+questID, nil, p.token, p.header()...)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = s.do(http.MethodPost, "/api/dailyQuest/claim/no_such_quest", nil, p.token, p.header()...)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(http.MethodPost, "/api/dailyQuest/claim-bonus", nil, p.token, p.header()...)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, float64(25), decode(t, w)["total_gems"].(float64)-rewardGems(quests[:1]))
	w = s.do(http.MethodPost, "/api/dailyQuest/claim-bonus", nil, p.token, p.header()...)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDailyQuest_TrackedBySendMail(t *testing.T) {
	s := newServer(t)
	a := s.newPlayer(t, "alice")
	s.newPlayer(t, "bobby")

	w := s.do(http.MethodPost, "/api/mail/send", map[string]any{
		"recipient": "bobby", "subject": "hi", "message": "hello",
	}, a.token, a.header()...)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/api/dailyQuest/progress", nil, a.token, a.header()...)
	require.Equal(t, http.StatusOK, w.Code)
	for _, q := range decode(t, w)["quests"].([]any) {
		qq := q.(map[string]any)
		if qq["type"] == "send_mail" {
			assert.Equal(t, true, qq["completed"])
		}
	}
}

func rewardGems(quests []any) float64 {
	var n float64
	for _, q := range quests {
		n += q.(map[string]any)["reward"].(map[string]any)["gems"].(float64)
	}
	return n
}
