package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/game/dailyquest"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// DailyQuestHandler handles daily quest REST endpoints. Progress is kept per
// account; rewards go to the request's active character.
type DailyQuestHandler struct {
	db     *gorm.DB
	svc    *dailyquest.Service
	logger *zap.Logger
}

// NewDailyQuestHandler creates a DailyQuestHandler.
func NewDailyQuestHandler(db *gorm.DB, svc *dailyquest.Service, logger *zap.Logger) *DailyQuestHandler {
	return &DailyQuestHandler{db: db, svc: svc, logger: logger}
}

type questUpdateRequest struct {
	Type   string `json:"type"   binding:"required"`
	Amount int    `json:"amount"`
}

// optionalCharacter returns the active character id, or 0 when the account
// has none yet.
func (h *DailyQuestHandler) optionalCharacter(c *gin.Context) (int64, bool) {
	ch, err := activeCharacter(c, h.db)
	if err == errNoCharacter && c.GetHeader(CharacterHeader) == "" && c.Query("char_id") == "" {
		return 0, true
	}
	if err != nil {
		respondErr(c, h.logger, err)
		return 0, false
	}
	return ch.ID, true
}

// Progress handles GET /api/dailyQuest/progress.
func (h *DailyQuestHandler) Progress(c *gin.Context) {
	charID, ok := h.optionalCharacter(c)
	if !ok {
		return
	}
	v, err := h.svc.Progress(c.Request.Context(), mw.GetAccountID(c), charID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Update handles POST /api/dailyQuest/update.
func (h *DailyQuestHandler) Update(c *gin.Context) {
	var req questUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Amount == 0 {
		req.Amount = 1
	}
	v, err := h.svc.Update(c.Request.Context(), mw.GetAccountID(c), req.Type, req.Amount)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

// Claim handles POST /api/dailyQuest/claim/:questId.
func (h *DailyQuestHandler) Claim(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	res, err := h.svc.Claim(c.Request.Context(), mw.GetAccountID(c), ch.ID, c.Param("questId"))
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ClaimBonus handles POST /api/dailyQuest/claim-bonus.
func (h *DailyQuestHandler) ClaimBonus(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	res, err := h.svc.ClaimBonus(c.Request.Context(), mw.GetAccountID(c), ch.ID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
