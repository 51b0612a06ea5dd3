package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/game/party"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PartyHandler handles party REST endpoints. Every route acts as the
// request's active character.
type PartyHandler struct {
	db     *gorm.DB
	svc    *party.Service
	logger *zap.Logger
}

// NewPartyHandler creates a new PartyHandler.
func NewPartyHandler(db *gorm.DB, svc *party.Service, logger *zap.Logger) *PartyHandler {
	return &PartyHandler{db: db, svc: svc, logger: logger}
}

type inviteRequest struct {
	// Target is a character id, character name or account username.
	Target string `json:"target" binding:"required,max=32"`
}

type memberRequest struct {
	CharID int64 `json:"char_id" binding:"required,min=1"`
}

func (h *PartyHandler) do(c *gin.Context, status int, fn func(charID int64) (*party.View, error)) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	v, err := fn(ch.ID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(status, gin.H{"party": v})
}

// Create handles POST /api/party.
func (h *PartyHandler) Create(c *gin.Context) {
	h.do(c, http.StatusCreated, func(charID int64) (*party.View, error) {
		return h.svc.Create(c.Request.Context(), charID)
	})
}

// My handles GET /api/party/my.
func (h *PartyHandler) My(c *gin.Context) {
	h.do(c, http.StatusOK, func(charID int64) (*party.View, error) {
		return h.svc.Mine(c.Request.Context(), charID)
	})
}

// Invite handles POST /api/party/invite.
func (h *PartyHandler) Invite(c *gin.Context) {
	var req inviteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.do(c, http.StatusOK, func(charID int64) (*party.View, error) {
		return h.svc.Invite(c.Request.Context(), charID, req.Target)
	})
}

// Leave handles POST /api/party/leave. The response party is null when the
// caller's departure disbanded it.
func (h *PartyHandler) Leave(c *gin.Context) {
	h.do(c, http.StatusOK, func(charID int64) (*party.View, error) {
		return h.svc.Leave(c.Request.Context(), charID)
	})
}

// Kick handles POST /api/party/kick.
func (h *PartyHandler) Kick(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.do(c, http.StatusOK, func(charID int64) (*party.View, error) {
		return h.svc.Kick(c.Request.Context(), charID, req.CharID)
	})
}

// Transfer handles POST /api/party/transfer.
func (h *PartyHandler) Transfer(c *gin.Context) {
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.do(c, http.StatusOK, func(charID int64) (*party.View, error) {
		return h.svc.Transfer(c.Request.Context(), charID, req.CharID)
	})
}

// Settings handles PUT /api/party/settings.
func (h *PartyHandler) Settings(c *gin.Context) {
	var req party.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.do(c, http.StatusOK, func(charID int64) (*party.View, error) {
		return h.svc.UpdateSettings(c.Request.Context(), charID, req)
	})
}

// Disband handles POST /api/party/disband.
func (h *PartyHandler) Disband(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	if err := h.svc.Disband(c.Request.Context(), ch.ID); err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "party disbanded"})
}
