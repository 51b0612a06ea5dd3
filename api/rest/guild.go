package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/game/guild"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// GuildHandler handles guild REST endpoints.
type GuildHandler struct {
	db     *gorm.DB
	svc    *guild.Service
	logger *zap.Logger
}

// NewGuildHandler creates a new GuildHandler.
func NewGuildHandler(db *gorm.DB, svc *guild.Service, logger *zap.Logger) *GuildHandler {
	return &GuildHandler{db: db, svc: svc, logger: logger}
}

type createGuildRequest struct {
	Name string `json:"name" binding:"required,min=3,max=20"`
	Tag  string `json:"tag"  binding:"required,min=2,max=5"`
}

type announcementRequest struct {
	Announcement string `json:"announcement" binding:"max=500"`
}

type donateRequest struct {
	Amount int64 `json:"amount" binding:"required,min=1"`
}

type depositRequest struct {
	InventoryID int64 `json:"inventory_id" binding:"required,min=1"`
	Qty         int   `json:"qty"          binding:"omitempty,min=1"`
}

type withdrawRequest struct {
	StorageID int64 `json:"storage_id" binding:"required,min=1"`
	Qty       int   `json:"qty"        binding:"omitempty,min=1"`
}

// member resolves the active character and the :id guild of a request.
func (h *GuildHandler) member(c *gin.Context) (charID, guildID int64, ok bool) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return 0, 0, false
	}
	guildID, err = paramID(c, "id")
	if err != nil {
		respondErr(c, h.logger, err)
		return 0, 0, false
	}
	return ch.ID, guildID, true
}

func (h *GuildHandler) reply(c *gin.Context, status int, v *guild.View, err error) {
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(status, gin.H{"guild": v})
}

// Create handles POST /api/guild.
func (h *GuildHandler) Create(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var req createGuildRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := h.svc.Create(c.Request.Context(), ch.ID, req.Name, req.Tag)
	h.reply(c, http.StatusCreated, v, err)
}

// My handles GET /api/guild/my.
func (h *GuildHandler) My(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	v, err := h.svc.Mine(c.Request.Context(), ch.ID)
	h.reply(c, http.StatusOK, v, err)
}

// Detail handles GET /api/guild/:id.
func (h *GuildHandler) Detail(c *gin.Context) {
	guildID, err := paramID(c, "id")
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	v, err := h.svc.Get(c.Request.Context(), guildID)
	h.reply(c, http.StatusOK, v, err)
}

// Join handles POST /api/guild/:id/join.
func (h *GuildHandler) Join(c *gin.Context) {
	charID, guildID, ok := h.member(c)
	if !ok {
		return
	}
	v, err := h.svc.Join(c.Request.Context(), charID, guildID)
	h.reply(c, http.StatusOK, v, err)
}

// Leave handles POST /api/guild/leave.
func (h *GuildHandler) Leave(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	v, err := h.svc.Leave(c.Request.Context(), ch.ID)
	h.reply(c, http.StatusOK, v, err)
}

type rosterOp func(ctx *gin.Context, charID, guildID, targetID int64) (*guild.View, error)

func (h *GuildHandler) roster(c *gin.Context, op rosterOp) {
	charID, guildID, ok := h.member(c)
	if !ok {
		return
	}
	var req memberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := op(c, charID, guildID, req.CharID)
	h.reply(c, http.StatusOK, v, err)
}

// KickMember handles POST /api/guild/:id/kick.
func (h *GuildHandler) KickMember(c *gin.Context) {
	h.roster(c, func(c *gin.Context, charID, guildID, targetID int64) (*guild.View, error) {
		return h.svc.Kick(c.Request.Context(), charID, guildID, targetID)
	})
}

// Promote handles POST /api/guild/:id/promote.
func (h *GuildHandler) Promote(c *gin.Context) {
	h.roster(c, func(c *gin.Context, charID, guildID, targetID int64) (*guild.View, error) {
		return h.svc.Promote(c.Request.Context(), charID, guildID, targetID)
	})
}

// Demote handles POST /api/guild/:id/demote.
func (h *GuildHandler) Demote(c *gin.Context) {
	h.roster(c, func(c *gin.Context, charID, guildID, targetID int64) (*guild.View, error) {
		return h.svc.Demote(c.Request.Context(), charID, guildID, targetID)
	})
}

// Transfer handles POST /api/guild/:id/transfer.
func (h *GuildHandler) Transfer(c *gin.Context) {
	h.roster(c, func(c *gin.Context, charID, guildID, targetID int64) (*guild.View, error) {
		return h.svc.Transfer(c.Request.Context(), charID, guildID, targetID)
	})
}

// UpdateAnnouncement handles PUT /api/guild/:id/announcement.
func (h *GuildHandler) UpdateAnnouncement(c *gin.Context) {
	charID, guildID, ok := h.member(c)
	if !ok {
		return
	}
	var req announcementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	v, err := h.svc.SetAnnouncement(c.Request.Context(), charID, guildID, req.Announcement)
	h.reply(c, http.StatusOK, v, err)
}

// Donate handles POST /api/guild/:id/donate.
func (h *GuildHandler) Donate(c *gin.Context) {
	charID, guildID, ok := h.member(c)
	if !ok {
		return
	}
	var req donateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.svc.Donate(c.Request.Context(), charID, guildID, req.Amount)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Disband handles POST /api/guild/:id/disband.
func (h *GuildHandler) Disband(c *gin.Context) {
	charID, guildID, ok := h.member(c)
	if !ok {
		return
	}
	if err := h.svc.Disband(c.Request.Context(), charID, guildID); err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "guild disbanded"})
}

// Storage handles GET /api/guild/:id/storage.
func (h *GuildHandler) Storage(c *gin.Context) {
	charID, guildID, ok := h.member(c)
	if !ok {
		return
	}
	items, err := h.svc.Storage(c.Request.Context(), charID, guildID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// Deposit handles POST /api/guild/:id/storage/deposit.
func (h *GuildHandler) Deposit(c *gin.Context) {
	charID, guildID, ok := h.member(c)
	if !ok {
		return
	}
	var req depositRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	item, err := h.svc.Deposit(c.Request.Context(), charID, guildID, req.InventoryID, req.Qty)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}

// Withdraw handles POST /api/guild/:id/storage/withdraw.
func (h *GuildHandler) Withdraw(c *gin.Context) {
	charID, guildID, ok := h.member(c)
	if !ok {
		return
	}
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	item, err := h.svc.Withdraw(c.Request.Context(), charID, guildID, req.StorageID, req.Qty)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"item": item})
}
