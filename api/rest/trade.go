package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/game/trade"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TradeHandler handles trade REST endpoints.
type TradeHandler struct {
	db     *gorm.DB
	svc    *trade.Service
	logger *zap.Logger
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(db *gorm.DB, svc *trade.Service, logger *zap.Logger) *TradeHandler {
	return &TradeHandler{db: db, svc: svc, logger: logger}
}

type tradeRequest struct {
	TargetID int64 `json:"target_id" binding:"required,min=1"`
}

type offerItemRequest struct {
	InventoryID int64 `json:"inventory_id" binding:"required,min=1"`
	Qty         int   `json:"qty"`
}

type offerGoldRequest struct {
	Amount *int64 `json:"amount" binding:"required"`
}

type confirmRequest struct {
	// Version is the trade version the caller reviewed.
	Version *int64 `json:"version"`
}

func (h *TradeHandler) reply(c *gin.Context, status int, t *model.Trade, err error) {
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(status, gin.H{"trade": t})
}

// onTrade resolves the active character and the :id trade and runs fn.
func (h *TradeHandler) onTrade(c *gin.Context, fn func(charID, tradeID int64) (*model.Trade, error)) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	tradeID, err := paramID(c, "id")
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	t, err := fn(ch.ID, tradeID)
	h.reply(c, http.StatusOK, t, err)
}

// Request handles POST /api/trade/request.
func (h *TradeHandler) Request(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var req tradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.svc.Request(c.Request.Context(), ch.ID, req.TargetID)
	h.reply(c, http.StatusCreated, t, err)
}

// My handles GET /api/trade/my.
func (h *TradeHandler) My(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	trades, err := h.svc.ListMine(c.Request.Context(), ch.ID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"trades": trades})
}

// Get handles GET /api/trade/:id.
func (h *TradeHandler) Get(c *gin.Context) {
	h.onTrade(c, func(charID, tradeID int64) (*model.Trade, error) {
		return h.svc.Get(c.Request.Context(), charID, tradeID)
	})
}

// AddItem handles POST /api/trade/:id/items.
func (h *TradeHandler) AddItem(c *gin.Context) {
	var req offerItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Qty == 0 {
		req.Qty = 1
	}
	h.onTrade(c, func(charID, tradeID int64) (*model.Trade, error) {
		return h.svc.AddItem(c.Request.Context(), charID, tradeID, req.InventoryID, req.Qty)
	})
}

// SetGold handles POST /api/trade/:id/gold.
func (h *TradeHandler) SetGold(c *gin.Context) {
	var req offerGoldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	h.onTrade(c, func(charID, tradeID int64) (*model.Trade, error) {
		return h.svc.SetGold(c.Request.Context(), charID, tradeID, *req.Amount)
	})
}

// Confirm handles POST /api/trade/:id/confirm. The body is optional.
func (h *TradeHandler) Confirm(c *gin.Context) {
	var req confirmRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}
	h.onTrade(c, func(charID, tradeID int64) (*model.Trade, error) {
		return h.svc.Confirm(c.Request.Context(), charID, tradeID, req.Version)
	})
}

// Cancel handles POST /api/trade/:id/cancel.
func (h *TradeHandler) Cancel(c *gin.Context) {
	h.onTrade(c, func(charID, tradeID int64) (*model.Trade, error) {
		return h.svc.Cancel(c.Request.Context(), charID, tradeID)
	})
}
