package rest

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/game/premium"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
)

// PremiumHandler handles premium REST endpoints. Premium is account-wide.
type PremiumHandler struct {
	svc    *premium.Service
	logger *zap.Logger
}

// NewPremiumHandler creates a PremiumHandler.
func NewPremiumHandler(svc *premium.Service, logger *zap.Logger) *PremiumHandler {
	return &PremiumHandler{svc: svc, logger: logger}
}

type purchaseRequest struct {
	Tier model.PremiumTier `json:"tier" binding:"required"`
	Days int               `json:"days" binding:"required,min=1"`
}

// Status handles GET /api/premium/status.
func (h *PremiumHandler) Status(c *gin.Context) {
	st, err := h.svc.Status(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Packages handles GET /api/premium/packages.
func (h *PremiumHandler) Packages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": premium.Packages, "tiers": premium.Tiers})
}

// Purchase handles POST /api/premium/purchase.
func (h *PremiumHandler) Purchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	st, err := h.svc.Purchase(c.Request.Context(), mw.GetAccountID(c), req.Tier, req.Days)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ClaimDaily handles POST /api/premium/claim-daily.
func (h *PremiumHandler) ClaimDaily(c *gin.Context) {
	res, err := h.svc.ClaimDaily(c.Request.Context(), mw.GetAccountID(c))
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
