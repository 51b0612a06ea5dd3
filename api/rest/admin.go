package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/events"
	"github.com/kasuganosora/kadim/server/game/mail"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"github.com/kasuganosora/kadim/server/model"
	"github.com/kasuganosora/kadim/server/scheduler"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Announcer broadcasts server-wide messages and account notifications.
type Announcer interface {
	events.Publisher
	Announce(ctx context.Context, message string) error
}

// AdminHandler handles admin-only REST endpoints.
// Routes should be protected by AdminAuth middleware.
type AdminHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	mail   *mail.Service
	ann    Announcer
	sched  *scheduler.Scheduler
	audit  audit.Recorder
	logger *zap.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(
	db *gorm.DB,
	c cache.Cache,
	mailSvc *mail.Service,
	ann Announcer,
	sched *scheduler.Scheduler,
	rec audit.Recorder,
	logger *zap.Logger,
) *AdminHandler {
	return &AdminHandler{db: db, cache: c, mail: mailSvc, ann: ann, sched: sched, audit: rec, logger: logger}
}

type banRequest struct {
	Ban    bool   `json:"ban"`
	Reason string `json:"reason" binding:"max=255"`
}

// BanAccount bans or unbans a player account. Banning ends every live
// session of the account.
// POST /api/admin/accounts/:id/ban
func (h *AdminHandler) BanAccount(c *gin.Context) {
	accountID, err := paramID(c, "id")
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var req banRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	reason := ""
	if req.Ban {
		reason = req.Reason
	}
	result := h.db.WithContext(c.Request.Context()).Model(&model.Account{}).Where("id = ?", accountID).
		Updates(map[string]any{"banned": req.Ban, "ban_reason": reason})
	if result.Error != nil {
		respondErr(c, h.logger, result.Error)
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	action := audit.ActionAccountUnban
	if req.Ban {
		action = audit.ActionAccountBan
		if err := h.cache.Set(ctx, cache.BanKey(accountID), reason, 0); err != nil {
			h.logger.Warn("ban key not cached", zap.Int64("account_id", accountID), zap.Error(err))
		}
		if err := mw.RevokeSessions(ctx, h.cache, accountID); err != nil {
			h.logger.Warn("revoke sessions failed", zap.Int64("account_id", accountID), zap.Error(err))
		}
		h.ann.Publish(ctx, events.AccountBanned, gin.H{"reason": reason}, accountID)
	} else if err := h.cache.Del(ctx, cache.BanKey(accountID)); err != nil {
		h.logger.Warn("ban key not cleared", zap.Int64("account_id", accountID), zap.Error(err))
	}

	h.audit.Log(c.Request.Context(), audit.AuditEntry{
		TraceID:   mw.GetTraceID(c),
		AccountID: audit.Int64(accountID),
		Action:    action,
		Target:    "account",
		Detail:    map[string]any{"reason": reason},
		IP:        c.ClientIP(),
	})
	h.logger.Info("account ban changed", zap.Int64("account_id", accountID), zap.Bool("banned", req.Ban))
	c.JSON(http.StatusOK, gin.H{"ok": true, "banned": req.Ban})
}

type systemMailRequest struct {
	CharID  int64            `json:"char_id" binding:"required,min=1"`
	Type    model.MailType   `json:"type"`
	Subject string           `json:"subject" binding:"required"`
	Message string           `json:"message" binding:"required"`
	Attach  mail.Attachments `json:"attachments"`
}

// SendMail delivers a system mail, optionally with gold, gems and items.
// POST /api/admin/mail
func (h *AdminHandler) SendMail(c *gin.Context) {
	var req systemMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.mail.SendSystemMail(c.Request.Context(), req.CharID, req.Type, req.Subject, req.Message, req.Attach)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	h.audit.Log(c.Request.Context(), audit.AuditEntry{
		TraceID: mw.GetTraceID(c),
		CharID:  audit.Int64(req.CharID),
		Action:  audit.ActionSystemMail,
		Target:  "mail",
		Detail:  map[string]any{"mail_id": m.ID, "gold": req.Attach.Gold, "gems": req.Attach.Gems, "items": len(req.Attach.Items)},
		IP:      c.ClientIP(),
	})
	c.JSON(http.StatusCreated, gin.H{"mail": m})
}

type announceRequest struct {
	Message string `json:"message" binding:"required,max=500"`
}

// Announce broadcasts a message to every connected client.
// POST /api/admin/announce
func (h *AdminHandler) Announce(c *gin.Context) {
	var req announceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if err := h.ann.Announce(c.Request.Context(), req.Message); err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// ListSchedulerTasks returns names of all registered ticker tasks.
// GET /api/admin/scheduler
func (h *AdminHandler) ListSchedulerTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tasks": h.sched.ListTickers()})
}

// AdminAuth returns a middleware that checks the X-Admin-Key header.
// WARNING: if adminKey is empty all admin endpoints are disabled (503) so the
// server cannot be accidentally deployed without protection. Set a non-empty
// server.admin_key in config to enable admin routes.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if key != adminKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
