package rest

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/game/mail"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MailHandler handles in-game mail REST endpoints. Every route acts as the
// request's active character.
type MailHandler struct {
	db     *gorm.DB
	svc    *mail.Service
	logger *zap.Logger
}

// NewMailHandler creates a MailHandler.
func NewMailHandler(db *gorm.DB, svc *mail.Service, logger *zap.Logger) *MailHandler {
	return &MailHandler{db: db, svc: svc, logger: logger}
}

type sendMailRequest struct {
	Recipient string                `json:"recipient" binding:"required"`
	Subject   string                `json:"subject"   binding:"required"`
	Message   string                `json:"message"   binding:"required"`
	Gold      int64                 `json:"gold"`
	Items     []mail.ItemAttachment `json:"items"`
}

func (h *MailHandler) onMail(c *gin.Context, fn func(charID, mailID int64)) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	mailID, err := paramID(c, "id")
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	fn(ch.ID, mailID)
}

// Inbox handles GET /api/mail/inbox?page=&limit=.
func (h *MailHandler) Inbox(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	inbox, err := h.svc.Inbox(c.Request.Context(), ch.ID, page, limit)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, inbox)
}

// Get handles GET /api/mail/:id.
func (h *MailHandler) Get(c *gin.Context) {
	h.onMail(c, func(charID, mailID int64) {
		m, err := h.svc.Get(c.Request.Context(), charID, mailID)
		if err != nil {
			respondErr(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"mail": m})
	})
}

// Send handles POST /api/mail/send.
func (h *MailHandler) Send(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var req sendMailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	m, err := h.svc.Send(c.Request.Context(), ch.ID, mail.SendRequest{
		Recipient: req.Recipient,
		Subject:   req.Subject,
		Message:   req.Message,
		Gold:      req.Gold,
		Items:     req.Items,
	})
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"mail": m})
}

// Read handles POST /api/mail/:id/read.
func (h *MailHandler) Read(c *gin.Context) {
	h.onMail(c, func(charID, mailID int64) {
		if err := h.svc.Read(c.Request.Context(), charID, mailID); err != nil {
			respondErr(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
	})
}

// Collect handles POST /api/mail/:id/collect.
func (h *MailHandler) Collect(c *gin.Context) {
	h.onMail(c, func(charID, mailID int64) {
		res, err := h.svc.Collect(c.Request.Context(), charID, mailID)
		if err != nil {
			respondErr(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, res)
	})
}

// Delete handles DELETE /api/mail/:id.
func (h *MailHandler) Delete(c *gin.Context) {
	h.onMail(c, func(charID, mailID int64) {
		if err := h.svc.Delete(c.Request.Context(), charID, mailID); err != nil {
			respondErr(c, h.logger, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "deleted"})
	})
}

// DeleteRead handles DELETE /api/mail/read.
func (h *MailHandler) DeleteRead(c *gin.Context) {
	ch, err := activeCharacter(c, h.db)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	n, err := h.svc.DeleteRead(c.Request.Context(), ch.ID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": n})
}
