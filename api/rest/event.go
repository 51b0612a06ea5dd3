package rest

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/game/event"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// EventHandler serves scheduled game events to players and lets admins
// manage them.
type EventHandler struct {
	db     *gorm.DB
	svc    *event.Service
	ann    Announcer
	audit  audit.Recorder
	logger *zap.Logger
}

// NewEventHandler creates an EventHandler. ann may be nil.
func NewEventHandler(db *gorm.DB, svc *event.Service, ann Announcer, rec audit.Recorder, logger *zap.Logger) *EventHandler {
	return &EventHandler{db: db, svc: svc, ann: ann, audit: rec, logger: logger}
}

// Active handles GET /api/events/active.
func (h *EventHandler) Active(c *gin.Context) {
	evs, err := h.svc.Active(c.Request.Context())
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

// Upcoming handles GET /api/events/upcoming.
func (h *EventHandler) Upcoming(c *gin.Context) {
	evs, err := h.svc.Upcoming(c.Request.Context())
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": evs})
}

// Get handles GET /api/events/:id.
func (h *EventHandler) Get(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	e, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, e)
}

// Bonuses handles GET /api/events/bonuses. zone and level default to the
// active character's.
func (h *EventHandler) Bonuses(c *gin.Context) {
	zone, level := 0, 0
	if c.Query("zone") == "" || c.Query("level") == "" {
		ch, err := activeCharacter(c, h.db)
		if err != nil {
			respondErr(c, h.logger, err)
			return
		}
		zone, level = ch.Zone, ch.Level
	}
	if v, err := strconv.Atoi(c.DefaultQuery("zone", strconv.Itoa(zone))); err == nil {
		zone = v
	}
	if v, err := strconv.Atoi(c.DefaultQuery("level", strconv.Itoa(level))); err == nil {
		level = v
	}
	b, err := h.svc.Bonuses(c.Request.Context(), zone, level)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, b)
}

// Create handles POST /api/admin/events. An event that is already running
// is announced.
func (h *EventHandler) Create(c *gin.Context) {
	var in event.Input
	if err := c.ShouldBindJSON(&in); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	e, err := h.svc.Create(ctx, in)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	h.record(c, audit.ActionEventCreate, e.ID, map[string]any{"name": e.Name, "type": e.Type})
	if h.ann != nil && e.Running(time.Now()) {
		if err := h.ann.Announce(ctx, fmt.Sprintf("Event started: %s", e.Name)); err != nil {
			h.logger.Warn("event announcement failed", zap.Int64("event_id", e.ID), zap.Error(err))
		}
	}
	c.JSON(http.StatusCreated, gin.H{"event": e})
}

// Update handles PUT /api/admin/events/:id.
func (h *EventHandler) Update(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var p event.Patch
	if err := c.ShouldBindJSON(&p); err != nil {
		badRequest(c, err)
		return
	}
	e, err := h.svc.Update(c.Request.Context(), id, p)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	h.record(c, audit.ActionEventUpdate, id, p)
	c.JSON(http.StatusOK, gin.H{"event": e})
}

// Delete handles DELETE /api/admin/events/:id.
func (h *EventHandler) Delete(c *gin.Context) {
	id, err := paramID(c, "id")
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	if err := h.svc.Delete(c.Request.Context(), id); err != nil {
		respondErr(c, h.logger, err)
		return
	}
	h.record(c, audit.ActionEventDelete, id, nil)
	c.JSON(http.StatusOK, gin.H{"message": "event deleted"})
}

func (h *EventHandler) record(c *gin.Context, action string, id int64, detail any) {
	h.audit.Log(c.Request.Context(), audit.AuditEntry{
		TraceID: mw.GetTraceID(c),
		Action:  action,
		Target:  fmt.Sprintf("event:%d", id),
		Detail:  detail,
		IP:      c.ClientIP(),
	})
}
