package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/apperr"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// CharacterHeader selects the active character of a request.
const CharacterHeader = "X-Character-ID"

var (
	errBadID       = apperr.Validation("invalid id")
	errNoCharacter = apperr.NotFound("character not found")
)

func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondErr writes err with the status of its kind. Internal errors are
// logged and hidden from the client.
func respondErr(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := statusOf(kind)
	body := gin.H{"error": apperr.Message(err)}
	switch kind {
	case apperr.KindUnavailable:
		body["retryable"] = true
		logger.Warn("request unavailable", zap.String("path", c.FullPath()),
			zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
	case apperr.KindInternal:
		logger.Error("request failed", zap.String("path", c.FullPath()),
			zap.String("trace_id", mw.GetTraceID(c)), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func paramID(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, errBadID
	}
	return id, nil
}

// activeCharacter resolves the character a request acts as: the
// X-Character-ID header, then the char_id query parameter, then the
// account's most recently played character. It must belong to the caller.
func activeCharacter(c *gin.Context, db *gorm.DB) (*model.Character, error) {
	accountID := mw.GetAccountID(c)
	raw := c.GetHeader(CharacterHeader)
	if raw == "" {
		raw = c.Query("char_id")
	}
	q := db.WithContext(c.Request.Context()).Where("account_id = ?", accountID)
	if raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return nil, errBadID
		}
		q = q.Where("id = ?", id)
	}
	var ch model.Character
	err := q.Order("last_played_at DESC, id DESC").First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNoCharacter
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// Health handles GET /health.
func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
