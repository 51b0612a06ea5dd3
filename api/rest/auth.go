package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/cache"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/db"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const bcryptCost = 10

// AuthHandler handles authentication REST endpoints.
type AuthHandler struct {
	db     *gorm.DB
	cache  cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(db *gorm.DB, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{db: db, cache: c, sec: sec, logger: logger}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=20,alphanum"`
	Email    string `json:"email"    binding:"required,email,max=128"`
	Password string `json:"password" binding:"required,min=6,max=50"`
}

type loginRequest struct {
	Email    string `json:"email"    binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type accountView struct {
	ID           int64             `json:"id"`
	Username     string            `json:"username"`
	Email        string            `json:"email"`
	Gems         int64             `json:"gems"`
	VIPLevel     int               `json:"vip_level"`
	PremiumTier  model.PremiumTier `json:"premium_tier"`
	PremiumUntil *time.Time        `json:"premium_until"`
	LastLoginAt  *time.Time        `json:"last_login_at"`
}

func viewAccount(acc *model.Account) accountView {
	return accountView{
		ID:           acc.ID,
		Username:     acc.Username,
		Email:        acc.Email,
		Gems:         acc.Gems,
		VIPLevel:     acc.VIPLevel,
		PremiumTier:  acc.ActiveTier(time.Now()),
		PremiumUntil: acc.PremiumUntil,
		LastLoginAt:  acc.LastLoginAt,
	}
}

func (h *AuthHandler) issue(c *gin.Context, accountID int64) (string, error) {
	token, err := mw.GenerateToken(accountID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := mw.StartSession(ctx, h.cache, token, accountID, h.sec.JWTTTLH); err != nil {
		return "", err
	}
	return token, nil
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var existing model.Account
	err := h.db.Where("email = ? OR username = ?", req.Email, req.Username).First(&existing).Error
	if err == nil {
		msg := "username already taken"
		if existing.Email == req.Email {
			msg = "email already registered"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		respondErr(c, h.logger, err)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcryptCost)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	acc := model.Account{
		Username:     req.Username,
		Email:        req.Email,
		PasswordHash: string(hash),
		PremiumTier:  model.TierNone,
	}
	if err := h.db.Create(&acc).Error; err != nil {
		if db.IsUniqueViolation(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "username or email already taken"})
			return
		}
		respondErr(c, h.logger, err)
		return
	}

	token, err := h.issue(c, acc.ID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	h.logger.Info("account registered", zap.Int64("account_id", acc.ID), zap.String("username", acc.Username))
	c.JSON(http.StatusCreated, gin.H{"token": token, "user": viewAccount(&acc)})
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var acc model.Account
	err := h.db.Where("email = ?", strings.ToLower(strings.TrimSpace(req.Email))).First(&acc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	if acc.Banned {
		reason := acc.BanReason
		if reason == "" {
			reason = "no reason provided"
		}
		c.JSON(http.StatusForbidden, gin.H{"error": "account banned", "reason": reason})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid email or password"})
		return
	}

	token, err := h.issue(c, acc.ID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}

	// Update last login (best-effort).
	now := time.Now()
	ip := c.ClientIP()
	_ = h.db.Model(&acc).Updates(map[string]interface{}{
		"last_login_at": now,
		"last_login_ip": ip,
	})
	acc.LastLoginAt = &now

	c.JSON(http.StatusOK, gin.H{"token": token, "user": viewAccount(&acc)})
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(c *gin.Context) {
	var acc model.Account
	err := h.db.First(&acc, mw.GetAccountID(c)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		return
	}
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var chars int64
	if err := h.db.Model(&model.Character{}).Where("account_id = ?", acc.ID).Count(&chars).Error; err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": viewAccount(&acc), "characters": chars})
}

// Logout handles POST /api/auth/logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = mw.EndSession(ctx, h.cache, mw.GetToken(c), mw.GetAccountID(c))
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Refresh handles POST /api/auth/refresh.
func (h *AuthHandler) Refresh(c *gin.Context) {
	accountID := mw.GetAccountID(c)
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = mw.EndSession(ctx, h.cache, mw.GetToken(c), accountID)

	token, err := h.issue(c, accountID)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}
