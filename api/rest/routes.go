package rest

import (
	"github.com/gin-gonic/gin"
	mw "github.com/kasuganosora/kadim/server/middleware"
)

// Handlers bundles every REST handler. Event and Admin may be nil.
type Handlers struct {
	Auth       *AuthHandler
	Character  *CharacterHandler
	Party      *PartyHandler
	Guild      *GuildHandler
	Trade      *TradeHandler
	Mail       *MailHandler
	DailyQuest *DailyQuestHandler
	Premium    *PremiumHandler
	Event      *EventHandler
	Admin      *AdminHandler
}

// Register mounts the /api routes on r. auth guards every route except
// register and login; admin guards /api/admin.
func Register(r gin.IRouter, h Handlers, auth gin.HandlerFunc, admin ...gin.HandlerFunc) {
	api := r.Group("/api")

	authG := api.Group("/auth")
	authG.POST("/register", h.Auth.Register)
	authG.POST("/login", h.Auth.Login)
	authG.GET("/me", auth, h.Auth.Me)
	authG.POST("/logout", auth, h.Auth.Logout)
	authG.POST("/refresh", auth, h.Auth.Refresh)

	charG := api.Group("/character", auth)
	charG.GET("", h.Character.List)
	charG.POST("", h.Character.Create)
	charG.GET("/:id", h.Character.Get)
	charG.PUT("/:id", h.Character.Update)
	charG.DELETE("/:id", h.Character.Delete)
	charG.POST("/:id/save-progress", h.Character.SaveProgress)

	partyG := api.Group("/party", auth)
	partyG.POST("", h.Party.Create)
	partyG.GET("/my", h.Party.My)
	partyG.POST("/invite", h.Party.Invite)
	partyG.POST("/leave", h.Party.Leave)
	partyG.POST("/kick", h.Party.Kick)
	partyG.PUT("/settings", h.Party.Settings)
	partyG.POST("/transfer", h.Party.Transfer)
	partyG.POST("/disband", h.Party.Disband)

	guildG := api.Group("/guild", auth)
	guildG.POST("", h.Guild.Create)
	guildG.GET("/my", h.Guild.My)
	guildG.POST("/leave", h.Guild.Leave)
	guildG.GET("/:id", h.Guild.Detail)
	guildG.POST("/:id/join", h.Guild.Join)
	guildG.POST("/:id/kick", h.Guild.KickMember)
	guildG.POST("/:id/promote", h.Guild.Promote)
	guildG.POST("/:id/demote", h.Guild.Demote)
	guildG.POST("/:id/transfer", h.Guild.Transfer)
	guildG.PUT("/:id/announcement", h.Guild.UpdateAnnouncement)
	guildG.POST("/:id/donate", h.Guild.Donate)
	guildG.POST("/:id/disband", h.Guild.Disband)
	guildG.GET("/:id/storage", h.Guild.Storage)
	guildG.POST("/:id/storage/deposit", h.Guild.Deposit)
	guildG.POST("/:id/storage/withdraw", h.Guild.Withdraw)

	tradeG := api.Group("/trade", auth)
	tradeG.POST("/request", h.Trade.Request)
	tradeG.GET("/my", h.Trade.My)
	tradeG.GET("/:id", h.Trade.Get)
	tradeG.POST("/:id/items", h.Trade.AddItem)
	tradeG.POST("/:id/gold", h.Trade.SetGold)
	tradeG.POST("/:id/confirm", h.Trade.Confirm)
	tradeG.POST("/:id/cancel", h.Trade.Cancel)

	mailG := api.Group("/mail", auth)
	mailG.GET("/inbox", h.Mail.Inbox)
	mailG.POST("/send", h.Mail.Send)
	mailG.DELETE("/read", h.Mail.DeleteRead)
	mailG.GET("/:id", h.Mail.Get)
	mailG.POST("/:id/read", h.Mail.Read)
	mailG.POST("/:id/collect", h.Mail.Collect)
	mailG.DELETE("/:id", h.Mail.Delete)

	questG := api.Group("/dailyQuest", auth)
	questG.GET("/progress", h.DailyQuest.Progress)
	questG.POST("/update", h.DailyQuest.Update)
	questG.POST("/claim/:questId", h.DailyQuest.Claim)
	questG.POST("/claim-bonus", h.DailyQuest.ClaimBonus)

	premG := api.Group("/premium", auth)
	premG.GET("/status", h.Premium.Status)
	premG.GET("/packages", h.Premium.Packages)
	premG.POST("/purchase", h.Premium.Purchase)
	premG.POST("/claim-daily", h.Premium.ClaimDaily)

	if h.Event != nil {
		eventG := api.Group("/events", auth)
		eventG.GET("/active", h.Event.Active)
		eventG.GET("/upcoming", h.Event.Upcoming)
		eventG.GET("/bonuses", h.Event.Bonuses)
		eventG.GET("/:id", h.Event.Get)
	}

	if h.Admin != nil {
		adminG := api.Group("/admin", admin...)
		adminG.POST("/accounts/:id/ban", h.Admin.BanAccount)
		adminG.POST("/mail", h.Admin.SendMail)
		adminG.POST("/announce", h.Admin.Announce)
		adminG.GET("/scheduler", h.Admin.ListSchedulerTasks)
		if h.Event != nil {
			adminG.POST("/events", h.Event.Create)
			adminG.PUT("/events/:id", h.Event.Update)
			adminG.DELETE("/events/:id", h.Event.Delete)
		}
	}
}

// AdminGuards returns the middleware chain protecting /api/admin.
func AdminGuards(adminKey string, adminIPs []string) []gin.HandlerFunc {
	return []gin.HandlerFunc{mw.IPWhitelist(adminIPs), AdminAuth(adminKey)}
}
