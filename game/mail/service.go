package mail

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/audit"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/db"
	"github.com/kasuganosora/kadim/server/events"
	"github.com/kasuganosora/kadim/server/game/wallet"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ActionSendMail is the daily quest action reported for each player mail sent.
const ActionSendMail = "send_mail"

const (
	maxSubject  = 100
	maxMessage  = 1000
	maxPageSize = 100
	maxItems    = 10
)

var (
	ErrNotFound          = apperr.NotFound("mail not found")
	ErrRecipientNotFound = apperr.NotFound("player not found")
	ErrMissingFields     = apperr.Validation("recipient, subject and message are required")
	ErrSubjectTooLong    = apperr.Validation("subject is too long")
	ErrMessageTooLong    = apperr.Validation("message is too long")
	ErrNegativeGold      = apperr.Validation("gold must not be negative")
	ErrBadQty            = apperr.Validation("quantity must be positive")
	ErrTooManyItems      = apperr.Validation("too many attached items")
	ErrDuplicateItem     = apperr.Validation("item attached twice")
	ErrAlreadyCollected  = apperr.Conflict("attachments already collected")
	ErrNothingAttached   = apperr.Validation("mail has no attachments")
	ErrPending           = apperr.Validation("collect attachments before deleting")
)

// QuestTracker receives daily quest progress.
type QuestTracker interface {
	Track(ctx context.Context, accountID int64, action string, amount int)
}

// ItemAttachment names a bag item to send.
type ItemAttachment struct {
	InventoryID int64 `json:"inventory_id"`
	Qty         int   `json:"qty"`
}

// SendRequest is a player mail.
type SendRequest struct {
	Recipient string           `json:"recipient"`
	Subject   string           `json:"subject"`
	Message   string           `json:"message"`
	Gold      int64            `json:"gold"`
	Items     []ItemAttachment `json:"items"`
}

// Attachments is what a system mail carries.
type Attachments struct {
	Gold  int64        `json:"gold"`
	Gems  int64        `json:"gems"`
	Items []model.Item `json:"items"`
}

// Inbox is one page of a character's mail.
type Inbox struct {
	Mails  []model.Mail `json:"mails"`
	Page   int          `json:"page"`
	Limit  int          `json:"limit"`
	Total  int64        `json:"total"`
	Pages  int64        `json:"pages"`
	Unread int64        `json:"unread"`
}

// CollectResult reports what a collect moved into the character's hands.
type CollectResult struct {
	Gold      int64                 `json:"gold"`
	Gems      int64                 `json:"gems"`
	Items     []model.InventoryItem `json:"items"`
	CharGold  int64                 `json:"char_gold"`
	TotalGems int64                 `json:"total_gems"`
}

// Service delivers mail between characters. Attached gold and items leave
// the sender in the same transaction that creates the mail and stay in
// escrow until collected.
type Service struct {
	db     *gorm.DB
	pub    events.Publisher
	quests QuestTracker
	audit  audit.Recorder
	cfg    config.GameConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new mail Service. quests may be nil.
func NewService(db *gorm.DB, pub events.Publisher, quests QuestTracker, rec audit.Recorder, cfg config.GameConfig, logger *zap.Logger) *Service {
	return &Service{db: db, pub: pub, quests: quests, audit: rec, cfg: cfg, logger: logger, now: time.Now}
}

func (svc *Service) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.RunTx(ctx, svc.db, svc.cfg.TxRetries, fn)
}

func (svc *Service) clock() time.Time { return svc.now().UTC() }

func (svc *Service) expiry() time.Time {
	ttl := svc.cfg.MailTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return svc.clock().Add(ttl)
}

// resolveRecipient finds a character by name, falling back to the latest
// character of the account with that username.
func resolveRecipient(tx *gorm.DB, name string) (*model.Character, error) {
	var ch model.Character
	err := tx.Where("name = ?", name).First(&ch).Error
	if err == nil {
		return &ch, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	err = tx.Joins("JOIN accounts ON accounts.id = characters.account_id").
		Where("accounts.username = ?", name).
		Order("characters.last_played_at DESC").First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRecipientNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func validateText(subject, message string) error {
	if utf8.RuneCountInString(subject) > maxSubject {
		return ErrSubjectTooLong
	}
	if utf8.RuneCountInString(message) > maxMessage {
		return ErrMessageTooLong
	}
	return nil
}

func (req *SendRequest) validate() error {
	req.Recipient = strings.TrimSpace(req.Recipient)
	req.Subject = strings.TrimSpace(req.Subject)
	if req.Recipient == "" || req.Subject == "" || strings.TrimSpace(req.Message) == "" {
		return ErrMissingFields
	}
	if err := validateText(req.Subject, req.Message); err != nil {
		return err
	}
	if req.Gold < 0 {
		return ErrNegativeGold
	}
	if len(req.Items) > maxItems {
		return ErrTooManyItems
	}
	seen := make(map[int64]bool, len(req.Items))
	for _, it := range req.Items {
		if it.Qty <= 0 {
			return ErrBadQty
		}
		if seen[it.InventoryID] {
			return ErrDuplicateItem
		}
		seen[it.InventoryID] = true
	}
	return nil
}

// ownedMail loads a live mail addressed to charID with its items.
func (svc *Service) ownedMail(tx *gorm.DB, charID, mailID int64) (*model.Mail, error) {
	var m model.Mail
	err := tx.Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).
		Where("id = ? AND recipient_id = ? AND expires_at > ?", mailID, charID, svc.clock()).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Send mails req from senderID. The postage and any attached gold are taken
// from the sender; attached items move into escrow.
func (svc *Service) Send(ctx context.Context, senderID int64, req SendRequest) (*model.Mail, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	var (
		m         *model.Mail
		senderAcc int64
		recvAcc   int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		sender, err := wallet.Character(tx, senderID)
		if err != nil {
			return err
		}
		recipient, err := resolveRecipient(tx, req.Recipient)
		if err != nil {
			return err
		}
		if err := wallet.AdjustGold(tx, sender, -(svc.cfg.MailCost + req.Gold)); err != nil {
			return err
		}
		items := make([]model.MailItem, 0, len(req.Items))
		for _, att := range req.Items {
			inv, err := wallet.OwnedItem(tx, senderID, att.InventoryID)
			if err != nil {
				return err
			}
			it, err := wallet.TakeItem(tx, inv, att.Qty)
			if err != nil {
				return err
			}
			items = append(items, model.MailItem{Item: it})
		}
		m = &model.Mail{
			SenderID:      &sender.ID,
			SenderName:    sender.Name,
			RecipientID:   recipient.ID,
			RecipientName: recipient.Name,
			Subject:       req.Subject,
			Message:       req.Message,
			Gold:          req.Gold,
			Type:          model.MailPlayer,
			ExpiresAt:     svc.expiry(),
			Items:         items,
		}
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		senderAcc, recvAcc = sender.AccountID, recipient.AccountID
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.pub.Publish(ctx, events.MailReceived, m, recvAcc)
	if svc.quests != nil {
		svc.quests.Track(ctx, senderAcc, ActionSendMail, 1)
	}
	svc.logger.Info("mail sent",
		zap.Int64("mail_id", m.ID), zap.Int64("from", senderID), zap.Int64("to", m.RecipientID))
	return m, nil
}

// SendSystemMail delivers a mail from the system to a character. Attached
// items are created fresh.
func (svc *Service) SendSystemMail(ctx context.Context, recipientID int64, typ model.MailType, subject, message string, att Attachments) (*model.Mail, error) {
	if strings.TrimSpace(subject) == "" {
		return nil, ErrMissingFields
	}
	if err := validateText(subject, message); err != nil {
		return nil, err
	}
	if att.Gold < 0 || att.Gems < 0 {
		return nil, ErrNegativeGold
	}
	if typ == "" {
		typ = model.MailSystem
	}
	items := make([]model.MailItem, 0, len(att.Items))
	for _, it := range att.Items {
		if err := it.Validate(); err != nil {
			return nil, apperr.Validation("%s", err.Error())
		}
		items = append(items, model.MailItem{Item: it})
	}
	var (
		m       *model.Mail
		recvAcc int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		recipient, err := wallet.Character(tx, recipientID)
		if err != nil {
			if errors.Is(err, wallet.ErrCharNotFound) {
				return ErrRecipientNotFound
			}
			return err
		}
		m = &model.Mail{
			SenderName:    model.SystemSender,
			RecipientID:   recipient.ID,
			RecipientName: recipient.Name,
			Subject:       subject,
			Message:       message,
			Gold:          att.Gold,
			Gems:          att.Gems,
			Type:          typ,
			ExpiresAt:     svc.expiry(),
			Items:         items,
		}
		recvAcc = recipient.AccountID
		return tx.Create(m).Error
	})
	if err != nil {
		return nil, err
	}
	svc.pub.Publish(ctx, events.MailReceived, m, recvAcc)
	return m, nil
}

// SendAccountMail sends a plain system notice to the account's most recently
// played character.
func (svc *Service) SendAccountMail(ctx context.Context, accountID int64, subject, message string) error {
	var ch model.Character
	err := svc.db.WithContext(ctx).Where("account_id = ?", accountID).
		Order("last_played_at DESC, id DESC").First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrRecipientNotFound
	}
	if err != nil {
		return err
	}
	_, err = svc.SendSystemMail(ctx, ch.ID, model.MailSystem, subject, message, Attachments{})
	return err
}

// Inbox returns a page of live mail for charID, newest first. page starts at 1.
func (svc *Service) Inbox(ctx context.Context, charID int64, page, limit int) (*Inbox, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = svc.cfg.MailPageSize
	}
	if limit <= 0 {
		limit = 20
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	gdb := svc.db.WithContext(ctx)
	live := func() *gorm.DB {
		return gdb.Model(&model.Mail{}).Where("recipient_id = ? AND expires_at > ?", charID, svc.clock())
	}
	out := &Inbox{Page: page, Limit: limit, Mails: []model.Mail{}}
	if err := live().Count(&out.Total).Error; err != nil {
		return nil, err
	}
	if err := live().Where("is_read = ?", false).Count(&out.Unread).Error; err != nil {
		return nil, err
	}
	out.Pages = (out.Total + int64(limit) - 1) / int64(limit)
	err := live().Preload("Items", func(q *gorm.DB) *gorm.DB { return q.Order("id") }).
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&out.Mails).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func markRead(tx *gorm.DB, m *model.Mail) error {
	if m.IsRead {
		return nil
	}
	if err := tx.Model(&model.Mail{}).Where("id = ?", m.ID).Update("is_read", true).Error; err != nil {
		return err
	}
	m.IsRead = true
	return nil
}

// Get returns one mail and marks it read.
func (svc *Service) Get(ctx context.Context, charID, mailID int64) (*model.Mail, error) {
	var m *model.Mail
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if m, err = svc.ownedMail(tx, charID, mailID); err != nil {
			return err
		}
		return markRead(tx, m)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Read marks a mail read without returning it.
func (svc *Service) Read(ctx context.Context, charID, mailID int64) error {
	_, err := svc.Get(ctx, charID, mailID)
	return err
}

// Collect moves a mail's gold to the character, gems to its account and
// items into its bag. The escrow rows are removed.
func (svc *Service) Collect(ctx context.Context, charID, mailID int64) (*CollectResult, error) {
	var (
		res *CollectResult
		acc int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		m, err := svc.ownedMail(tx, charID, mailID)
		if err != nil {
			return err
		}
		if m.IsCollected {
			return ErrAlreadyCollected
		}
		if !m.HasAttachments() {
			return ErrNothingAttached
		}
		upd := tx.Model(&model.Mail{}).Where("id = ? AND is_collected = ?", m.ID, false).
			Updates(map[string]any{"is_collected": true, "is_read": true})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			return db.ErrStaleWrite
		}
		ch, err := wallet.Character(tx, charID)
		if err != nil {
			return err
		}
		if err := wallet.AdjustGold(tx, ch, m.Gold); err != nil {
			return err
		}
		a, err := wallet.GemsByID(tx, ch.AccountID, m.Gems)
		if err != nil {
			return err
		}
		res = &CollectResult{Gold: m.Gold, Gems: m.Gems, Items: []model.InventoryItem{}, CharGold: ch.Gold, TotalGems: a.Gems}
		for _, mi := range m.Items {
			inv := model.InventoryItem{CharID: charID, Item: mi.Item}
			if err := tx.Create(&inv).Error; err != nil {
				return err
			}
			res.Items = append(res.Items, inv)
		}
		if len(m.Items) > 0 {
			if err := tx.Where("mail_id = ?", m.ID).Delete(&model.MailItem{}).Error; err != nil {
				return err
			}
		}
		acc = ch.AccountID
		return nil
	})
	if err != nil {
		return nil, err
	}
	svc.audit.Log(ctx, audit.AuditEntry{
		AccountID: audit.Int64(acc),
		CharID:    audit.Int64(charID),
		Action:    audit.ActionMailCollect,
		Target:    "mail",
		Detail:    map[string]any{"mail_id": mailID, "gold": res.Gold, "gems": res.Gems, "items": len(res.Items)},
	})
	return res, nil
}

// Delete removes a mail. Mail with uncollected attachments is kept.
func (svc *Service) Delete(ctx context.Context, charID, mailID int64) error {
	return svc.tx(ctx, func(tx *gorm.DB) error {
		m, err := svc.ownedMail(tx, charID, mailID)
		if err != nil {
			return err
		}
		if m.Pending() {
			return ErrPending
		}
		if err := tx.Where("mail_id = ?", m.ID).Delete(&model.MailItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Mail{}, m.ID).Error
	})
}

// DeleteRead removes every read mail of charID that holds nothing
// uncollected and returns how many were removed.
func (svc *Service) DeleteRead(ctx context.Context, charID int64) (int64, error) {
	var n int64
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("recipient_id = ? AND is_read = ?", charID, true).
			Where("is_collected = ? OR (gold = 0 AND gems = 0 AND NOT EXISTS "+
				"(SELECT 1 FROM mail_items WHERE mail_items.mail_id = mails.id))", true).
			Delete(&model.Mail{})
		n = res.RowsAffected
		return res.Error
	})
	return n, err
}

// PurgeExpired deletes expired mail together with anything still in escrow.
func (svc *Service) PurgeExpired(ctx context.Context) (int, error) {
	now := svc.clock()
	var n int64
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		expired := tx.Model(&model.Mail{}).Select("id").Where("expires_at <= ?", now)
		if err := tx.Where("mail_id IN (?)", expired).Delete(&model.MailItem{}).Error; err != nil {
			return err
		}
		res := tx.Where("expires_at <= ?", now).Delete(&model.Mail{})
		n = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		svc.logger.Info("expired mail purged", zap.Int64("count", n))
	}
	return int(n), nil
}
