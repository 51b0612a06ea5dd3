package guild

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode"
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

const maxAnnouncement = 500

var (
	ErrNotFound        = apperr.NotFound("guild not found")
	ErrInGuild         = apperr.Conflict("already in a guild, leave first")
	ErrNotInGuild      = apperr.NotFound("not in a guild")
	ErrNotGuildMember  = apperr.Forbidden("not a member of this guild")
	ErrNameTaken       = apperr.Conflict("guild name or tag already taken")
	ErrBadName         = apperr.Validation("guild name must be 3-20 characters")
	ErrBadTag          = apperr.Validation("guild tag must be 2-5 letters or digits")
	ErrFull            = apperr.Conflict("guild is full")
	ErrLeaderLeave     = apperr.Conflict("leader cannot leave, transfer leadership or disband the guild")
	ErrMemberNotFound  = apperr.NotFound("member not found")
	ErrNoPermission    = apperr.Forbidden("insufficient guild rank")
	ErrNotLeader       = apperr.Forbidden("only the guild leader can do that")
	ErrSelf            = apperr.Validation("cannot target yourself")
	ErrCannotPromote   = apperr.Validation("cannot promote further")
	ErrCannotDemote    = apperr.Validation("cannot demote further")
	ErrBadAmount       = apperr.Validation("invalid donation amount")
	ErrBadAnnouncement = apperr.Validation("announcement must be at most 500 characters")
	ErrBadQty          = apperr.Validation("quantity must be positive")
	ErrStorageItem     = apperr.NotFound("storage item not found")
)

var promotions = map[model.GuildRole]model.GuildRole{
	model.RoleMember:  model.RoleOfficer,
	model.RoleOfficer: model.RoleViceLeader,
}

var demotions = map[model.GuildRole]model.GuildRole{
	model.RoleViceLeader: model.RoleOfficer,
	model.RoleOfficer:    model.RoleMember,
}

// Member is a roster entry.
type Member struct {
	CharID       int64                `json:"char_id"`
	Name         string               `json:"name"`
	Role         model.GuildRole      `json:"role"`
	Contribution int64                `json:"contribution"`
	JoinedAt     time.Time            `json:"joined_at"`
	Class        model.CharacterClass `json:"class,omitempty"`
	Level        int                  `json:"level,omitempty"`
}

// View is a guild with its roster, highest rank first.
type View struct {
	model.Guild
	MemberCount int      `json:"member_count"`
	Members     []Member `json:"members"`
}

// Service manages guild rosters, ranks, donations and shared storage.
type Service struct {
	db     *gorm.DB
	pub    events.Publisher
	audit  audit.Recorder
	cfg    config.GameConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates a new guild Service.
func NewService(db *gorm.DB, pub events.Publisher, rec audit.Recorder, cfg config.GameConfig, logger *zap.Logger) *Service {
	return &Service{db: db, pub: pub, audit: rec, cfg: cfg, logger: logger, now: time.Now}
}

func (svc *Service) tx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return db.RunTx(ctx, svc.db, svc.cfg.TxRetries, fn)
}

func validName(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= 3 && n <= 20
}

func normalizeTag(tag string) (string, bool) {
	tag = strings.ToUpper(strings.TrimSpace(tag))
	if len(tag) < 2 || len(tag) > 5 {
		return "", false
	}
	for _, r := range tag {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return "", false
		}
	}
	return tag, true
}

func loadGuild(tx *gorm.DB, id int64) (*model.Guild, error) {
	var g model.Guild
	err := tx.First(&g, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func membership(tx *gorm.DB, charID int64) (*model.GuildMember, error) {
	var m model.GuildMember
	err := tx.Where("char_id = ?", charID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotInGuild
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// memberIn returns charID's membership in guildID.
func memberIn(tx *gorm.DB, guildID, charID int64) (*model.GuildMember, error) {
	m, err := membership(tx, charID)
	if errors.Is(err, ErrNotInGuild) {
		return nil, ErrNotGuildMember
	}
	if err != nil {
		return nil, err
	}
	if m.GuildID != guildID {
		return nil, ErrNotGuildMember
	}
	return m, nil
}

func target(tx *gorm.DB, guildID, charID int64) (*model.GuildMember, error) {
	var m model.GuildMember
	err := tx.Where("guild_id = ? AND char_id = ?", guildID, charID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMemberNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func setRole(tx *gorm.DB, m *model.GuildMember, role model.GuildRole) error {
	return tx.Model(&model.GuildMember{}).
		Where("guild_id = ? AND char_id = ?", m.GuildID, m.CharID).
		Update("role", role).Error
}

func (svc *Service) view(tx *gorm.DB, g *model.Guild) (*View, error) {
	var members []model.GuildMember
	if err := tx.Where("guild_id = ?", g.ID).Find(&members).Error; err != nil {
		return nil, err
	}
	ids := make([]int64, len(members))
	for i, m := range members {
		ids[i] = m.CharID
	}
	var chars []model.Character
	if len(ids) > 0 {
		if err := tx.Select("id", "name", "class", "level").Where("id IN ?", ids).Find(&chars).Error; err != nil {
			return nil, err
		}
	}
	byID := make(map[int64]model.Character, len(chars))
	for _, ch := range chars {
		byID[ch.ID] = ch
	}
	v := &View{Guild: *g, MemberCount: len(members), Members: make([]Member, 0, len(members))}
	for _, m := range members {
		mv := Member{CharID: m.CharID, Name: m.CharName, Role: m.Role, Contribution: m.Contribution, JoinedAt: m.JoinedAt}
		if ch, ok := byID[m.CharID]; ok {
			mv.Name, mv.Class, mv.Level = ch.Name, ch.Class, ch.Level
		}
		v.Members = append(v.Members, mv)
	}
	sort.SliceStable(v.Members, func(i, j int) bool {
		a, b := v.Members[i], v.Members[j]
		if a.Role.Rank() != b.Role.Rank() {
			return a.Role.Rank() > b.Role.Rank()
		}
		if a.Contribution != b.Contribution {
			return a.Contribution > b.Contribution
		}
		return a.JoinedAt.Before(b.JoinedAt)
	})
	return v, nil
}

func accountsOf(tx *gorm.DB, guildID int64, extra ...int64) ([]int64, error) {
	var ids []int64
	err := tx.Model(&model.Character{}).
		Where("id IN (?) OR id IN ?", tx.Model(&model.GuildMember{}).Select("char_id").Where("guild_id = ?", guildID), append(extra, 0)).
		Pluck("account_id", &ids).Error
	return ids, err
}

// apply runs fn on guildID inside a transaction, bumps the guild version and
// returns the fresh view and the accounts to notify. fn returns extra
// character ids to notify, such as removed members.
func (svc *Service) apply(ctx context.Context, guildID int64, fn func(tx *gorm.DB, g *model.Guild, cols map[string]any) ([]int64, error)) (*View, []int64, error) {
	var (
		v          *View
		recipients []int64
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		g, err := loadGuild(tx, guildID)
		if err != nil {
			return err
		}
		cols := map[string]any{}
		extra, err := fn(tx, g, cols)
		if err != nil {
			return err
		}
		if err := db.UpdateVersioned(tx, &model.Guild{}, g.ID, g.Version, cols); err != nil {
			return err
		}
		if g, err = loadGuild(tx, guildID); err != nil {
			return err
		}
		if v, err = svc.view(tx, g); err != nil {
			return err
		}
		recipients, err = accountsOf(tx, guildID, extra...)
		return err
	})
	return v, recipients, err
}

func (svc *Service) updated(ctx context.Context, v *View, recipients []int64) {
	svc.pub.Publish(ctx, events.GuildUpdated, v, recipients...)
}

// Create founds a guild led by charID.
func (svc *Service) Create(ctx context.Context, charID int64, name, tag string) (*View, error) {
	name = strings.TrimSpace(name)
	if !validName(name) {
		return nil, ErrBadName
	}
	tag, ok := normalizeTag(tag)
	if !ok {
		return nil, ErrBadTag
	}
	var v *View
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		ch, err := wallet.Character(tx, charID)
		if err != nil {
			return err
		}
		if _, err := membership(tx, charID); err == nil {
			return ErrInGuild
		} else if !errors.Is(err, ErrNotInGuild) {
			return err
		}
		var n int64
		if err := tx.Model(&model.Guild{}).Where("name = ? OR tag = ?", name, tag).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrNameTaken
		}
		g := &model.Guild{
			Name:         name,
			Tag:          tag,
			Level:        1,
			LeaderID:     charID,
			Announcement: fmt.Sprintf("Welcome to %s!", name),
			MaxMembers:   svc.cfg.GuildMaxMembers,
		}
		if err := tx.Create(g).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrNameTaken
			}
			return err
		}
		if err := tx.Create(&model.GuildMember{
			GuildID:  g.ID,
			CharID:   charID,
			CharName: ch.Name,
			Role:     model.RoleLeader,
			JoinedAt: svc.now(),
		}).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return ErrInGuild
			}
			return err
		}
		v, err = svc.view(tx, g)
		return err
	})
	if err != nil {
		return nil, err
	}
	svc.logger.Info("guild created", zap.Int64("guild_id", v.ID), zap.String("tag", v.Tag), zap.Int64("leader", charID))
	return v, nil
}

// Get returns a guild by id.
func (svc *Service) Get(ctx context.Context, guildID int64) (*View, error) {
	tx := svc.db.WithContext(ctx)
	g, err := loadGuild(tx, guildID)
	if err != nil {
		return nil, err
	}
	return svc.view(tx, g)
}

// Mine returns the guild of charID.
func (svc *Service) Mine(ctx context.Context, charID int64) (*View, error) {
	tx := svc.db.WithContext(ctx)
	m, err := membership(tx, charID)
	if err != nil {
		return nil, err
	}
	g, err := loadGuild(tx, m.GuildID)
	if err != nil {
		return nil, err
	}
	return svc.view(tx, g)
}

// Join adds charID to guildID as a MEMBER.
func (svc *Service) Join(ctx context.Context, charID, guildID int64) (*View, error) {
	v, recipients, err := svc.apply(ctx, guildID, func(tx *gorm.DB, g *model.Guild, _ map[string]any) ([]int64, error) {
		ch, err := wallet.Character(tx, charID)
		if err != nil {
			return nil, err
		}
		if _, err := membership(tx, charID); err == nil {
			return nil, ErrInGuild
		} else if !errors.Is(err, ErrNotInGuild) {
			return nil, err
		}
		var n int64
		if err := tx.Model(&model.GuildMember{}).Where("guild_id = ?", g.ID).Count(&n).Error; err != nil {
			return nil, err
		}
		if int(n) >= g.MaxMembers {
			return nil, ErrFull
		}
		err = tx.Create(&model.GuildMember{
			GuildID:  g.ID,
			CharID:   charID,
			CharName: ch.Name,
			Role:     model.RoleMember,
			JoinedAt: svc.now(),
		}).Error
		if db.IsUniqueViolation(err) {
			return nil, ErrInGuild
		}
		return nil, err
	})
	if err != nil {
		return nil, err
	}
	svc.updated(ctx, v, recipients)
	return v, nil
}

// Leave removes charID from its guild. A leader may only leave when alone,
// which deletes the guild; nil is returned in that case.
func (svc *Service) Leave(ctx context.Context, charID int64) (*View, error) {
	m, err := membership(svc.db.WithContext(ctx), charID)
	if err != nil {
		return nil, err
	}
	if m.Role == model.RoleLeader {
		return nil, svc.disband(ctx, charID, m.GuildID, true)
	}
	v, recipients, err := svc.apply(ctx, m.GuildID, func(tx *gorm.DB, g *model.Guild, _ map[string]any) ([]int64, error) {
		cur, err := memberIn(tx, g.ID, charID)
		if err != nil {
			return nil, err
		}
		if cur.Role == model.RoleLeader {
			return nil, ErrLeaderLeave
		}
		return []int64{charID}, tx.Where("guild_id = ? AND char_id = ?", g.ID, charID).Delete(&model.GuildMember{}).Error
	})
	if err != nil {
		return nil, err
	}
	svc.updated(ctx, v, recipients)
	return v, nil
}

// Kick removes targetID. The actor must be VICE_LEADER or above and strictly
// outrank the target.
func (svc *Service) Kick(ctx context.Context, charID, guildID, targetID int64) (*View, error) {
	if charID == targetID {
		return nil, ErrSelf
	}
	v, recipients, err := svc.apply(ctx, guildID, func(tx *gorm.DB, g *model.Guild, _ map[string]any) ([]int64, error) {
		actor, err := memberIn(tx, g.ID, charID)
		if err != nil {
			return nil, err
		}
		t, err := target(tx, g.ID, targetID)
		if err != nil {
			return nil, err
		}
		if actor.Role.Rank() < model.RoleViceLeader.Rank() || !actor.Role.Outranks(t.Role) {
			return nil, ErrNoPermission
		}
		return []int64{targetID}, tx.Where("guild_id = ? AND char_id = ?", g.ID, targetID).Delete(&model.GuildMember{}).Error
	})
	if err != nil {
		return nil, err
	}
	svc.updated(ctx, v, recipients)
	svc.logger.Info("guild member kicked", zap.Int64("guild_id", guildID), zap.Int64("by", charID), zap.Int64("char_id", targetID))
	return v, nil
}

// Promote raises targetID one rank. The actor must strictly outrank both the
// target's current and resulting rank, so LEADER is never reached this way.
func (svc *Service) Promote(ctx context.Context, charID, guildID, targetID int64) (*View, error) {
	return svc.rank(ctx, charID, guildID, targetID, func(actor, t *model.GuildMember) (model.GuildRole, error) {
		next, ok := promotions[t.Role]
		if !ok {
			return "", ErrCannotPromote
		}
		if !actor.Role.Outranks(t.Role) || !actor.Role.Outranks(next) {
			return "", ErrNoPermission
		}
		return next, nil
	})
}

// Demote lowers targetID one rank. The actor must strictly outrank the target.
func (svc *Service) Demote(ctx context.Context, charID, guildID, targetID int64) (*View, error) {
	return svc.rank(ctx, charID, guildID, targetID, func(actor, t *model.GuildMember) (model.GuildRole, error) {
		if !actor.Role.Outranks(t.Role) {
			return "", ErrNoPermission
		}
		next, ok := demotions[t.Role]
		if !ok {
			return "", ErrCannotDemote
		}
		return next, nil
	})
}

func (svc *Service) rank(ctx context.Context, charID, guildID, targetID int64, decide func(actor, t *model.GuildMember) (model.GuildRole, error)) (*View, error) {
	if charID == targetID {
		return nil, ErrSelf
	}
	v, recipients, err := svc.apply(ctx, guildID, func(tx *gorm.DB, g *model.Guild, _ map[string]any) ([]int64, error) {
		actor, err := memberIn(tx, g.ID, charID)
		if err != nil {
			return nil, err
		}
		t, err := target(tx, g.ID, targetID)
		if err != nil {
			return nil, err
		}
		role, err := decide(actor, t)
		if err != nil {
			return nil, err
		}
		return nil, setRole(tx, t, role)
	})
	if err != nil {
		return nil, err
	}
	svc.updated(ctx, v, recipients)
	return v, nil
}

// Transfer makes targetID the leader and the old leader a VICE_LEADER, in
// one transaction.
func (svc *Service) Transfer(ctx context.Context, charID, guildID, targetID int64) (*View, error) {
	if charID == targetID {
		return nil, ErrSelf
	}
	v, recipients, err := svc.apply(ctx, guildID, func(tx *gorm.DB, g *model.Guild, cols map[string]any) ([]int64, error) {
		actor, err := memberIn(tx, g.ID, charID)
		if err != nil {
			return nil, err
		}
		if actor.Role != model.RoleLeader || g.LeaderID != charID {
			return nil, ErrNotLeader
		}
		t, err := target(tx, g.ID, targetID)
		if err != nil {
			return nil, err
		}
		if err := setRole(tx, actor, model.RoleViceLeader); err != nil {
			return nil, err
		}
		if err := setRole(tx, t, model.RoleLeader); err != nil {
			return nil, err
		}
		cols["leader_id"] = targetID
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	svc.updated(ctx, v, recipients)
	svc.audit.Log(ctx, audit.AuditEntry{
		CharID: audit.Int64(charID),
		Action: audit.ActionGuildTransfer,
		Target: fmt.Sprintf("guild:%d", guildID),
		Detail: map[string]int64{"from": charID, "to": targetID},
	})
	svc.logger.Info("guild leadership transferred", zap.Int64("guild_id", guildID), zap.Int64("from", charID), zap.Int64("to", targetID))
	return v, nil
}

// SetAnnouncement replaces the announcement. OFFICER and above.
func (svc *Service) SetAnnouncement(ctx context.Context, charID, guildID int64, text string) (*View, error) {
	if utf8.RuneCountInString(text) > maxAnnouncement {
		return nil, ErrBadAnnouncement
	}
	v, recipients, err := svc.apply(ctx, guildID, func(tx *gorm.DB, g *model.Guild, cols map[string]any) ([]int64, error) {
		actor, err := memberIn(tx, g.ID, charID)
		if err != nil {
			return nil, err
		}
		if actor.Role.Rank() < model.RoleOfficer.Rank() {
			return nil, ErrNoPermission
		}
		cols["announcement"] = text
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	svc.updated(ctx, v, recipients)
	return v, nil
}

// levelUp applies donation exp and returns the new level, exp and member cap.
func levelUp(level int, exp int64, maxMembers int) (int, int64, int) {
	for level < model.GuildMaxLevel && exp >= int64(level)*model.GuildExpPerLevelStep {
		exp -= int64(level) * model.GuildExpPerLevelStep
		level++
		maxMembers += model.GuildLevelUpSlots
	}
	return level, exp, maxMembers
}

// DonateResult reports the state after a donation.
type DonateResult struct {
	Guild        *View `json:"guild"`
	Contribution int64 `json:"contribution"`
	CharGold     int64 `json:"char_gold"`
	LeveledUp    bool  `json:"leveled_up"`
}

// Donate moves gold from the character to the guild. Every gold piece adds
// to the member's contribution and every ten add one guild exp.
func (svc *Service) Donate(ctx context.Context, charID, guildID, amount int64) (*DonateResult, error) {
	if amount <= 0 {
		return nil, ErrBadAmount
	}
	res := &DonateResult{}
	v, recipients, err := svc.apply(ctx, guildID, func(tx *gorm.DB, g *model.Guild, cols map[string]any) ([]int64, error) {
		m, err := memberIn(tx, g.ID, charID)
		if err != nil {
			return nil, err
		}
		ch, err := wallet.GoldByID(tx, charID, -amount)
		if err != nil {
			return nil, err
		}
		res.CharGold = ch.Gold
		res.Contribution = m.Contribution + amount
		if err := tx.Model(&model.GuildMember{}).
			Where("guild_id = ? AND char_id = ?", g.ID, charID).
			Update("contribution", res.Contribution).Error; err != nil {
			return nil, err
		}
		level, exp, maxMembers := levelUp(g.Level, g.Exp+amount/10, g.MaxMembers)
		res.LeveledUp = level > g.Level
		cols["gold"] = g.Gold + amount
		cols["exp"] = exp
		cols["level"] = level
		cols["max_members"] = maxMembers
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	res.Guild = v
	svc.updated(ctx, v, recipients)
	svc.audit.Log(ctx, audit.AuditEntry{
		CharID: audit.Int64(charID),
		Action: audit.ActionGuildDonate,
		Target: fmt.Sprintf("guild:%d", guildID),
		Detail: map[string]int64{"amount": amount, "level": int64(v.Level)},
	})
	return res, nil
}

// Disband deletes the guild with its roster and storage. Leader only.
func (svc *Service) Disband(ctx context.Context, charID, guildID int64) error {
	return svc.disband(ctx, charID, guildID, false)
}

// disband deletes the guild. With alone set the leader must be its only
// member, checked in the same transaction as the delete.
func (svc *Service) disband(ctx context.Context, charID, guildID int64, alone bool) error {
	var (
		recipients []int64
		g          *model.Guild
	)
	err := svc.tx(ctx, func(tx *gorm.DB) error {
		var err error
		if g, err = loadGuild(tx, guildID); err != nil {
			return err
		}
		actor, err := memberIn(tx, g.ID, charID)
		if err != nil {
			return err
		}
		if actor.Role != model.RoleLeader {
			return ErrNotLeader
		}
		if alone {
			var n int64
			if err := tx.Model(&model.GuildMember{}).Where("guild_id = ?", g.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 1 {
				return ErrLeaderLeave
			}
		}
		if recipients, err = accountsOf(tx, g.ID); err != nil {
			return err
		}
		if err := tx.Where("guild_id = ?", g.ID).Delete(&model.GuildStorageItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("guild_id = ?", g.ID).Delete(&model.GuildMember{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ? AND version = ?", g.ID, g.Version).Delete(&model.Guild{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return db.ErrStaleWrite
		}
		return nil
	})
	if err != nil {
		return err
	}
	svc.pub.Publish(ctx, events.GuildDisbanded, map[string]any{"guild_id": guildID, "name": g.Name}, recipients...)
	svc.audit.Log(ctx, audit.AuditEntry{
		CharID: audit.Int64(charID),
		Action: audit.ActionGuildDisband,
		Target: fmt.Sprintf("guild:%d", guildID),
		Detail: map[string]any{"name": g.Name, "gold": g.Gold},
	})
	svc.logger.Info("guild disbanded", zap.Int64("guild_id", guildID), zap.Int64("by", charID))
	return nil
}

// Storage lists the guild's shared items. Members only.
func (svc *Service) Storage(ctx context.Context, charID, guildID int64) ([]model.GuildStorageItem, error) {
	tx := svc.db.WithContext(ctx)
	if _, err := memberIn(tx, guildID, charID); err != nil {
		return nil, err
	}
	var items []model.GuildStorageItem
	err := tx.Where("guild_id = ?", guildID).Order("id").Find(&items).Error
	return items, err
}

// Deposit moves qty units of a bag item into guild storage. Any member.
func (svc *Service) Deposit(ctx context.Context, charID, guildID, inventoryID int64, qty int) (*model.GuildStorageItem, error) {
	if qty <= 0 {
		return nil, ErrBadQty
	}
	var stored *model.GuildStorageItem
	v, recipients, err := svc.apply(ctx, guildID, func(tx *gorm.DB, g *model.Guild, _ map[string]any) ([]int64, error) {
		if _, err := memberIn(tx, g.ID, charID); err != nil {
			return nil, err
		}
		inv, err := wallet.OwnedItem(tx, charID, inventoryID)
		if err != nil {
			return nil, err
		}
		item, err := wallet.TakeItem(tx, inv, qty)
		if err != nil {
			return nil, err
		}
		stored = &model.GuildStorageItem{GuildID: g.ID, Item: item, DepositedBy: charID}
		return nil, tx.Create(stored).Error
	})
	if err != nil {
		return nil, err
	}
	svc.updated(ctx, v, recipients)
	return stored, nil
}

// Withdraw moves qty units from guild storage into the caller's bag.
// OFFICER and above.
func (svc *Service) Withdraw(ctx context.Context, charID, guildID, storageID int64, qty int) (*model.InventoryItem, error) {
	if qty <= 0 {
		return nil, ErrBadQty
	}
	var got *model.InventoryItem
	v, recipients, err := svc.apply(ctx, guildID, func(tx *gorm.DB, g *model.Guild, _ map[string]any) ([]int64, error) {
		actor, err := memberIn(tx, g.ID, charID)
		if err != nil {
			return nil, err
		}
		if actor.Role.Rank() < model.RoleOfficer.Rank() {
			return nil, ErrNoPermission
		}
		var s model.GuildStorageItem
		err = tx.Where("id = ? AND guild_id = ?", storageID, g.ID).First(&s).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStorageItem
		}
		if err != nil {
			return nil, err
		}
		if qty > s.Qty {
			return nil, wallet.ErrItemUnavailable
		}
		if qty == s.Qty {
			err = tx.Delete(&model.GuildStorageItem{}, s.ID).Error
		} else {
			err = tx.Model(&model.GuildStorageItem{}).Where("id = ?", s.ID).Update("qty", s.Qty-qty).Error
		}
		if err != nil {
			return nil, err
		}
		got = &model.InventoryItem{CharID: charID, Item: s.Item.Split(qty)}
		return nil, tx.Create(got).Error
	})
	if err != nil {
		return nil, err
	}
	svc.updated(ctx, v, recipients)
	return got, nil
}
