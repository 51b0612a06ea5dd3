package rest

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/config"
	"github.com/kasuganosora/kadim/server/db"
	mw "github.com/kasuganosora/kadim/server/middleware"
	"github.com/kasuganosora/kadim/server/model"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	errMaxCharacters = apperr.Validation("max characters reached")
	errNameTaken     = apperr.Validation("character name already taken")
	errBadClass      = apperr.Validation("invalid class")
	errCharBusy      = apperr.Conflict("leave your party, guild and trades before deleting this character")
	errTrading       = apperr.Conflict("inventory is locked while a trade is open")
	errSlotTaken     = apperr.Validation("equipment slot used twice")
	errSlotKind      = apperr.Validation("item cannot be worn in that slot")
)

// CharacterHandler handles character REST endpoints.
type CharacterHandler struct {
	db     *gorm.DB
	game   config.GameConfig
	logger *zap.Logger
}

// NewCharacterHandler creates a new CharacterHandler.
func NewCharacterHandler(db *gorm.DB, game config.GameConfig, logger *zap.Logger) *CharacterHandler {
	return &CharacterHandler{db: db, game: game, logger: logger}
}

func (h *CharacterHandler) owned(c *gin.Context) (*model.Character, error) {
	id, err := paramID(c, "id")
	if err != nil {
		return nil, err
	}
	var ch model.Character
	err = h.db.WithContext(c.Request.Context()).
		Where("id = ? AND account_id = ?", id, mw.GetAccountID(c)).First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errNoCharacter
	}
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

// List handles GET /api/character.
func (h *CharacterHandler) List(c *gin.Context) {
	var chars []model.Character
	err := h.db.WithContext(c.Request.Context()).
		Where("account_id = ?", mw.GetAccountID(c)).
		Order("last_played_at DESC, id DESC").Find(&chars).Error
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"characters": chars})
}

type createCharacterRequest struct {
	Name  string               `json:"name"  binding:"required,min=3,max=16,alphanum"`
	Class model.CharacterClass `json:"class" binding:"required"`
}

// Create handles POST /api/character.
func (h *CharacterHandler) Create(c *gin.Context) {
	accountID := mw.GetAccountID(c)

	var req createCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ch, ok := model.NewCharacter(accountID, req.Name, req.Class, time.Now().UTC())
	if !ok {
		respondErr(c, h.logger, errBadClass)
		return
	}

	limit := h.game.MaxCharacters
	if limit <= 0 {
		limit = 3
	}
	err := h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&model.Character{}).Where("account_id = ?", accountID).Count(&n).Error; err != nil {
			return err
		}
		if n >= int64(limit) {
			return errMaxCharacters
		}
		if err := tx.Create(ch).Error; err != nil {
			if db.IsUniqueViolation(err) {
				return errNameTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusCreated, ch)
}

// Get handles GET /api/character/:id. The response carries the bag and the
// worn equipment.
func (h *CharacterHandler) Get(c *gin.Context) {
	ch, err := h.owned(c)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var items []model.InventoryItem
	if err := h.db.WithContext(c.Request.Context()).Where("char_id = ?", ch.ID).Order("id").Find(&items).Error; err != nil {
		respondErr(c, h.logger, err)
		return
	}
	bag := make([]model.InventoryItem, 0, len(items))
	equipment := make(map[model.EquipSlot]model.InventoryItem)
	for _, it := range items {
		if it.Equipped() {
			equipment[it.EquipSlot] = it
		} else {
			bag = append(bag, it)
		}
	}
	c.JSON(http.StatusOK, gin.H{"character": ch, "inventory": bag, "equipment": equipment})
}

type updateCharacterRequest struct {
	HP   *int     `json:"hp"   binding:"omitempty,min=0"`
	Mana *int     `json:"mana" binding:"omitempty,min=0"`
	PosX *float64 `json:"pos_x"`
	PosY *float64 `json:"pos_y"`
	PosZ *float64 `json:"pos_z"`
	Zone *int     `json:"zone" binding:"omitempty,min=1"`
}

func vitals(ch *model.Character, hp, mana *int, cols map[string]any) {
	if hp != nil {
		cols["hp"] = min(*hp, ch.MaxHP)
	}
	if mana != nil {
		cols["mana"] = min(*mana, ch.MaxMana)
	}
}

func placement(x, y, z *float64, zone *int, cols map[string]any) {
	if x != nil {
		cols["pos_x"] = *x
	}
	if y != nil {
		cols["pos_y"] = *y
	}
	if z != nil {
		cols["pos_z"] = *z
	}
	if zone != nil {
		cols["zone"] = *zone
	}
}

// Update handles PUT /api/character/:id. Only vitals and placement may be
// changed here; progression goes through save-progress.
func (h *CharacterHandler) Update(c *gin.Context) {
	ch, err := h.owned(c)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var req updateCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	cols := map[string]any{}
	vitals(ch, req.HP, req.Mana, cols)
	placement(req.PosX, req.PosY, req.PosZ, req.Zone, cols)
	if len(cols) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "nothing to update"})
		return
	}
	err = db.RunTx(c.Request.Context(), h.db, h.game.TxRetries, func(tx *gorm.DB) error {
		cur, err := reloadCharacter(tx, ch.ID)
		if err != nil {
			return err
		}
		return db.UpdateVersioned(tx, &model.Character{}, cur.ID, cur.Version, cols)
	})
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var fresh model.Character
	if err := h.db.First(&fresh, ch.ID).Error; err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, fresh)
}

type savedItem struct {
	model.Item
	EquipSlot model.EquipSlot `json:"equip_slot"`
}

type saveProgressRequest struct {
	HP        *int        `json:"hp"    binding:"omitempty,min=0"`
	Mana      *int        `json:"mana"  binding:"omitempty,min=0"`
	PosX      *float64    `json:"pos_x"`
	PosY      *float64    `json:"pos_y"`
	PosZ      *float64    `json:"pos_z"`
	Zone      *int        `json:"zone"  binding:"omitempty,min=1"`
	Exp       *int64      `json:"exp"   binding:"omitempty,min=0"`
	Level     *int        `json:"level" binding:"omitempty,min=1"`
	Gold      *int64      `json:"gold"  binding:"omitempty,min=0"`
	Inventory []savedItem `json:"inventory"`
}

// validateSaved checks each record and that no slot is worn twice.
func validateSaved(items []savedItem) error {
	worn := map[model.EquipSlot]bool{}
	for i := range items {
		if err := items[i].Item.Validate(); err != nil {
			return apperr.Validation("%s", err.Error())
		}
		s := items[i].EquipSlot
		if s == model.SlotNone {
			continue
		}
		if slot, ok := items[i].Kind.Slot(); !ok || slot != s {
			return errSlotKind
		}
		if worn[s] {
			return errSlotTaken
		}
		worn[s] = true
	}
	return nil
}

// SaveProgress handles POST /api/character/:id/save-progress. When inventory
// is present it replaces the bag and equipment in the same transaction.
func (h *CharacterHandler) SaveProgress(c *gin.Context) {
	ch, err := h.owned(c)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var req saveProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.Level != nil && *req.Level > model.MaxCharLevel {
		c.JSON(http.StatusBadRequest, gin.H{"error": "level out of range"})
		return
	}
	if err := validateSaved(req.Inventory); err != nil {
		respondErr(c, h.logger, err)
		return
	}

	err = db.RunTx(c.Request.Context(), h.db, h.game.TxRetries, func(tx *gorm.DB) error {
		cur, err := reloadCharacter(tx, ch.ID)
		if err != nil {
			return err
		}
		cols := map[string]any{"last_played_at": time.Now().UTC()}
		vitals(cur, req.HP, req.Mana, cols)
		placement(req.PosX, req.PosY, req.PosZ, req.Zone, cols)
		if req.Exp != nil {
			cols["exp"] = *req.Exp
		}
		if req.Level != nil {
			cols["level"] = *req.Level
		}
		if req.Gold != nil {
			cols["gold"] = *req.Gold
		}
		if err := db.UpdateVersioned(tx, &model.Character{}, cur.ID, cur.Version, cols); err != nil {
			return err
		}
		if req.Inventory == nil {
			return nil
		}
		if busy, err := inOpenTrade(tx, cur.ID); err != nil {
			return err
		} else if busy {
			return errTrading
		}
		if err := tx.Where("char_id = ?", cur.ID).Delete(&model.InventoryItem{}).Error; err != nil {
			return err
		}
		for _, it := range req.Inventory {
			inv := model.InventoryItem{CharID: cur.ID, Item: it.Item, EquipSlot: it.EquipSlot}
			if err := tx.Create(&inv).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "progress saved"})
}

type deleteCharacterRequest struct {
	Password string `json:"password" binding:"required"`
}

// Delete handles DELETE /api/character/:id. The character must not be in a
// party, guild or open trade; its bag and received mail go with it.
func (h *CharacterHandler) Delete(c *gin.Context) {
	ch, err := h.owned(c)
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	var req deleteCharacterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password required"})
		return
	}

	// Verify the account password.
	var acc model.Account
	if err := h.db.First(&acc, ch.AccountID).Error; err != nil {
		respondErr(c, h.logger, err)
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "wrong password"})
		return
	}

	err = h.db.WithContext(c.Request.Context()).Transaction(func(tx *gorm.DB) error {
		for _, m := range []any{&model.PartyMember{}, &model.GuildMember{}} {
			var n int64
			if err := tx.Model(m).Where("char_id = ?", ch.ID).Count(&n).Error; err != nil {
				return err
			}
			if n > 0 {
				return errCharBusy
			}
		}
		if busy, err := inOpenTrade(tx, ch.ID); err != nil {
			return err
		} else if busy {
			return errCharBusy
		}
		mails := tx.Model(&model.Mail{}).Select("id").Where("recipient_id = ?", ch.ID)
		if err := tx.Where("mail_id IN (?)", mails).Delete(&model.MailItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("recipient_id = ?", ch.ID).Delete(&model.Mail{}).Error; err != nil {
			return err
		}
		if err := tx.Where("char_id = ?", ch.ID).Delete(&model.InventoryItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Character{}, ch.ID).Error
	})
	if err != nil {
		respondErr(c, h.logger, err)
		return
	}
	h.logger.Info("character deleted", zap.Int64("char_id", ch.ID), zap.Int64("account_id", ch.AccountID))
	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

func reloadCharacter(tx *gorm.DB, id int64) (*model.Character, error) {
	var ch model.Character
	if err := tx.First(&ch, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errNoCharacter
		}
		return nil, err
	}
	return &ch, nil
}

func inOpenTrade(tx *gorm.DB, charID int64) (bool, error) {
	var n int64
	err := tx.Model(&model.Trade{}).
		Where("(initiator_id = ? OR target_id = ?) AND status IN ?", charID, charID,
			[]model.TradeStatus{model.TradePending, model.TradeConfirmed}).
		Count(&n).Error
	return n > 0, err
}
