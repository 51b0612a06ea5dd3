// Package wallet applies currency changes to characters and accounts with
// versioned writes. Every function must be called inside a transaction.
package wallet

import (
	"errors"

	"github.com/kasuganosora/kadim/server/apperr"
	"github.com/kasuganosora/kadim/server/db"
	"github.com/kasuganosora/kadim/server/model"
	"gorm.io/gorm"
)

var (
	ErrInsufficientGold = apperr.Validation("insufficient gold")
	ErrInsufficientGems = apperr.Validation("insufficient gems")
	ErrCharNotFound     = apperr.NotFound("character not found")
	ErrAccountNotFound  = apperr.NotFound("account not found")
	// ErrItemUnavailable reports an item that is missing, equipped or short.
	ErrItemUnavailable = apperr.Validation("item not available")
)

// Character loads a character row inside tx.
func Character(tx *gorm.DB, charID int64) (*model.Character, error) {
	var ch model.Character
	if err := tx.First(&ch, charID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCharNotFound
		}
		return nil, err
	}
	return &ch, nil
}

// Account loads an account row inside tx.
func Account(tx *gorm.DB, accountID int64) (*model.Account, error) {
	var acc model.Account
	if err := tx.First(&acc, accountID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// AdjustGold adds delta (which may be negative) to ch's gold. ch must be the
// row as read in the same transaction; it is updated in place.
func AdjustGold(tx *gorm.DB, ch *model.Character, delta int64) error {
	return Grant(tx, ch, delta, 0)
}

// Grant adds gold and exp to ch. Gold may go down but never below zero.
func Grant(tx *gorm.DB, ch *model.Character, gold, exp int64) error {
	if gold == 0 && exp == 0 {
		return nil
	}
	if ch.Gold+gold < 0 {
		return ErrInsufficientGold
	}
	if err := db.UpdateVersioned(tx, &model.Character{}, ch.ID, ch.Version, map[string]any{
		"gold": ch.Gold + gold,
		"exp":  ch.Exp + exp,
	}); err != nil {
		return err
	}
	ch.Gold += gold
	ch.Exp += exp
	ch.Version++
	return nil
}

// AdjustGems adds delta to acc's gems, never below zero.
func AdjustGems(tx *gorm.DB, acc *model.Account, delta int64) error {
	if delta == 0 {
		return nil
	}
	if acc.Gems+delta < 0 {
		return ErrInsufficientGems
	}
	if err := db.UpdateVersioned(tx, &model.Account{}, acc.ID, acc.Version, map[string]any{
		"gems": acc.Gems + delta,
	}); err != nil {
		return err
	}
	acc.Gems += delta
	acc.Version++
	return nil
}

// GoldByID loads the character and adjusts its gold.
func GoldByID(tx *gorm.DB, charID, delta int64) (*model.Character, error) {
	ch, err := Character(tx, charID)
	if err != nil {
		return nil, err
	}
	return ch, AdjustGold(tx, ch, delta)
}

// GemsByID loads the account and adjusts its gems.
func GemsByID(tx *gorm.DB, accountID, delta int64) (*model.Account, error) {
	acc, err := Account(tx, accountID)
	if err != nil {
		return nil, err
	}
	return acc, AdjustGems(tx, acc, delta)
}

// MoveItem transfers qty units of inv to toCharID. A whole record changes
// owner; a partial quantity is split into a new record. inv must be the row
// as read in the same transaction.
func MoveItem(tx *gorm.DB, inv *model.InventoryItem, toCharID int64, qty int) (*model.InventoryItem, error) {
	if qty <= 0 || qty > inv.Qty || inv.Equipped() {
		return nil, ErrItemUnavailable
	}
	if qty == inv.Qty {
		res := tx.Model(&model.InventoryItem{}).
			Where("id = ? AND char_id = ? AND qty = ? AND equip_slot = ''", inv.ID, inv.CharID, inv.Qty).
			Update("char_id", toCharID)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, db.ErrStaleWrite
		}
		moved := *inv
		moved.CharID = toCharID
		return &moved, nil
	}
	res, err := TakeItem(tx, inv, qty)
	if err != nil {
		return nil, err
	}
	split := &model.InventoryItem{CharID: toCharID, Item: res}
	if err := tx.Create(split).Error; err != nil {
		return nil, err
	}
	return split, nil
}

// TakeItem removes qty units from inv and returns the removed part. The
// record is deleted when it empties.
func TakeItem(tx *gorm.DB, inv *model.InventoryItem, qty int) (model.Item, error) {
	if qty <= 0 || qty > inv.Qty || inv.Equipped() {
		return model.Item{}, ErrItemUnavailable
	}
	var res *gorm.DB
	if qty == inv.Qty {
		res = tx.Where("id = ? AND char_id = ? AND qty = ? AND equip_slot = ''", inv.ID, inv.CharID, inv.Qty).
			Delete(&model.InventoryItem{})
	} else {
		res = tx.Model(&model.InventoryItem{}).
			Where("id = ? AND char_id = ? AND qty = ? AND equip_slot = ''", inv.ID, inv.CharID, inv.Qty).
			Update("qty", inv.Qty-qty)
	}
	if res.Error != nil {
		return model.Item{}, res.Error
	}
	if res.RowsAffected == 0 {
		return model.Item{}, db.ErrStaleWrite
	}
	inv.Qty -= qty
	return inv.Item.Split(qty), nil
}

// OwnedItem loads an inventory record that belongs to charID.
func OwnedItem(tx *gorm.DB, charID, invID int64) (*model.InventoryItem, error) {
	var inv model.InventoryItem
	err := tx.Where("id = ? AND char_id = ?", invID, charID).First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrItemUnavailable
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
