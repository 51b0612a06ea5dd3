package model

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ItemKind is the closed set of item categories. Equipment kinds occupy
// exactly one equipment slot of the same name.
type ItemKind string

const (
	KindWeapon     ItemKind = "weapon"
	KindArmor      ItemKind = "armor"
	KindHelmet     ItemKind = "helmet"
	KindPants      ItemKind = "pants"
	KindBoots      ItemKind = "boots"
	KindGloves     ItemKind = "gloves"
	KindNecklace   ItemKind = "necklace"
	KindEarring    ItemKind = "earring"
	KindRing       ItemKind = "ring"
	KindWings      ItemKind = "wings"
	KindPet        ItemKind = "pet"
	KindConsumable ItemKind = "consumable"
	KindMaterial   ItemKind = "material"
	KindQuest      ItemKind = "quest"
)

// EquipSlot names a fixed equipment slot on a character.
type EquipSlot string

const (
	SlotNone     EquipSlot = ""
	SlotWeapon   EquipSlot = "weapon"
	SlotArmor    EquipSlot = "armor"
	SlotHelmet   EquipSlot = "helmet"
	SlotPants    EquipSlot = "pants"
	SlotBoots    EquipSlot = "boots"
	SlotGloves   EquipSlot = "gloves"
	SlotNecklace EquipSlot = "necklace"
	SlotEarring  EquipSlot = "earring"
	SlotRing     EquipSlot = "ring"
	SlotWings    EquipSlot = "wings"
	SlotPet      EquipSlot = "pet"
)

// EquipSlots lists every slot in display order.
var EquipSlots = []EquipSlot{
	SlotWeapon, SlotArmor, SlotHelmet, SlotPants, SlotBoots, SlotGloves,
	SlotNecklace, SlotEarring, SlotRing, SlotWings, SlotPet,
}

var kindSlot = map[ItemKind]EquipSlot{
	KindWeapon:     SlotWeapon,
	KindArmor:      SlotArmor,
	KindHelmet:     SlotHelmet,
	KindPants:      SlotPants,
	KindBoots:      SlotBoots,
	KindGloves:     SlotGloves,
	KindNecklace:   SlotNecklace,
	KindEarring:    SlotEarring,
	KindRing:       SlotRing,
	KindWings:      SlotWings,
	KindPet:        SlotPet,
	KindConsumable: SlotNone,
	KindMaterial:   SlotNone,
	KindQuest:      SlotNone,
}

func (k ItemKind) Valid() bool {
	_, ok := kindSlot[k]
	return ok
}

// Slot returns the equipment slot for k, or false if k cannot be equipped.
func (k ItemKind) Slot() (EquipSlot, bool) {
	s, ok := kindSlot[k]
	return s, ok && s != SlotNone
}

// Stackable reports whether records of kind k may carry Qty > 1.
func (k ItemKind) Stackable() bool {
	return k == KindConsumable || k == KindMaterial
}

func (s EquipSlot) Valid() bool {
	for _, v := range EquipSlots {
		if v == s {
			return true
		}
	}
	return false
}

type Rarity string

const (
	RarityCommon    Rarity = "common"
	RarityUncommon  Rarity = "uncommon"
	RarityRare      Rarity = "rare"
	RarityEpic      Rarity = "epic"
	RarityLegendary Rarity = "legendary"
	RarityAncient   Rarity = "ancient"
)

func (r Rarity) Valid() bool {
	switch r {
	case RarityCommon, RarityUncommon, RarityRare, RarityEpic, RarityLegendary, RarityAncient:
		return true
	}
	return false
}

// ItemStats is the fixed stat block carried by an item.
type ItemStats struct {
	Damage       int `json:"damage,omitempty"`
	CritChance   int `json:"crit_chance,omitempty"`
	Defense      int `json:"defense,omitempty"`
	HP           int `json:"hp,omitempty"`
	Mana         int `json:"mana,omitempty"`
	Strength     int `json:"strength,omitempty"`
	Intelligence int `json:"intelligence,omitempty"`
	Dexterity    int `json:"dexterity,omitempty"`
}

// Item is the shape shared by every place an item record can live:
// a character's bag, a guild's storage, or a mail in escrow.
type Item struct {
	TemplateID string                        `gorm:"size:64;not null" json:"template_id"`
	Name       string                        `gorm:"size:64;not null" json:"name"`
	Kind       ItemKind                      `gorm:"size:16;not null" json:"kind"`
	Rarity     Rarity                        `gorm:"size:16;not null" json:"rarity"`
	Tier       int                           `gorm:"not null;default:1" json:"tier"`
	LevelReq   int                           `gorm:"not null;default:0" json:"level_req"`
	ClassReq   CharacterClass                `gorm:"size:24" json:"class_req,omitempty"`
	Stats      datatypes.JSONType[ItemStats] `json:"stats"`
	Qty        int                           `gorm:"not null" json:"qty"`
}

var (
	ErrItemKind   = errors.New("unknown item kind")
	ErrItemRarity = errors.New("unknown item rarity")
	ErrItemQty    = errors.New("invalid item quantity")
	ErrItemName   = errors.New("item name and template are required")
	ErrItemClass  = errors.New("unknown class requirement")
)

// Validate checks the item against the closed kind and rarity sets.
func (it *Item) Validate() error {
	if !it.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrItemKind, it.Kind)
	}
	if it.Rarity == "" {
		it.Rarity = RarityCommon
	}
	if !it.Rarity.Valid() {
		return fmt.Errorf("%w: %q", ErrItemRarity, it.Rarity)
	}
	if it.Name == "" || it.TemplateID == "" {
		return ErrItemName
	}
	if it.ClassReq != "" && !it.ClassReq.Valid() {
		return fmt.Errorf("%w: %q", ErrItemClass, it.ClassReq)
	}
	if it.Qty == 0 {
		it.Qty = 1
	}
	if it.Qty < 0 || (it.Qty > 1 && !it.Kind.Stackable()) {
		return ErrItemQty
	}
	if it.Tier <= 0 {
		it.Tier = 1
	}
	return nil
}

// Split returns a copy of it carrying qty units.
func (it Item) Split(qty int) Item {
	cp := it
	cp.Qty = qty
	return cp
}

// InventoryItem is one item record in a character's bag. EquipSlot is set
// while the item is worn.
type InventoryItem struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	CharID    int64     `gorm:"index:idx_inv_char;not null" json:"char_id"`
	Item      `gorm:"embedded"`
	EquipSlot EquipSlot `gorm:"size:16;not null;default:''" json:"equip_slot,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Equipped reports whether the record currently occupies a slot.
func (i *InventoryItem) Equipped() bool { return i.EquipSlot != SlotNone }
