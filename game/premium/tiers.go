package premium

import (
	"math"

	"github.com/kasuganosora/kadim/server/model"
)

// Benefits describes what a tier grants.
type Benefits struct {
	ExpMultiplier   float64  `json:"exp_multiplier"`
	GoldMultiplier  float64  `json:"gold_multiplier"`
	DropRateBonus   int      `json:"drop_rate_bonus"`
	InventorySlots  int      `json:"inventory_slots"`
	StorageSlots    int      `json:"storage_slots"`
	DailyGems       int64    `json:"daily_gems"`
	NameColor       string   `json:"name_color"`
	Badge           string   `json:"badge"`
	PriorityQueue   bool     `json:"priority_queue"`
	Emotes          []string `json:"emotes"`
	DiscountPercent int      `json:"discount_percent"`
}

// Tiers lists the benefits of every paid tier.
var Tiers = map[model.PremiumTier]Benefits{
	model.TierBronze: {
		ExpMultiplier: 1.1, GoldMultiplier: 1.1, DropRateBonus: 5,
		InventorySlots: 10, StorageSlots: 20, DailyGems: 5,
		NameColor: "#CD7F32", Badge: "bronze",
		Emotes:          []string{"bronze_wave"},
		DiscountPercent: 5,
	},
	model.TierSilver: {
		ExpMultiplier: 1.25, GoldMultiplier: 1.2, DropRateBonus: 10,
		InventorySlots: 20, StorageSlots: 50, DailyGems: 15,
		NameColor: "#C0C0C0", Badge: "silver", PriorityQueue: true,
		Emotes:          []string{"silver_wave", "silver_dance"},
		DiscountPercent: 10,
	},
	model.TierGold: {
		ExpMultiplier: 1.5, GoldMultiplier: 1.5, DropRateBonus: 20,
		InventorySlots: 40, StorageSlots: 100, DailyGems: 30,
		NameColor: "#FFD700", Badge: "gold", PriorityQueue: true,
		Emotes:          []string{"gold_wave", "gold_dance", "gold_fireworks"},
		DiscountPercent: 15,
	},
	model.TierDiamond: {
		ExpMultiplier: 2.0, GoldMultiplier: 2.0, DropRateBonus: 35,
		InventorySlots: 60, StorageSlots: 200, DailyGems: 50,
		NameColor: "#B9F2FF", Badge: "diamond", PriorityQueue: true,
		Emotes:          []string{"diamond_wave", "diamond_dance", "diamond_fireworks", "diamond_aura"},
		DiscountPercent: 25,
	},
}

// Package is a purchasable tier for a number of days, priced in gems.
type Package struct {
	Tier  model.PremiumTier `json:"tier"`
	Days  int               `json:"days"`
	Price int64             `json:"price"`
	Label string            `json:"label"`
}

var Packages = []Package{
	{Tier: model.TierBronze, Days: 7, Price: 100, Label: "1 week"},
	{Tier: model.TierBronze, Days: 30, Price: 350, Label: "1 month"},
	{Tier: model.TierSilver, Days: 7, Price: 200, Label: "1 week"},
	{Tier: model.TierSilver, Days: 30, Price: 700, Label: "1 month"},
	{Tier: model.TierGold, Days: 7, Price: 400, Label: "1 week"},
	{Tier: model.TierGold, Days: 30, Price: 1400, Label: "1 month"},
	{Tier: model.TierDiamond, Days: 7, Price: 700, Label: "1 week"},
	{Tier: model.TierDiamond, Days: 30, Price: 2500, Label: "1 month"},
}

// FindPackage returns the package for tier and days.
func FindPackage(tier model.PremiumTier, days int) (Package, bool) {
	for _, p := range Packages {
		if p.Tier == tier && p.Days == days {
			return p, true
		}
	}
	return Package{}, false
}

// BenefitsOf returns the benefits of tier, or nil for no tier.
func BenefitsOf(tier model.PremiumTier) *Benefits {
	b, ok := Tiers[tier]
	if !ok {
		return nil
	}
	return &b
}

// Multipliers returns the gold and exp reward multipliers of tier.
func Multipliers(tier model.PremiumTier) (gold, exp float64) {
	if b, ok := Tiers[tier]; ok {
		return b.GoldMultiplier, b.ExpMultiplier
	}
	return 1, 1
}

// Scale applies a multiplier to an amount, rounding down.
func Scale(amount int64, mult float64) int64 {
	return int64(math.Floor(float64(amount)*mult + 1e-9))
}
