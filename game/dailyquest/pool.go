package dailyquest

import "github.com/kasuganosora/kadim/server/model"

// Quest types reported through Update and Track.
const (
	TypeKillMobs        = "kill_mobs"
	TypeUseSkills       = "use_skills"
	TypeCollectGold     = "collect_gold"
	TypeCompleteDungeon = "complete_dungeon"
	TypeWinDuel         = "win_duel"
	TypeJoinParty       = "join_party"
	TypeSendMail        = "send_mail"
	TypeCraftItem       = "craft_item"
)

// Template is a quest that can be drawn for the day.
type Template struct {
	ID          string
	Type        string
	Name        string
	Description string
	Target      int
	Reward      model.QuestReward
	MinLevel    int
}

func reward(gold, exp, gems int64) model.QuestReward {
	return model.QuestReward{Gold: gold, Exp: exp, Gems: gems}
}

// Pool is the fixed set of daily quests.
var Pool = []Template{
	{ID: "kill_10_mobs", Type: TypeKillMobs, Name: "Slay 10 Monsters", Description: "Defeat 10 monsters", Target: 10, Reward: reward(500, 200, 0)},
	{ID: "kill_25_mobs", Type: TypeKillMobs, Name: "Slay 25 Monsters", Description: "Defeat 25 monsters", Target: 25, Reward: reward(1000, 400, 0)},
	{ID: "kill_50_mobs", Type: TypeKillMobs, Name: "Slay 50 Monsters", Description: "Defeat 50 monsters", Target: 50, Reward: reward(2000, 800, 0), MinLevel: 5},

	{ID: "use_10_skills", Type: TypeUseSkills, Name: "Use 10 Skills", Description: "Cast skills 10 times", Target: 10, Reward: reward(300, 150, 0)},
	{ID: "use_25_skills", Type: TypeUseSkills, Name: "Use 25 Skills", Description: "Cast skills 25 times", Target: 25, Reward: reward(600, 300, 0)},

	{ID: "collect_1000_gold", Type: TypeCollectGold, Name: "Collect 1000 Gold", Description: "Earn 1000 gold", Target: 1000, Reward: reward(0, 300, 5)},
	{ID: "collect_5000_gold", Type: TypeCollectGold, Name: "Collect 5000 Gold", Description: "Earn 5000 gold", Target: 5000, Reward: reward(0, 600, 10), MinLevel: 5},

	{ID: "complete_dungeon", Type: TypeCompleteDungeon, Name: "Clear a Dungeon", Description: "Complete one dungeon", Target: 1, Reward: reward(1500, 500, 5), MinLevel: 10},

	{ID: "win_1_duel", Type: TypeWinDuel, Name: "Win a Duel", Description: "Win one duel", Target: 1, Reward: reward(1000, 300, 0), MinLevel: 7},
	{ID: "win_3_duels", Type: TypeWinDuel, Name: "Win 3 Duels", Description: "Win three duels", Target: 3, Reward: reward(3000, 800, 10), MinLevel: 10},

	{ID: "join_party", Type: TypeJoinParty, Name: "Join a Party", Description: "Join a party", Target: 1, Reward: reward(500, 200, 0)},
	{ID: "send_mail", Type: TypeSendMail, Name: "Send a Letter", Description: "Send mail to another player", Target: 1, Reward: reward(200, 100, 0)},

	{ID: "craft_1_item", Type: TypeCraftItem, Name: "Craft an Item", Description: "Craft one item", Target: 1, Reward: reward(500, 250, 0)},
	{ID: "craft_3_items", Type: TypeCraftItem, Name: "Craft 3 Items", Description: "Craft three items", Target: 3, Reward: reward(1500, 600, 0), MinLevel: 5},
}

// Bonus is paid once all of the day's quests are complete.
var Bonus = reward(5000, 2000, 25)

// ValidType reports whether typ is a quest type of the pool.
func ValidType(typ string) bool {
	for _, t := range Pool {
		if t.Type == typ {
			return true
		}
	}
	return false
}

// draw picks up to count templates available at level. Distinct types are
// preferred until half of the available templates have been picked.
func draw(level, count int, shuffle func(n int, swap func(i, j int))) []Template {
	avail := make([]Template, 0, len(Pool))
	for _, t := range Pool {
		if t.MinLevel <= level {
			avail = append(avail, t)
		}
	}
	shuffle(len(avail), func(i, j int) { avail[i], avail[j] = avail[j], avail[i] })

	picked := make([]Template, 0, count)
	taken := make(map[string]bool, count)
	types := make(map[string]bool, count)
	for _, t := range avail {
		if len(picked) >= count {
			break
		}
		if types[t.Type] && len(picked)*2 < len(avail) {
			continue
		}
		picked = append(picked, t)
		taken[t.ID] = true
		types[t.Type] = true
	}
	for _, t := range avail {
		if len(picked) >= count {
			break
		}
		if !taken[t.ID] {
			picked = append(picked, t)
			taken[t.ID] = true
		}
	}
	return picked
}

func entriesOf(templates []Template) []model.DailyQuestEntry {
	out := make([]model.DailyQuestEntry, len(templates))
	for i, t := range templates {
		out[i] = model.DailyQuestEntry{
			QuestID:     t.ID,
			Name:        t.Name,
			Description: t.Description,
			Type:        t.Type,
			Target:      t.Target,
			Reward:      t.Reward,
		}
	}
	return out
}
