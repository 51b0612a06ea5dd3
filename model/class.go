package model

// CharacterClass is one of the playable classes.
type CharacterClass string

const (
	ClassWarrior       CharacterClass = "warrior"
	ClassArcticKnight  CharacterClass = "arctic_knight"
	ClassGaleGlaive    CharacterClass = "gale_glaive"
	ClassArcher        CharacterClass = "archer"
	ClassArchmage      CharacterClass = "archmage"
	ClassBard          CharacterClass = "bard"
	ClassCleric        CharacterClass = "cleric"
	ClassMartialArtist CharacterClass = "martial_artist"
	ClassMonk          CharacterClass = "monk"
	ClassReaper        CharacterClass = "reaper"
)

// ClassStats are the level-1 stats of a class.
type ClassStats struct {
	HP           int
	Mana         int
	Strength     int
	Defense      int
	Intelligence int
	Dexterity    int
}

var classStats = map[CharacterClass]ClassStats{
	ClassWarrior:       {HP: 150, Mana: 50, Strength: 15, Defense: 12, Intelligence: 5, Dexterity: 8},
	ClassArcticKnight:  {HP: 140, Mana: 70, Strength: 12, Defense: 14, Intelligence: 8, Dexterity: 6},
	ClassGaleGlaive:    {HP: 120, Mana: 60, Strength: 14, Defense: 8, Intelligence: 6, Dexterity: 12},
	ClassArcher:        {HP: 100, Mana: 60, Strength: 8, Defense: 6, Intelligence: 8, Dexterity: 18},
	ClassArchmage:      {HP: 80, Mana: 150, Strength: 5, Defense: 5, Intelligence: 20, Dexterity: 5},
	ClassBard:          {HP: 90, Mana: 120, Strength: 6, Defense: 6, Intelligence: 15, Dexterity: 8},
	ClassCleric:        {HP: 110, Mana: 130, Strength: 8, Defense: 10, Intelligence: 16, Dexterity: 6},
	ClassMartialArtist: {HP: 130, Mana: 40, Strength: 16, Defense: 8, Intelligence: 5, Dexterity: 11},
	ClassMonk:          {HP: 120, Mana: 80, Strength: 10, Defense: 10, Intelligence: 10, Dexterity: 10},
	ClassReaper:        {HP: 110, Mana: 70, Strength: 14, Defense: 6, Intelligence: 10, Dexterity: 10},
}

// StartingStats returns the level-1 stats for c.
func StartingStats(c CharacterClass) (ClassStats, bool) {
	s, ok := classStats[c]
	return s, ok
}

func (c CharacterClass) Valid() bool {
	_, ok := classStats[c]
	return ok
}
