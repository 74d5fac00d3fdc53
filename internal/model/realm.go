package model

import (
	"cmp"
	"fmt"
)

// MaxSubTier — количество под-ступеней внутри одного великого царства.
const MaxSubTier = 4

// RealmPosition — ступень лестницы царств (tier, subTier).
// Позиции полностью упорядочены: сначала по Tier, затем по SubTier.
type RealmPosition struct {
	Tier    int32 `json:"tier"`
	SubTier int32 `json:"sub_tier"`
}

// Pos is a shorthand constructor for RealmPosition.
func Pos(tier, subTier int32) RealmPosition {
	return RealmPosition{Tier: tier, SubTier: subTier}
}

// Valid reports whether the position lies on a well-formed ladder rung.
func (p RealmPosition) Valid() bool {
	return p.Tier >= 1 && p.SubTier >= 1 && p.SubTier <= MaxSubTier
}

// Next возвращает следующую позицию: subTier+1, после MaxSubTier — (tier+1, 1).
func (p RealmPosition) Next() RealmPosition {
	if p.SubTier >= MaxSubTier {
		return RealmPosition{Tier: p.Tier + 1, SubTier: 1}
	}
	return RealmPosition{Tier: p.Tier, SubTier: p.SubTier + 1}
}

// Compare returns -1, 0 or +1 following the ladder order.
func (p RealmPosition) Compare(o RealmPosition) int {
	if c := cmp.Compare(p.Tier, o.Tier); c != 0 {
		return c
	}
	return cmp.Compare(p.SubTier, o.SubTier)
}

// Less reports whether p is strictly below o on the ladder.
func (p RealmPosition) Less(o RealmPosition) bool {
	return p.Compare(o) < 0
}

// String returns "tier-subTier", e.g. "2-4".
func (p RealmPosition) String() string {
	return fmt.Sprintf("%d-%d", p.Tier, p.SubTier)
}

// StatBonuses — бонусы характеристик, которые даёт царство.
type StatBonuses struct {
	HP      int64 `json:"hp"`
	MP      int64 `json:"mp"`
	Attack  int64 `json:"attack"`
	Defense int64 `json:"defense"`
}

// Add returns the element-wise sum of two bonus sets.
func (b StatBonuses) Add(o StatBonuses) StatBonuses {
	return StatBonuses{
		HP:      b.HP + o.HP,
		MP:      b.MP + o.MP,
		Attack:  b.Attack + o.Attack,
		Defense: b.Defense + o.Defense,
	}
}

// RealmLevel — неизменяемая ступень лестницы.
// Засевается один раз при старте, дальше только читается.
type RealmLevel struct {
	ID                     int32
	Position               RealmPosition
	Name                   string
	RequiredExperience     uint64
	BreakthroughDifficulty int32
	Bonuses                StatBonuses
}
