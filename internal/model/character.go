package model

import (
	"fmt"
	"math"
	"time"
)

// MaxCharacterNameLength — ограничение длины имени (совпадает с колонкой characters.name).
const MaxCharacterNameLength = 32

// MaxExperience — потолок опыта (совпадает с BIGINT колонки characters.experience).
const MaxExperience uint64 = math.MaxInt64

// Sect — принадлежность персонажа к секте.
// SectID == 0 означает "без секты".
type Sect struct {
	SectID       int64  `json:"sect_id"`
	Rank         string `json:"rank"`
	Contribution int64  `json:"contribution"`
}

// Character — агрегат персонажа: идентичность, характеристики и ProgressionState.
//
// Value type: операции движка получают копию и возвращают изменённую копию,
// без общих указателей между engine, gate и teardown.
type Character struct {
	ID     int64
	UserID int64
	Name   string

	// ProgressionState
	Experience uint64
	Realm      RealmPosition

	// BaseStats — характеристики без бонусов царства.
	BaseStats StatBonuses
	// Stats = BaseStats + Bonuses текущего царства.
	Stats StatBonuses

	SpiritStones int64
	Sect         Sect

	CreatedAt time.Time
}

// NewCharacter создаёт персонажа на первой ступени лестницы.
func NewCharacter(userID int64, name string, base StatBonuses, start RealmLevel) (Character, error) {
	if name == "" {
		return Character{}, fmt.Errorf("character name cannot be empty")
	}
	if len(name) > MaxCharacterNameLength {
		return Character{}, fmt.Errorf("character name %q exceeds %d bytes", name, MaxCharacterNameLength)
	}
	if userID <= 0 {
		return Character{}, fmt.Errorf("userID must be > 0, got %d", userID)
	}

	ch := Character{
		UserID:    userID,
		Name:      name,
		Realm:     start.Position,
		BaseStats: base,
	}
	ch.RecomputeStats(start)
	return ch, nil
}

// RecomputeStats пересчитывает производные характеристики только от переданного царства.
// Бонусы промежуточных царств не накапливаются.
func (c *Character) RecomputeStats(realm RealmLevel) {
	c.Stats = c.BaseStats.Add(realm.Bonuses)
}

// ProgressPercent returns floor(experience / required * 100), clamped to 100.
func (c Character) ProgressPercent(realm RealmLevel) int {
	if realm.RequiredExperience == 0 {
		return 100
	}
	if c.Experience >= realm.RequiredExperience {
		return 100
	}
	// experience < required, so experience*100 fits unless required is near the uint64 limit.
	if c.Experience <= ^uint64(0)/100 {
		return int(c.Experience * 100 / realm.RequiredExperience)
	}
	return min(int(c.Experience/(realm.RequiredExperience/100)), 99)
}

// AddExperience adds amount, saturating at MaxExperience.
func (c *Character) AddExperience(amount uint64) {
	if amount > MaxExperience || c.Experience > MaxExperience-amount {
		c.Experience = MaxExperience
		return
	}
	c.Experience += amount
}
