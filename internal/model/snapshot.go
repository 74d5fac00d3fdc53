package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SnapshotVersion — текущая версия формата снапшота.
// Версия 0 (поле отсутствует) читается как версия 1.
const SnapshotVersion = 1

// ErrSnapshotInvalid is returned when a stored snapshot cannot rebuild a character.
var ErrSnapshotInvalid = errors.New("snapshot invalid")

// SnapshotCharacter — скалярные поля персонажа на момент смерти.
type SnapshotCharacter struct {
	OriginalID   int64         `json:"original_id"`
	UserID       int64         `json:"user_id"`
	Name         string        `json:"name"`
	Experience   uint64        `json:"experience"`
	Realm        RealmPosition `json:"realm"`
	BaseStats    StatBonuses   `json:"base_stats"`
	Stats        StatBonuses   `json:"stats"`
	SpiritStones int64         `json:"spirit_stones"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Snapshot — всё необходимое для восстановления персонажа.
// Write-once: создаётся при смерти, дальше только читается.
// Inventory снимается ДО списания предметов испытания.
type Snapshot struct {
	Version    int               `json:"version"`
	Character  SnapshotCharacter `json:"character"`
	Sect       Sect              `json:"sect"`
	Inventory  []ItemStack       `json:"inventory"`
	CapturedAt time.Time         `json:"captured_at"`
}

// NewSnapshot captures ch together with its full pre-trial inventory.
func NewSnapshot(ch Character, inventory []ItemStack, at time.Time) *Snapshot {
	return &Snapshot{
		Version: SnapshotVersion,
		Character: SnapshotCharacter{
			OriginalID:   ch.ID,
			UserID:       ch.UserID,
			Name:         ch.Name,
			Experience:   ch.Experience,
			Realm:        ch.Realm,
			BaseStats:    ch.BaseStats,
			Stats:        ch.Stats,
			SpiritStones: ch.SpiritStones,
			CreatedAt:    ch.CreatedAt,
		},
		Sect:       ch.Sect,
		Inventory:  MergeStacks(inventory),
		CapturedAt: at,
	}
}

// Encode serializes the snapshot in the current format version.
func (s *Snapshot) Encode() ([]byte, error) {
	out := *s
	out.Version = SnapshotVersion
	if out.Inventory == nil {
		out.Inventory = []ItemStack{}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return data, nil
}

// DecodeSnapshot parses a stored snapshot.
// Unknown fields are ignored and missing ones keep zero values; only a
// snapshot that cannot identify a character (no name, bad realm) is rejected.
func DecodeSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotInvalid, err)
	}
	if s.Version == 0 {
		s.Version = 1
	}
	if s.Character.Name == "" {
		return nil, fmt.Errorf("%w: character name missing", ErrSnapshotInvalid)
	}
	if !s.Character.Realm.Valid() {
		return nil, fmt.Errorf("%w: realm %s", ErrSnapshotInvalid, s.Character.Realm)
	}
	s.Inventory = MergeStacks(s.Inventory)
	return &s, nil
}

// Restore builds a fresh (unsaved) character from the snapshot scalars.
// ID is left zero; the store assigns a new one.
func (s *Snapshot) Restore() Character {
	c := s.Character
	return Character{
		UserID:       c.UserID,
		Name:         c.Name,
		Experience:   c.Experience,
		Realm:        c.Realm,
		BaseStats:    c.BaseStats,
		Stats:        c.Stats,
		SpiritStones: c.SpiritStones,
		Sect:         s.Sect,
		CreatedAt:    c.CreatedAt,
	}
}
