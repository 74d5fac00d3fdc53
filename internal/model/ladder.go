package model

import (
	"fmt"
	"slices"
)

// RealmLadder — упорядоченная таблица царств с O(1) поиском по позиции.
// Immutable after NewRealmLadder; safe for concurrent reads.
type RealmLadder struct {
	levels []RealmLevel
	index  map[RealmPosition]int
}

// NewRealmLadder validates and indexes the given levels.
// Levels may come in any order; duplicates and malformed positions are rejected.
func NewRealmLadder(levels []RealmLevel) (*RealmLadder, error) {
	if len(levels) == 0 {
		return nil, fmt.Errorf("realm ladder is empty")
	}

	sorted := slices.Clone(levels)
	slices.SortFunc(sorted, func(a, b RealmLevel) int {
		return a.Position.Compare(b.Position)
	})

	index := make(map[RealmPosition]int, len(sorted))
	for i, lvl := range sorted {
		if !lvl.Position.Valid() {
			return nil, fmt.Errorf("realm %q has invalid position %s", lvl.Name, lvl.Position)
		}
		if _, dup := index[lvl.Position]; dup {
			return nil, fmt.Errorf("duplicate realm position %s", lvl.Position)
		}
		index[lvl.Position] = i
	}

	return &RealmLadder{levels: sorted, index: index}, nil
}

// Find returns the level at pos (findByTierSubTier).
func (l *RealmLadder) Find(pos RealmPosition) (RealmLevel, bool) {
	i, ok := l.index[pos]
	if !ok {
		return RealmLevel{}, false
	}
	return l.levels[i], true
}

// First returns the lowest rung. New characters start here.
func (l *RealmLadder) First() RealmLevel {
	return l.levels[0]
}

// Last returns the highest defined rung.
func (l *RealmLadder) Last() RealmLevel {
	return l.levels[len(l.levels)-1]
}

// Beyond reports whether pos lies past the end of the ladder.
func (l *RealmLadder) Beyond(pos RealmPosition) bool {
	return l.Last().Position.Less(pos)
}

// Len returns the number of rungs.
func (l *RealmLadder) Len() int {
	return len(l.levels)
}

// Levels returns a copy of all rungs in ladder order.
func (l *RealmLadder) Levels() []RealmLevel {
	return slices.Clone(l.levels)
}
