package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Gate IDs of the three configured tribulations, in ladder order.
const (
	GateFoundation    = "foundation"
	GateCoreFormation = "core_formation"
	GateNascentSoul   = "nascent_soul"
)

// TribulationPolicy — статическая конфигурация одного испытания (врат).
//
// ItemGated: успех 100% при наличии предметов, ролл не делается.
// Иначе успех определяется одним броском против SuccessRate.
type TribulationPolicy struct {
	GateID         string
	Name           string
	Required       RealmPosition
	RequiredItems  []ItemStack
	SuccessRate    float64
	ItemGated      bool
	DeathOnFailure bool
}

// Probabilistic reports whether the gate rolls for success.
func (p TribulationPolicy) Probabilistic() bool {
	return !p.ItemGated
}

// EffectiveRate returns the success probability used for display: 1 for item-gated gates.
func (p TribulationPolicy) EffectiveRate() float64 {
	if p.ItemGated {
		return 1
	}
	return p.SuccessRate
}

// TribulationPolicies индексирует политики по gateID и по требуемой позиции.
type TribulationPolicies struct {
	ordered    []TribulationPolicy
	byGate     map[string]int
	byPosition map[RealmPosition]int
}

// NewTribulationPolicies validates uniqueness of gate IDs and positions.
func NewTribulationPolicies(policies []TribulationPolicy) (*TribulationPolicies, error) {
	tp := &TribulationPolicies{
		ordered:    make([]TribulationPolicy, 0, len(policies)),
		byGate:     make(map[string]int, len(policies)),
		byPosition: make(map[RealmPosition]int, len(policies)),
	}
	for _, p := range policies {
		if p.GateID == "" {
			return nil, fmt.Errorf("tribulation policy without gate id")
		}
		if p.SuccessRate < 0 || p.SuccessRate > 1 {
			return nil, fmt.Errorf("gate %s: success rate %v out of [0,1]", p.GateID, p.SuccessRate)
		}
		if _, dup := tp.byGate[p.GateID]; dup {
			return nil, fmt.Errorf("duplicate gate id %s", p.GateID)
		}
		if _, dup := tp.byPosition[p.Required]; dup {
			return nil, fmt.Errorf("gate %s: position %s already gated", p.GateID, p.Required)
		}
		tp.byGate[p.GateID] = len(tp.ordered)
		tp.byPosition[p.Required] = len(tp.ordered)
		tp.ordered = append(tp.ordered, p)
	}
	return tp, nil
}

// ByGate returns the policy with the given gate ID.
func (tp *TribulationPolicies) ByGate(gateID string) (TribulationPolicy, bool) {
	i, ok := tp.byGate[gateID]
	if !ok {
		return TribulationPolicy{}, false
	}
	return tp.ordered[i], true
}

// At returns the policy gating advancement out of pos.
func (tp *TribulationPolicies) At(pos RealmPosition) (TribulationPolicy, bool) {
	i, ok := tp.byPosition[pos]
	if !ok {
		return TribulationPolicy{}, false
	}
	return tp.ordered[i], true
}

// All returns policies in configuration order.
func (tp *TribulationPolicies) All() []TribulationPolicy {
	out := make([]TribulationPolicy, len(tp.ordered))
	copy(out, tp.ordered)
	return out
}

// TribulationRecord — неизменяемый журнал одной попытки испытания.
// Snapshot заполнен тогда и только тогда, когда Success=false на вратах со смертью.
// RolledBack переходит false→true не более одного раза.
type TribulationRecord struct {
	ID            uuid.UUID
	CharacterID   int64
	UserID        int64
	GateID        string
	Success       bool
	Roll          *float64 // nil для item-gated врат
	ConsumedItems []ItemStack
	OriginalRealm RealmPosition
	Snapshot      *Snapshot

	RolledBack          bool
	RolledBackBy        *string
	RolledBackAt        *time.Time
	RestoredCharacterID *int64

	AttemptedAt time.Time
}

// NewTribulationRecord starts a record for an attempt made by ch at gate.
func NewTribulationRecord(ch Character, policy TribulationPolicy, at time.Time) *TribulationRecord {
	return &TribulationRecord{
		ID:            uuid.New(),
		CharacterID:   ch.ID,
		UserID:        ch.UserID,
		GateID:        policy.GateID,
		OriginalRealm: ch.Realm,
		AttemptedAt:   at,
	}
}

// CharacterName returns the name captured in the snapshot, or "".
func (r *TribulationRecord) CharacterName() string {
	if r.Snapshot == nil {
		return ""
	}
	return r.Snapshot.Character.Name
}
