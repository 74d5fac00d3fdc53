package cultivation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/cultivation/internal/model"
)

// GateOutcome — итог одной попытки испытания.
type GateOutcome int

const (
	// GateBlocked — испытание не пройдено без смерти: нет предметов (ничего не списано)
	// либо провален бросок на вратах без смерти.
	GateBlocked GateOutcome = iota
	// GatePassed — предметы списаны, персонаж поднялся на одну ступень.
	GatePassed
	// GateDied — бросок провален на вратах со смертью, персонаж уничтожен.
	GateDied
)

// String returns the outcome name used in logs and CLI output.
func (o GateOutcome) String() string {
	switch o {
	case GateBlocked:
		return "blocked"
	case GatePassed:
		return "passed"
	case GateDied:
		return "died"
	default:
		return "unknown"
	}
}

// GateResult describes one evaluated gate instance.
type GateResult struct {
	Outcome GateOutcome
	// Record is nil when the attempt was blocked before any item was consumed.
	Record *model.TribulationRecord
}

// Gate evaluates tribulation policies.
type Gate struct {
	ladder   *model.RealmLadder
	rng      RandomSource
	teardown *Teardown
	notifier Notifier
	now      func() time.Time
}

// NewGate creates a gate evaluator. rng must not be shared with code that
// expects its own reproducible sequence.
func NewGate(ladder *model.RealmLadder, rng RandomSource, teardown *Teardown, notifier Notifier, now func() time.Time) *Gate {
	if rng == nil {
		rng = DefaultRandom()
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &Gate{ladder: ladder, rng: rng, teardown: teardown, notifier: notifier, now: now}
}

// steps returns the character's current rung and the rung the gate leads to.
func (g *Gate) steps(pos model.RealmPosition) (model.RealmLevel, model.RealmLevel, error) {
	cur, ok := g.ladder.Find(pos)
	if !ok {
		return model.RealmLevel{}, model.RealmLevel{}, fmt.Errorf("%w: %s", ErrRealmMissing, pos)
	}
	nextPos := pos.Next()
	if g.ladder.Beyond(nextPos) {
		return cur, model.RealmLevel{}, ErrLadderEnd
	}
	next, ok := g.ladder.Find(nextPos)
	if !ok {
		return cur, model.RealmLevel{}, fmt.Errorf("%w: %s", ErrRealmMissing, nextPos)
	}
	return cur, next, nil
}

// Attempt evaluates policy for ch inside tx.
//
// Missing items block the attempt before anything happens: no roll, no
// consumption, no record. Otherwise the items are consumed, at most one
// random value is drawn, and one TribulationRecord is written.
// On GateDied the character no longer exists and the returned state must not be saved.
func (g *Gate) Attempt(ctx context.Context, tx Tx, ch model.Character, policy model.TribulationPolicy) (model.Character, GateResult, error) {
	if ch.Realm != policy.Required {
		return ch, GateResult{}, ErrWrongRealm
	}
	cur, next, err := g.steps(ch.Realm)
	if err != nil {
		return ch, GateResult{}, err
	}
	if ch.Experience < cur.RequiredExperience {
		return ch, GateResult{}, ErrInsufficientExperience
	}

	has, err := tx.Inventory().HasItems(ctx, ch.ID, policy.RequiredItems)
	if err != nil {
		return ch, GateResult{}, fmt.Errorf("checking tribulation items for character %d: %w", ch.ID, err)
	}
	if !has {
		return ch, GateResult{Outcome: GateBlocked}, nil
	}

	// Снимок инвентаря берётся до списания, чтобы откат вернул всё имущество.
	var preTrial []model.ItemStack
	if policy.DeathOnFailure {
		preTrial, err = tx.Inventory().ListAll(ctx, ch.ID)
		if err != nil {
			return ch, GateResult{}, fmt.Errorf("listing inventory of character %d: %w", ch.ID, err)
		}
	}

	if err := tx.Inventory().ConsumeItems(ctx, ch.ID, policy.RequiredItems); err != nil {
		if errors.Is(err, ErrInsufficientItems) {
			return ch, GateResult{Outcome: GateBlocked}, nil
		}
		return ch, GateResult{}, fmt.Errorf("consuming tribulation items for character %d: %w", ch.ID, err)
	}

	rec := model.NewTribulationRecord(ch, policy, g.now())
	rec.ConsumedItems = model.MergeStacks(policy.RequiredItems)

	passed := true
	if policy.Probabilistic() {
		roll := g.rng.Float64()
		rec.Roll = &roll
		passed = roll < policy.SuccessRate
	}

	switch {
	case passed:
		rec.Success = true
		if err := tx.Records().Create(ctx, rec); err != nil {
			return ch, GateResult{}, fmt.Errorf("saving tribulation record: %w", err)
		}
		ch.Experience -= cur.RequiredExperience
		ch.Realm = next.Position

		slog.Info("tribulation passed",
			"characterID", ch.ID,
			"gate", policy.GateID,
			"realm", ch.Realm.String())
		g.notify(tx, ch, EventTribulationPass, policy, rec)
		return ch, GateResult{Outcome: GatePassed, Record: rec}, nil

	case !policy.DeathOnFailure:
		if err := tx.Records().Create(ctx, rec); err != nil {
			return ch, GateResult{}, fmt.Errorf("saving tribulation record: %w", err)
		}
		slog.Info("tribulation failed", "characterID", ch.ID, "gate", policy.GateID)
		g.notify(tx, ch, EventTribulationFail, policy, rec)
		return ch, GateResult{Outcome: GateBlocked, Record: rec}, nil

	default:
		if err := g.teardown.Destroy(ctx, tx, ch, rec, preTrial); err != nil {
			return ch, GateResult{}, err
		}
		return ch, GateResult{Outcome: GateDied, Record: rec}, nil
	}
}

// TribulationNotice is the payload of tribulation events.
type TribulationNotice struct {
	CharacterID int64  `json:"character_id"`
	Name        string `json:"name"`
	GateID      string `json:"gate_id"`
	GateName    string `json:"gate_name"`
	Realm       string `json:"realm"`
	Success     bool   `json:"success"`
}

func (g *Gate) notify(tx Tx, ch model.Character, event string, policy model.TribulationPolicy, rec *model.TribulationRecord) {
	notice := TribulationNotice{
		CharacterID: ch.ID,
		Name:        ch.Name,
		GateID:      policy.GateID,
		GateName:    policy.Name,
		Realm:       ch.Realm.String(),
		Success:     rec.Success,
	}
	tx.AfterCommit(func() {
		g.notifier.NotifyCharacter(ch.ID, event, notice)
		g.notifier.Broadcast(event, notice)
	})
}

type nopNotifier struct{}

func (nopNotifier) Broadcast(string, any)              {}
func (nopNotifier) NotifyCharacter(int64, string, any) {}
