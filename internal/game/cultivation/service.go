// Package cultivation implements realm progression: the breakthrough engine,
// tribulation gates, death teardown and operator rollback.
//
// Flow:
//  1. A caller grants experience (cultivation action, deep-cultivation settlement).
//  2. Engine converts experience into realm advances in one pass.
//  3. At a gated position the Gate takes over: blocked, passed or died.
//  4. On death Teardown snapshots the character and deletes it with all owned records.
//  5. Later an operator may roll the death back from the snapshot.
//
// All mutations of one character run in one store transaction that holds the
// character's row lock, so different characters progress concurrently while
// each character has a single writer.
package cultivation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/udisondev/cultivation/internal/model"
)

// Limits for ListRollbackCandidates and TribulationHistory.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// MaxOperatorIDLength — ограничение длины operatorID (совпадает с колонкой rolled_back_by).
const MaxOperatorIDLength = 64

// Options configures a Service.
type Options struct {
	Ladder            *model.RealmLadder
	Policies          *model.TribulationPolicies
	BaseStats         model.StatBonuses
	RollbackTimeLimit time.Duration
	Random            RandomSource
	Notifier          Notifier
	Now               func() time.Time
}

// Service exposes progression operations to the surrounding application.
// Thread-safe: holds no mutable state of its own.
type Service struct {
	store     Store
	ladder    *model.RealmLadder
	policies  *model.TribulationPolicies
	baseStats model.StatBonuses
	engine    *Engine
	gate      *Gate
	rollback  *Rollback
	notifier  Notifier
	now       func() time.Time
}

// New wires the engine, gate, teardown and rollback around store.
func New(store Store, opts Options) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if opts.Ladder == nil {
		return nil, fmt.Errorf("realm ladder cannot be nil")
	}
	if opts.Policies == nil {
		return nil, fmt.Errorf("tribulation policies cannot be nil")
	}
	for _, p := range opts.Policies.All() {
		if _, ok := opts.Ladder.Find(p.Required); !ok {
			return nil, fmt.Errorf("gate %s requires realm %s missing from ladder", p.GateID, p.Required)
		}
	}
	if opts.Notifier == nil {
		opts.Notifier = nopNotifier{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	teardown := NewTeardown(opts.Notifier, opts.Now)
	gate := NewGate(opts.Ladder, opts.Random, teardown, opts.Notifier, opts.Now)

	return &Service{
		store:     store,
		ladder:    opts.Ladder,
		policies:  opts.Policies,
		baseStats: opts.BaseStats,
		engine:    NewEngine(opts.Ladder, opts.Policies, gate),
		gate:      gate,
		rollback:  NewRollback(opts.RollbackTimeLimit, opts.Ladder, opts.Notifier, opts.Now),
		notifier:  opts.Notifier,
		now:       opts.Now,
	}, nil
}

// CreateCharacter creates a character on the first rung for userID.
// A user owns at most one living character and names are unique.
func (s *Service) CreateCharacter(ctx context.Context, userID int64, name string) (int64, error) {
	name = strings.TrimSpace(name)
	ch, err := model.NewCharacter(userID, name, s.baseStats, s.ladder.First())
	if err != nil {
		return 0, err
	}
	ch.CreatedAt = s.now()

	var id int64
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		occupied, err := tx.Characters().UserHasLivingCharacter(ctx, userID)
		if err != nil {
			return fmt.Errorf("checking characters of user %d: %w", userID, err)
		}
		if occupied {
			return ErrUserOccupied
		}
		taken, err := tx.Characters().NameTaken(ctx, name)
		if err != nil {
			return fmt.Errorf("checking name %q: %w", name, err)
		}
		if taken {
			return ErrNameTaken
		}
		id, err = tx.Characters().Create(ctx, ch)
		return err
	})
	if err != nil {
		return 0, err
	}
	slog.Info("character created", "characterID", id, "userID", userID, "name", name)
	return id, nil
}

// GateStatus — состояние одних врат для конкретного персонажа.
type GateStatus struct {
	GateID           string
	Name             string
	Required         model.RealmPosition
	CanAttempt       bool
	HasRequiredItems bool
	// SuccessRate is nil for item-gated gates.
	SuccessRate    *float64
	DeathOnFailure bool
	Reason         string
}

// ProgressionStatus is the result of GetProgressionStatus.
type ProgressionStatus struct {
	CharacterID        int64
	Name               string
	Experience         uint64
	Realm              model.RealmPosition
	RealmName          string
	RequiredExperience uint64
	ProgressPercent    int
	Stats              model.StatBonuses
	Gates              []GateStatus
}

// GetProgressionStatus reports progression and the state of every gate.
// Item checks for the gates run concurrently.
func (s *Service) GetProgressionStatus(ctx context.Context, characterID int64) (ProgressionStatus, error) {
	ch, err := s.store.Characters().LoadByID(ctx, characterID)
	if err != nil {
		return ProgressionStatus{}, fmt.Errorf("loading character %d: %w", characterID, err)
	}
	if ch == nil {
		return ProgressionStatus{}, ErrCharacterNotFound
	}
	level, ok := s.ladder.Find(ch.Realm)
	if !ok {
		return ProgressionStatus{}, fmt.Errorf("%w: %s", ErrRealmMissing, ch.Realm)
	}

	policies := s.policies.All()
	gates := make([]GateStatus, len(policies))

	g, gctx := errgroup.WithContext(ctx)
	for i, p := range policies {
		g.Go(func() error {
			has, err := s.store.Inventory().HasItems(gctx, characterID, p.RequiredItems)
			if err != nil {
				return fmt.Errorf("checking items for gate %s: %w", p.GateID, err)
			}
			gates[i] = gateStatus(*ch, level, p, has)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ProgressionStatus{}, err
	}

	return ProgressionStatus{
		CharacterID:        ch.ID,
		Name:               ch.Name,
		Experience:         ch.Experience,
		Realm:              ch.Realm,
		RealmName:          level.Name,
		RequiredExperience: level.RequiredExperience,
		ProgressPercent:    ch.ProgressPercent(level),
		Stats:              ch.Stats,
		Gates:              gates,
	}, nil
}

func gateStatus(ch model.Character, level model.RealmLevel, p model.TribulationPolicy, has bool) GateStatus {
	st := GateStatus{
		GateID:           p.GateID,
		Name:             p.Name,
		Required:         p.Required,
		HasRequiredItems: has,
		DeathOnFailure:   p.DeathOnFailure,
	}
	if p.Probabilistic() {
		rate := p.SuccessRate
		st.SuccessRate = &rate
	}

	c := ch.Realm.Compare(p.Required)
	switch {
	case c < 0:
		st.Reason = "realm below gate"
	case c > 0:
		st.Reason = "already passed"
	case ch.Experience < level.RequiredExperience:
		st.Reason = Message(ErrInsufficientExperience)
	case !has:
		st.Reason = Message(ErrMissingItems)
	default:
		st.CanAttempt = true
	}
	return st
}

// GrantExperience adds amount to the character and runs the breakthrough engine.
func (s *Service) GrantExperience(ctx context.Context, characterID int64, amount uint64) (BreakthroughResult, error) {
	return s.cultivate(ctx, characterID, amount)
}

// AttemptBreakthrough runs the breakthrough engine on the current experience.
func (s *Service) AttemptBreakthrough(ctx context.Context, characterID int64) (BreakthroughResult, error) {
	return s.cultivate(ctx, characterID, 0)
}

func (s *Service) cultivate(ctx context.Context, characterID int64, amount uint64) (BreakthroughResult, error) {
	var res BreakthroughResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ch, err := tx.Characters().LockByID(ctx, characterID)
		if err != nil {
			return fmt.Errorf("locking character %d: %w", characterID, err)
		}
		if ch == nil {
			return ErrCharacterNotFound
		}

		start := *ch
		start.AddExperience(amount)

		updated, r, err := s.engine.AttemptBreakthroughs(ctx, tx, start)
		if err != nil {
			return err
		}
		res = r
		if r.Died {
			return nil
		}
		if amount > 0 || r.Advanced > 0 {
			if err := tx.Characters().Update(ctx, updated); err != nil {
				return fmt.Errorf("saving character %d: %w", characterID, err)
			}
		}
		if r.Advanced > 0 {
			tx.AfterCommit(func() {
				s.notifier.NotifyCharacter(characterID, EventBreakthrough, r)
			})
		}
		return nil
	})
	if err != nil {
		return BreakthroughResult{}, err
	}
	return res, nil
}

// TribulationResult is the result of AttemptTribulation.
type TribulationResult struct {
	Success       bool
	Outcome       GateOutcome
	NewRealm      *model.RealmPosition
	CharacterDied bool
	RecordID      *uuid.UUID
	Message       string
}

// AttemptTribulation makes the character face gateID explicitly.
// Wrong realm, short experience and missing items are returned as errors
// without side effects.
func (s *Service) AttemptTribulation(ctx context.Context, characterID int64, gateID string) (TribulationResult, error) {
	policy, ok := s.policies.ByGate(gateID)
	if !ok {
		return TribulationResult{}, ErrUnknownGate
	}

	var res TribulationResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ch, err := tx.Characters().LockByID(ctx, characterID)
		if err != nil {
			return fmt.Errorf("locking character %d: %w", characterID, err)
		}
		if ch == nil {
			return ErrCharacterNotFound
		}

		updated, gr, err := s.gate.Attempt(ctx, tx, *ch, policy)
		if err != nil {
			return err
		}
		if gr.Record != nil {
			id := gr.Record.ID
			res.RecordID = &id
		}
		res.Outcome = gr.Outcome

		switch gr.Outcome {
		case GatePassed:
			level, _ := s.ladder.Find(updated.Realm)
			updated.RecomputeStats(level)
			if err := tx.Characters().Update(ctx, updated); err != nil {
				return fmt.Errorf("saving character %d: %w", characterID, err)
			}
			pos := updated.Realm
			res.Success = true
			res.NewRealm = &pos
			res.Message = fmt.Sprintf("%s passed. You have reached %s.", policy.Name, level.Name)
		case GateDied:
			res.CharacterDied = true
			res.Message = fmt.Sprintf("%s failed. The heavenly lightning has claimed %s.", policy.Name, ch.Name)
		default:
			if gr.Record == nil {
				return ErrMissingItems
			}
			res.Message = fmt.Sprintf("%s failed. The items were consumed.", policy.Name)
		}
		return nil
	})
	if err != nil {
		return TribulationResult{}, err
	}
	return res, nil
}

// GrantItem adds quantity of itemID to a living character's inventory.
func (s *Service) GrantItem(ctx context.Context, characterID int64, itemID int32, quantity int64) error {
	if itemID <= 0 || quantity <= 0 {
		return fmt.Errorf("invalid item grant: item %d x%d", itemID, quantity)
	}
	return s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		ch, err := tx.Characters().LockByID(ctx, characterID)
		if err != nil {
			return fmt.Errorf("locking character %d: %w", characterID, err)
		}
		if ch == nil {
			return ErrCharacterNotFound
		}
		if err := tx.Inventory().RestoreItem(ctx, characterID, itemID, quantity); err != nil {
			return fmt.Errorf("granting item %d to character %d: %w", itemID, characterID, err)
		}
		return nil
	})
}

// AdminRollback restores the character destroyed in recordID.
// Eligibility failures are returned as the rollback sentinel errors.
func (s *Service) AdminRollback(ctx context.Context, recordID uuid.UUID, operatorID string) (RollbackResult, error) {
	operatorID = strings.TrimSpace(operatorID)
	if operatorID == "" {
		return RollbackResult{}, ErrOperatorRequired
	}
	if utf8.RuneCountInString(operatorID) > MaxOperatorIDLength {
		return RollbackResult{}, ErrOperatorTooLong
	}

	var res RollbackResult
	err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		r, err := s.rollback.Execute(ctx, tx, recordID, operatorID)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		if IsRejection(err) {
			slog.Info("rollback rejected", "recordID", recordID.String(), "operator", operatorID, "reason", err)
		}
		return RollbackResult{}, err
	}
	return res, nil
}

// ListRollbackCandidates returns deaths (failed records with a snapshot) not yet
// rolled back and still inside the rollback window, newest first.
func (s *Service) ListRollbackCandidates(ctx context.Context, limit int) ([]*model.TribulationRecord, error) {
	since := s.now().Add(-s.rollback.TimeLimit())
	recs, err := s.store.Records().ListRollbackCandidates(ctx, since, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing rollback candidates: %w", err)
	}
	return recs, nil
}

// TribulationHistory returns the attempts made by a character, newest first.
func (s *Service) TribulationHistory(ctx context.Context, characterID int64, limit int) ([]*model.TribulationRecord, error) {
	recs, err := s.store.Records().ListByCharacter(ctx, characterID, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("listing tribulation history of character %d: %w", characterID, err)
	}
	return recs, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
