package cultivation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/cultivation/internal/model"
)

// DefaultRollbackTimeLimit — окно, в течение которого оператор может откатить смерть.
const DefaultRollbackTimeLimit = 7 * 24 * time.Hour

// RollbackResult describes a successful rollback.
type RollbackResult struct {
	RecordID       uuid.UUID
	NewCharacterID int64
	Name           string
	Realm          model.RealmPosition
	RestoredItems  int
}

// Rollback восстанавливает погибшего персонажа из снимка.
// Одноразовая необратимая операция.
type Rollback struct {
	limit    time.Duration
	ladder   *model.RealmLadder
	notifier Notifier
	now      func() time.Time
}

// NewRollback creates a rollback executor; limit <= 0 means DefaultRollbackTimeLimit.
func NewRollback(limit time.Duration, ladder *model.RealmLadder, notifier Notifier, now func() time.Time) *Rollback {
	if limit <= 0 {
		limit = DefaultRollbackTimeLimit
	}
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &Rollback{limit: limit, ladder: ladder, notifier: notifier, now: now}
}

// TimeLimit returns the rollback window.
func (r *Rollback) TimeLimit() time.Duration {
	return r.limit
}

// Eligible checks the record-level preconditions in order, first failure wins.
// User and name checks need the store and are done in Execute.
func (r *Rollback) Eligible(rec *model.TribulationRecord) error {
	switch {
	case rec == nil:
		return ErrRecordNotFound
	case rec.Success:
		return ErrNothingToRollback
	case rec.RolledBack:
		return ErrAlreadyRolledBack
	case r.now().Sub(rec.AttemptedAt) > r.limit:
		return ErrRollbackExpired
	case rec.Snapshot == nil:
		return ErrNoSnapshot
	}
	return nil
}

// Execute rolls back recordID inside tx. The record row is locked first, so
// two concurrent rollbacks of the same record serialize and the second sees
// ErrAlreadyRolledBack.
func (r *Rollback) Execute(ctx context.Context, tx Tx, recordID uuid.UUID, operatorID string) (RollbackResult, error) {
	rec, err := tx.Records().LockByID(ctx, recordID)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("loading tribulation record %s: %w", recordID, err)
	}
	if err := r.Eligible(rec); err != nil {
		return RollbackResult{}, err
	}

	snap := rec.Snapshot
	occupied, err := tx.Characters().UserHasLivingCharacter(ctx, snap.Character.UserID)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("checking characters of user %d: %w", snap.Character.UserID, err)
	}
	if occupied {
		return RollbackResult{}, ErrUserOccupied
	}
	taken, err := tx.Characters().NameTaken(ctx, snap.Character.Name)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("checking name %q: %w", snap.Character.Name, err)
	}
	if taken {
		return RollbackResult{}, ErrNameTaken
	}

	restored := snap.Restore()
	if _, ok := r.ladder.Find(restored.Realm); !ok {
		return RollbackResult{}, fmt.Errorf("%w: snapshot realm %s not in ladder", model.ErrSnapshotInvalid, restored.Realm)
	}

	newID, err := tx.Characters().Create(ctx, restored)
	if err != nil {
		return RollbackResult{}, fmt.Errorf("recreating character %q: %w", restored.Name, err)
	}

	// Возвращается весь инвентарь на момент снимка, а не только цена испытания.
	for _, stack := range snap.Inventory {
		if err := tx.Inventory().RestoreItem(ctx, newID, stack.ItemID, stack.Quantity); err != nil {
			return RollbackResult{}, fmt.Errorf("restoring item %d x%d to character %d: %w",
				stack.ItemID, stack.Quantity, newID, err)
		}
	}

	at := r.now()
	if err := tx.Records().MarkRolledBack(ctx, rec.ID, operatorID, at, newID); err != nil {
		return RollbackResult{}, fmt.Errorf("marking record %s rolled back: %w", rec.ID, err)
	}

	slog.Info("tribulation death rolled back",
		"recordID", rec.ID.String(),
		"operator", operatorID,
		"originalCharacterID", rec.CharacterID,
		"newCharacterID", newID,
		"name", restored.Name,
		"items", len(snap.Inventory))

	res := RollbackResult{
		RecordID:       rec.ID,
		NewCharacterID: newID,
		Name:           restored.Name,
		Realm:          restored.Realm,
		RestoredItems:  len(snap.Inventory),
	}
	tx.AfterCommit(func() {
		r.notifier.NotifyCharacter(newID, EventRollback, res)
	})
	return res, nil
}
