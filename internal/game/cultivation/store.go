package cultivation

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/udisondev/cultivation/internal/model"
)

// Characters — доступ к агрегату персонажа.
// Implemented by db.CharacterRepository.
type Characters interface {
	// LoadByID returns nil, nil if the character does not exist.
	LoadByID(ctx context.Context, characterID int64) (*model.Character, error)
	// LockByID is LoadByID plus a row lock held until the transaction ends.
	LockByID(ctx context.Context, characterID int64) (*model.Character, error)
	Update(ctx context.Context, ch model.Character) error
	Create(ctx context.Context, ch model.Character) (int64, error)
	UserHasLivingCharacter(ctx context.Context, userID int64) (bool, error)
	NameTaken(ctx context.Context, name string) (bool, error)
	// Teardown deletes the character row and every collection it owns.
	Teardown(ctx context.Context, characterID int64) error
}

// Inventory — внешний коллаборатор инвентаря (чёрный ящик).
// Implemented by db.ItemRepository.
type Inventory interface {
	HasItems(ctx context.Context, characterID int64, items []model.ItemStack) (bool, error)
	// ConsumeItems fails with ErrInsufficientItems and changes nothing if any stack is short.
	ConsumeItems(ctx context.Context, characterID int64, items []model.ItemStack) error
	RestoreItem(ctx context.Context, characterID int64, itemID int32, quantity int64) error
	ListAll(ctx context.Context, characterID int64) ([]model.ItemStack, error)
}

// Records — журнал попыток испытаний.
// Implemented by db.TribulationRepository.
type Records interface {
	Create(ctx context.Context, rec *model.TribulationRecord) error
	// LockByID returns nil, nil if the record does not exist.
	LockByID(ctx context.Context, id uuid.UUID) (*model.TribulationRecord, error)
	MarkRolledBack(ctx context.Context, id uuid.UUID, operatorID string, at time.Time, restoredCharacterID int64) error
	ListRollbackCandidates(ctx context.Context, since time.Time, limit int) ([]*model.TribulationRecord, error)
	ListByCharacter(ctx context.Context, characterID int64, limit int) ([]*model.TribulationRecord, error)
}

// Tx — единица работы. Все изменения одного персонажа идут через один Tx.
type Tx interface {
	Characters() Characters
	Inventory() Inventory
	Records() Records
	// AfterCommit registers fn to run once the transaction has committed.
	// Hooks are dropped on rollback.
	AfterCommit(fn func())
}

// Store opens transactions. Store itself is a Tx bound to no transaction:
// reads go straight to the pool and AfterCommit hooks run immediately.
type Store interface {
	Tx
	// InTx runs fn in a transaction. On a serialization failure the whole
	// transaction, including fn, is retried.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

// Notifier — внешний push-коллаборатор. Fire-and-forget.
type Notifier interface {
	Broadcast(event string, payload any)
	NotifyCharacter(characterID int64, event string, payload any)
}

// Event names sent to the Notifier.
const (
	EventBreakthrough     = "cultivation.breakthrough"
	EventTribulationPass  = "tribulation.passed"
	EventTribulationFail  = "tribulation.failed"
	EventTribulationDeath = "tribulation.death"
	EventRollback         = "tribulation.rollback"
)
