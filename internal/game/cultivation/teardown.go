package cultivation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/udisondev/cultivation/internal/model"
)

// Teardown уничтожает персонажа, провалившего испытание со смертью.
//
// Всё выполняется в транзакции вызывающего: снимок, запись испытания,
// каскадное удаление. Ошибка на любом шаге откатывает транзакцию целиком,
// наполовину удалённый персонаж невозможен.
type Teardown struct {
	notifier Notifier
	now      func() time.Time
}

// NewTeardown creates a Teardown.
func NewTeardown(notifier Notifier, now func() time.Time) *Teardown {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &Teardown{notifier: notifier, now: now}
}

// DeathNotice is the payload of EventTribulationDeath.
type DeathNotice struct {
	CharacterID int64  `json:"character_id"`
	Name        string `json:"name"`
	GateID      string `json:"gate_id"`
	Realm       string `json:"realm"`
}

// Destroy snapshots ch with its pre-trial inventory, attaches the snapshot to
// rec, persists rec and deletes the character with everything it owns.
func (t *Teardown) Destroy(ctx context.Context, tx Tx, ch model.Character, rec *model.TribulationRecord, preTrial []model.ItemStack) error {
	rec.Success = false
	rec.Snapshot = model.NewSnapshot(ch, preTrial, t.now())

	if err := tx.Records().Create(ctx, rec); err != nil {
		return fmt.Errorf("saving death record for character %d: %w", ch.ID, err)
	}
	if err := tx.Characters().Teardown(ctx, ch.ID); err != nil {
		return fmt.Errorf("tearing down character %d: %w", ch.ID, err)
	}

	slog.Info("character perished in tribulation",
		"characterID", ch.ID,
		"userID", ch.UserID,
		"name", ch.Name,
		"gate", rec.GateID,
		"realm", ch.Realm.String(),
		"recordID", rec.ID.String(),
		"snapshotItems", len(rec.Snapshot.Inventory))

	notice := DeathNotice{
		CharacterID: ch.ID,
		Name:        ch.Name,
		GateID:      rec.GateID,
		Realm:       ch.Realm.String(),
	}
	tx.AfterCommit(func() {
		t.notifier.Broadcast(EventTribulationDeath, notice)
	})
	return nil
}
