package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/udisondev/cultivation/internal/game/cultivation"
	"github.com/udisondev/cultivation/internal/model"
)

// TribulationRepository хранит журнал попыток испытаний.
type TribulationRepository struct {
	db querier
}

// NewTribulationRepository создаёт новый TribulationRepository.
func NewTribulationRepository(db querier) *TribulationRepository {
	return &TribulationRepository{db: db}
}

const recordColumns = `
	id, character_id, user_id, gate_id, success, roll, consumed_items,
	original_tier, original_sub_tier, snapshot,
	rolled_back, rolled_back_by, rolled_back_at, restored_character_id, attempted_at`

// Create inserts rec. The snapshot is stored as JSONB in its versioned format.
func (r *TribulationRepository) Create(ctx context.Context, rec *model.TribulationRecord) error {
	consumed := rec.ConsumedItems
	if consumed == nil {
		consumed = []model.ItemStack{}
	}
	consumedJSON, err := json.Marshal(consumed)
	if err != nil {
		return fmt.Errorf("encoding consumed items of record %s: %w", rec.ID, err)
	}

	var snapshot any
	if rec.Snapshot != nil {
		data, err := rec.Snapshot.Encode()
		if err != nil {
			return fmt.Errorf("record %s: %w", rec.ID, err)
		}
		snapshot = data
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO tribulation_records (
			id, character_id, user_id, gate_id, success, roll, consumed_items,
			original_tier, original_sub_tier, snapshot,
			rolled_back, rolled_back_by, rolled_back_at, restored_character_id, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		rec.ID, rec.CharacterID, rec.UserID, rec.GateID, rec.Success, rec.Roll, consumedJSON,
		rec.OriginalRealm.Tier, rec.OriginalRealm.SubTier, snapshot,
		rec.RolledBack, rec.RolledBackBy, rec.RolledBackAt, rec.RestoredCharacterID, rec.AttemptedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting tribulation record %s: %w", rec.ID, err)
	}
	return nil
}

// LoadByID returns the record or nil, nil.
func (r *TribulationRepository) LoadByID(ctx context.Context, id uuid.UUID) (*model.TribulationRecord, error) {
	return r.load(ctx, `SELECT`+recordColumns+` FROM tribulation_records WHERE id = $1`, id)
}

// LockByID returns the record with its row locked until the transaction ends,
// or nil, nil. Concurrent rollbacks of one record serialize on this lock.
func (r *TribulationRepository) LockByID(ctx context.Context, id uuid.UUID) (*model.TribulationRecord, error) {
	return r.load(ctx, `SELECT`+recordColumns+` FROM tribulation_records WHERE id = $1 FOR UPDATE`, id)
}

func (r *TribulationRepository) load(ctx context.Context, query string, id uuid.UUID) (*model.TribulationRecord, error) {
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying tribulation record %s: %w", id, err)
	}
	return rec, nil
}

// MarkRolledBack flips rolled_back once. A record that is already rolled back
// or was a success is left untouched and ErrAlreadyRolledBack is returned.
func (r *TribulationRepository) MarkRolledBack(ctx context.Context, id uuid.UUID, operatorID string, at time.Time, restoredCharacterID int64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tribulation_records
		SET rolled_back = TRUE, rolled_back_by = $2, rolled_back_at = $3, restored_character_id = $4
		WHERE id = $1 AND NOT rolled_back AND NOT success`,
		id, operatorID, at, restoredCharacterID)
	if err != nil {
		return fmt.Errorf("marking record %s rolled back: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s: %w", id, cultivation.ErrAlreadyRolledBack)
	}
	return nil
}

// ListRollbackCandidates returns failed records with a snapshot, not rolled back,
// attempted at or after since, newest first.
func (r *TribulationRepository) ListRollbackCandidates(ctx context.Context, since time.Time, limit int) ([]*model.TribulationRecord, error) {
	return r.list(ctx, `
		SELECT`+recordColumns+`
		FROM tribulation_records
		WHERE NOT success AND NOT rolled_back AND snapshot IS NOT NULL AND attempted_at >= $1
		ORDER BY attempted_at DESC
		LIMIT $2`, since, limit)
}

// ListByCharacter returns the attempts of one character, newest first.
func (r *TribulationRepository) ListByCharacter(ctx context.Context, characterID int64, limit int) ([]*model.TribulationRecord, error) {
	return r.list(ctx, `
		SELECT`+recordColumns+`
		FROM tribulation_records
		WHERE character_id = $1
		ORDER BY attempted_at DESC
		LIMIT $2`, characterID, limit)
}

func (r *TribulationRepository) list(ctx context.Context, query string, args ...any) ([]*model.TribulationRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying tribulation records: %w", err)
	}
	defer rows.Close()

	var out []*model.TribulationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning tribulation record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tribulation records: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (*model.TribulationRecord, error) {
	var rec model.TribulationRecord
	var consumed, snapshot []byte
	err := row.Scan(
		&rec.ID, &rec.CharacterID, &rec.UserID, &rec.GateID, &rec.Success, &rec.Roll, &consumed,
		&rec.OriginalRealm.Tier, &rec.OriginalRealm.SubTier, &snapshot,
		&rec.RolledBack, &rec.RolledBackBy, &rec.RolledBackAt, &rec.RestoredCharacterID, &rec.AttemptedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(consumed, &rec.ConsumedItems); err != nil {
		return nil, fmt.Errorf("decoding consumed items of record %s: %w", rec.ID, err)
	}
	// Повреждённый снимок не ломает чтение журнала: запись считается записью без снимка.
	if snapshot != nil {
		snap, err := model.DecodeSnapshot(snapshot)
		if err != nil {
			slog.Warn("unusable tribulation snapshot", "recordID", rec.ID.String(), "error", err)
		} else {
			rec.Snapshot = snap
		}
	}
	return &rec, nil
}
