package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/udisondev/cultivation/internal/game/cultivation"
	"github.com/udisondev/cultivation/internal/model"
)

// CharacterRepository управляет персонажами в БД.
type CharacterRepository struct {
	db querier
}

// NewCharacterRepository создаёт новый CharacterRepository.
// db is a pool for autocommit access or a pgx.Tx inside a transaction.
func NewCharacterRepository(db querier) *CharacterRepository {
	return &CharacterRepository{db: db}
}

const characterColumns = `
	character_id, user_id, name, experience, realm_tier, realm_sub_tier,
	base_hp, base_mp, base_attack, base_defense,
	hp, mp, attack, defense,
	spirit_stones, sect_id, sect_rank, sect_contribution, created_at`

func scanCharacter(row pgx.Row) (*model.Character, error) {
	var ch model.Character
	var exp int64
	err := row.Scan(
		&ch.ID, &ch.UserID, &ch.Name, &exp, &ch.Realm.Tier, &ch.Realm.SubTier,
		&ch.BaseStats.HP, &ch.BaseStats.MP, &ch.BaseStats.Attack, &ch.BaseStats.Defense,
		&ch.Stats.HP, &ch.Stats.MP, &ch.Stats.Attack, &ch.Stats.Defense,
		&ch.SpiritStones, &ch.Sect.SectID, &ch.Sect.Rank, &ch.Sect.Contribution, &ch.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	ch.Experience = uint64(exp)
	return &ch, nil
}

// experienceToDB переводит опыт в BIGINT.
// Опыт персонажа не превышает model.MaxExperience (см. Character.AddExperience), так что потерь нет.
func experienceToDB(exp uint64) int64 {
	if exp > model.MaxExperience {
		return int64(model.MaxExperience)
	}
	return int64(exp)
}

// LoadByID загружает персонажа по ID.
// Возвращает nil если персонаж не найден (не ошибка).
func (r *CharacterRepository) LoadByID(ctx context.Context, characterID int64) (*model.Character, error) {
	return r.load(ctx, `SELECT`+characterColumns+` FROM characters WHERE character_id = $1`, characterID)
}

// LockByID loads the character and locks its row until the transaction ends.
// Concurrent progression calls on the same character serialize here.
func (r *CharacterRepository) LockByID(ctx context.Context, characterID int64) (*model.Character, error) {
	return r.load(ctx, `SELECT`+characterColumns+` FROM characters WHERE character_id = $1 FOR UPDATE`, characterID)
}

func (r *CharacterRepository) load(ctx context.Context, query string, characterID int64) (*model.Character, error) {
	ch, err := scanCharacter(r.db.QueryRow(ctx, query, characterID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("querying character %d: %w", characterID, err)
	}
	return ch, nil
}

// Update сохраняет прогресс и характеристики персонажа.
func (r *CharacterRepository) Update(ctx context.Context, ch model.Character) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE characters
		SET experience = $2, realm_tier = $3, realm_sub_tier = $4,
		    base_hp = $5, base_mp = $6, base_attack = $7, base_defense = $8,
		    hp = $9, mp = $10, attack = $11, defense = $12,
		    spirit_stones = $13, sect_id = $14, sect_rank = $15, sect_contribution = $16
		WHERE character_id = $1`,
		ch.ID, experienceToDB(ch.Experience), ch.Realm.Tier, ch.Realm.SubTier,
		ch.BaseStats.HP, ch.BaseStats.MP, ch.BaseStats.Attack, ch.BaseStats.Defense,
		ch.Stats.HP, ch.Stats.MP, ch.Stats.Attack, ch.Stats.Defense,
		ch.SpiritStones, ch.Sect.SectID, ch.Sect.Rank, ch.Sect.Contribution,
	)
	if err != nil {
		return fmt.Errorf("updating character %d: %w", ch.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating character %d: %w", ch.ID, cultivation.ErrCharacterNotFound)
	}
	return nil
}

// Create вставляет персонажа и возвращает новый character_id. ch.ID игнорируется.
// A unique violation on name or user maps to ErrNameTaken / ErrUserOccupied.
func (r *CharacterRepository) Create(ctx context.Context, ch model.Character) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, `
		INSERT INTO characters (user_id, name, experience, realm_tier, realm_sub_tier,
		                        base_hp, base_mp, base_attack, base_defense,
		                        hp, mp, attack, defense,
		                        spirit_stones, sect_id, sect_rank, sect_contribution, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING character_id`,
		ch.UserID, ch.Name, experienceToDB(ch.Experience), ch.Realm.Tier, ch.Realm.SubTier,
		ch.BaseStats.HP, ch.BaseStats.MP, ch.BaseStats.Attack, ch.BaseStats.Defense,
		ch.Stats.HP, ch.Stats.MP, ch.Stats.Attack, ch.Stats.Defense,
		ch.SpiritStones, ch.Sect.SectID, ch.Sect.Rank, ch.Sect.Contribution, ch.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation {
			switch pgErr.ConstraintName {
			case "characters_name_key":
				return 0, cultivation.ErrNameTaken
			case "characters_user_id_key":
				return 0, cultivation.ErrUserOccupied
			}
		}
		return 0, fmt.Errorf("inserting character %q: %w", ch.Name, err)
	}
	return id, nil
}

// UserHasLivingCharacter reports whether userID owns a character.
func (r *CharacterRepository) UserHasLivingCharacter(ctx context.Context, userID int64) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM characters WHERE user_id = $1)`, userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking characters of user %d: %w", userID, err)
	}
	return exists, nil
}

// NameTaken reports whether a living character already uses name.
func (r *CharacterRepository) NameTaken(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM characters WHERE name = $1)`, name,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking character name %q: %w", name, err)
	}
	return exists, nil
}

// Teardown удаляет все коллекции персонажа (OwnedCollections), затем саму строку.
// Must run inside a transaction: a failure part-way leaves rows behind otherwise.
func (r *CharacterRepository) Teardown(ctx context.Context, characterID int64) error {
	deleted := make([]any, 0, 2*len(OwnedCollections))
	for _, c := range OwnedCollections {
		tag, err := r.db.Exec(ctx, c.deleteSQL(), characterID)
		if err != nil {
			return fmt.Errorf("deleting %s of character %d: %w", c.Table, characterID, err)
		}
		deleted = append(deleted, c.Table, tag.RowsAffected())
	}

	tag, err := r.db.Exec(ctx, `DELETE FROM characters WHERE character_id = $1`, characterID)
	if err != nil {
		return fmt.Errorf("deleting character %d: %w", characterID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("deleting character %d: %w", characterID, cultivation.ErrCharacterNotFound)
	}

	slog.Debug("character torn down", append([]any{"characterID", characterID}, deleted...)...)
	return nil
}
