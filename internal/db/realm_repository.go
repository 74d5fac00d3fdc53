package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/udisondev/cultivation/internal/model"
)

// RealmRepository управляет таблицей realm_levels.
type RealmRepository struct {
	db querier
}

// NewRealmRepository создаёт новый RealmRepository.
func NewRealmRepository(db querier) *RealmRepository {
	return &RealmRepository{db: db}
}

// Seed upserts levels by ID in one batch. Existing rows are overwritten.
func (r *RealmRepository) Seed(ctx context.Context, levels []model.RealmLevel) error {
	batch := &pgx.Batch{}
	for _, l := range levels {
		batch.Queue(`
			INSERT INTO realm_levels (id, tier, sub_tier, name, required_experience, breakthrough_difficulty,
			                          hp_bonus, mp_bonus, attack_bonus, defense_bonus)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (id) DO UPDATE SET
				tier = EXCLUDED.tier,
				sub_tier = EXCLUDED.sub_tier,
				name = EXCLUDED.name,
				required_experience = EXCLUDED.required_experience,
				breakthrough_difficulty = EXCLUDED.breakthrough_difficulty,
				hp_bonus = EXCLUDED.hp_bonus,
				mp_bonus = EXCLUDED.mp_bonus,
				attack_bonus = EXCLUDED.attack_bonus,
				defense_bonus = EXCLUDED.defense_bonus`,
			l.ID, l.Position.Tier, l.Position.SubTier, l.Name, experienceToDB(l.RequiredExperience),
			l.BreakthroughDifficulty, l.Bonuses.HP, l.Bonuses.MP, l.Bonuses.Attack, l.Bonuses.Defense,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	for _, l := range levels {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("seeding realm %s (%q): %w", l.Position, l.Name, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("closing realm seed batch: %w", err)
	}

	slog.Info("realm ladder seeded", "levels", len(levels))
	return nil
}

// LoadAll returns every realm level ordered by position.
func (r *RealmRepository) LoadAll(ctx context.Context) ([]model.RealmLevel, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tier, sub_tier, name, required_experience, breakthrough_difficulty,
		       hp_bonus, mp_bonus, attack_bonus, defense_bonus
		FROM realm_levels
		ORDER BY tier, sub_tier`)
	if err != nil {
		return nil, fmt.Errorf("querying realm levels: %w", err)
	}
	defer rows.Close()

	levels := make([]model.RealmLevel, 0, 24)
	for rows.Next() {
		var l model.RealmLevel
		var required int64
		if err := rows.Scan(&l.ID, &l.Position.Tier, &l.Position.SubTier, &l.Name, &required,
			&l.BreakthroughDifficulty, &l.Bonuses.HP, &l.Bonuses.MP, &l.Bonuses.Attack, &l.Bonuses.Defense); err != nil {
			return nil, fmt.Errorf("scanning realm level: %w", err)
		}
		l.RequiredExperience = uint64(required)
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating realm levels: %w", err)
	}
	return levels, nil
}

// LoadLadder loads realm_levels into an immutable ladder.
func (r *RealmRepository) LoadLadder(ctx context.Context) (*model.RealmLadder, error) {
	levels, err := r.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	ladder, err := model.NewRealmLadder(levels)
	if err != nil {
		return nil, fmt.Errorf("building realm ladder: %w", err)
	}
	return ladder, nil
}
