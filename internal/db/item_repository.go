package db

import (
	"context"
	"fmt"

	"github.com/udisondev/cultivation/internal/game/cultivation"
	"github.com/udisondev/cultivation/internal/model"
)

// ItemRepository управляет стопками предметов персонажа.
// Каталог предметов вне этого модуля: item_id — непрозрачный идентификатор.
type ItemRepository struct {
	db querier
}

// NewItemRepository создаёт новый ItemRepository.
func NewItemRepository(db querier) *ItemRepository {
	return &ItemRepository{db: db}
}

// ListAll returns every stack the character owns, ordered by item ID.
func (r *ItemRepository) ListAll(ctx context.Context, characterID int64) ([]model.ItemStack, error) {
	rows, err := r.db.Query(ctx,
		`SELECT item_id, quantity FROM items WHERE owner_id = $1 AND quantity > 0 ORDER BY item_id`,
		characterID)
	if err != nil {
		return nil, fmt.Errorf("querying inventory of character %d: %w", characterID, err)
	}
	defer rows.Close()

	stacks := make([]model.ItemStack, 0, 16)
	for rows.Next() {
		var s model.ItemStack
		if err := rows.Scan(&s.ItemID, &s.Quantity); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		stacks = append(stacks, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating inventory of character %d: %w", characterID, err)
	}
	return stacks, nil
}

// HasItems reports whether the character holds at least the given quantities.
func (r *ItemRepository) HasItems(ctx context.Context, characterID int64, items []model.ItemStack) (bool, error) {
	need := model.MergeStacks(items)
	if len(need) == 0 {
		return true, nil
	}
	have, err := r.quantities(ctx, characterID, need, false)
	if err != nil {
		return false, err
	}
	return covers(have, need), nil
}

// ConsumeItems списывает предметы. Строки стопок блокируются и проверяются
// до первого UPDATE: при нехватке возвращается ErrInsufficientItems и ничего не меняется.
func (r *ItemRepository) ConsumeItems(ctx context.Context, characterID int64, items []model.ItemStack) error {
	need := model.MergeStacks(items)
	if len(need) == 0 {
		return nil
	}
	have, err := r.quantities(ctx, characterID, need, true)
	if err != nil {
		return err
	}
	if !covers(have, need) {
		return fmt.Errorf("character %d: %w", characterID, cultivation.ErrInsufficientItems)
	}

	for _, s := range need {
		if have[s.ItemID] == s.Quantity {
			_, err = r.db.Exec(ctx,
				`DELETE FROM items WHERE owner_id = $1 AND item_id = $2`,
				characterID, s.ItemID)
		} else {
			_, err = r.db.Exec(ctx,
				`UPDATE items SET quantity = quantity - $3 WHERE owner_id = $1 AND item_id = $2`,
				characterID, s.ItemID, s.Quantity)
		}
		if err != nil {
			return fmt.Errorf("consuming item %d x%d of character %d: %w", s.ItemID, s.Quantity, characterID, err)
		}
	}
	return nil
}

func (r *ItemRepository) quantities(ctx context.Context, characterID int64, need []model.ItemStack, lock bool) (map[int32]int64, error) {
	ids := make([]int32, len(need))
	for i, s := range need {
		ids[i] = s.ItemID
	}
	query := `SELECT item_id, quantity FROM items WHERE owner_id = $1 AND item_id = ANY($2)`
	if lock {
		query += ` FOR UPDATE`
	}

	rows, err := r.db.Query(ctx, query, characterID, ids)
	if err != nil {
		return nil, fmt.Errorf("querying items of character %d: %w", characterID, err)
	}
	defer rows.Close()

	have := make(map[int32]int64, len(need))
	for rows.Next() {
		var id int32
		var qty int64
		if err := rows.Scan(&id, &qty); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}
		have[id] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating items of character %d: %w", characterID, err)
	}
	return have, nil
}

func covers(have map[int32]int64, need []model.ItemStack) bool {
	for _, s := range need {
		if have[s.ItemID] < s.Quantity {
			return false
		}
	}
	return true
}

// RestoreItem adds quantity of itemID to the character, merging with an existing stack.
func (r *ItemRepository) RestoreItem(ctx context.Context, characterID int64, itemID int32, quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("restoring item %d: quantity must be > 0, got %d", itemID, quantity)
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO items (owner_id, item_id, quantity)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id, item_id) DO UPDATE SET quantity = items.quantity + EXCLUDED.quantity`,
		characterID, itemID, quantity)
	if err != nil {
		return fmt.Errorf("restoring item %d x%d to character %d: %w", itemID, quantity, characterID, err)
	}
	return nil
}
