package model

import (
	"cmp"
	"slices"
)

// ItemStack — стопка предметов одного шаблона: itemID + количество.
type ItemStack struct {
	ItemID   int32 `json:"item_id"`
	Quantity int64 `json:"quantity"`
}

// MergeStacks folds stacks with the same ItemID into one and drops
// non-positive quantities. Result is sorted by ItemID.
func MergeStacks(stacks []ItemStack) []ItemStack {
	totals := make(map[int32]int64, len(stacks))
	for _, s := range stacks {
		if s.Quantity <= 0 {
			continue
		}
		totals[s.ItemID] += s.Quantity
	}

	merged := make([]ItemStack, 0, len(totals))
	for id, qty := range totals {
		merged = append(merged, ItemStack{ItemID: id, Quantity: qty})
	}
	slices.SortFunc(merged, func(a, b ItemStack) int {
		return cmp.Compare(a.ItemID, b.ItemID)
	})
	return merged
}

// QuantityOf returns the total quantity of itemID across stacks.
func QuantityOf(stacks []ItemStack, itemID int32) int64 {
	var total int64
	for _, s := range stacks {
		if s.ItemID == itemID {
			total += s.Quantity
		}
	}
	return total
}
