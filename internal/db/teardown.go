package db

import (
	"fmt"

	"github.com/jackc/pgx/v5"
)

// OwnedCollection — таблица, строки которой принадлежат персонажу.
type OwnedCollection struct {
	Table       string
	OwnerColumn string
}

func (c OwnedCollection) deleteSQL() string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = $1",
		pgx.Identifier{c.Table}.Sanitize(), pgx.Identifier{c.OwnerColumn}.Sanitize())
}

// OwnedCollections lists every table referencing characters. Teardown deletes
// them in this order before the character row; the foreign keys have no
// ON DELETE CASCADE, so a table missing here makes teardown fail instead of
// leaving orphans.
//
// partner_bonds is deleted by owner only. Bonds other characters hold towards
// the dead one keep a dangling partner_id.
var OwnedCollections = []OwnedCollection{
	{Table: "items", OwnerColumn: "owner_id"},
	{Table: "character_plots", OwnerColumn: "character_id"},
	{Table: "character_companions", OwnerColumn: "character_id"},
	{Table: "sect_contributions", OwnerColumn: "character_id"},
	{Table: "feature_progress", OwnerColumn: "character_id"},
	{Table: "battle_history", OwnerColumn: "character_id"},
	{Table: "partner_bonds", OwnerColumn: "character_id"},
}
