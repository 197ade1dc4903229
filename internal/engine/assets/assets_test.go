package assets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabase_AddRemove(t *testing.T) {
	db := NewDatabase()
	db.Add("/Game/BP_Door", "ADoor")
	db.Add("/Game/BP_Gate", "ADoor")
	db.Add("/Game/DA_Loot", "ULootTable")

	assert.Equal(t, []string{"/Game/BP_Door", "/Game/BP_Gate"}, db.AssetsImplementing("ADoor"))
	assert.Equal(t, 3, db.Len())

	db.Add("/Game/BP_Gate", "AGate")
	assert.Equal(t, []string{"/Game/BP_Door"}, db.AssetsImplementing("ADoor"))
	class, ok := db.ClassOf("/Game/BP_Gate")
	require.True(t, ok)
	assert.Equal(t, "AGate", class)

	db.Add("/Game/BP_Door", "")
	assert.Empty(t, db.AssetsImplementing("ADoor"))
	_, ok = db.ClassOf("/Game/BP_Door")
	assert.False(t, ok)
}

func TestDatabase_SnapshotLifecycle(t *testing.T) {
	db := NewDatabase()
	assert.False(t, db.Complete())

	db.Clear()
	db.Add("/Game/A", "AThing")
	assert.False(t, db.Complete())
	db.Finish()
	assert.True(t, db.Complete())

	db.Clear()
	assert.Equal(t, 0, db.Len())
	assert.False(t, db.Complete())
}

func TestDatabase_Replacements(t *testing.T) {
	db := NewDatabase()
	db.ReplaceDefinition("Loot", []string{"a"})
	db.ReplaceDefinition("Loot", []string{"b", "c"})
	db.ReplaceDefinition("Armor", nil)

	got := db.TakeReplacements()
	require.Len(t, got, 2)
	assert.Equal(t, "Armor", got[0].Asset)
	assert.Equal(t, []string{"b", "c"}, got[1].Lines)
	assert.Empty(t, db.TakeReplacements())
}
