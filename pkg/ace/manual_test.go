package ace

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func addTestItem(m *EvolvingManual, content string, itemType ItemType, tags ...string) *ManualItem {
	item := NewManualItem(content, itemType)
	md := NewMetadata(item.ItemID, itemType, "tester")
	md.Tags = append([]string(nil), tags...)
	m.AddItem(item, md)
	return item
}

func TestNewEvolvingManual(t *testing.T) {
	m := NewEvolvingManual("")
	assert.NotEmpty(t, m.ManualID)
	assert.Equal(t, 1, m.Version)
	assert.Zero(t, m.Len())

	named := NewEvolvingManual("manual-x")
	assert.Equal(t, "manual-x", named.ManualID)
}

func TestManualAddAndGet(t *testing.T) {
	m := NewEvolvingManual("")
	item := addTestItem(m, "Always validate inputs", ItemTypeInstruction, "safety")

	got, ok := m.GetItem(item.ItemID)
	require.True(t, ok)
	assert.Equal(t, "Always validate inputs", got.Content)
	assert.Equal(t, 2, m.Version) // creation is 1, first add bumps it

	byType := m.GetItemsByType(ItemTypeInstruction)
	require.Len(t, byType, 1)
	byTag := m.GetItemsByTag("safety")
	require.Len(t, byTag, 1)
	assert.Equal(t, item.ItemID, byTag[0].ItemID)
}

func TestManualUpdateItem(t *testing.T) {
	m := NewEvolvingManual("")
	item := addTestItem(m, "v1", ItemTypeInstruction)

	ok := m.UpdateItem(item.ItemID, "v2", "editor")
	require.True(t, ok)

	got, _ := m.GetItem(item.ItemID)
	assert.Equal(t, "v2", got.Content)
	assert.Equal(t, 2, got.Metadata.Version)
	assert.Equal(t, "editor", got.Metadata.CustomFields["updated_by"])

	assert.False(t, m.UpdateItem("missing", "x", ""))
}

func TestManualRemoveItem(t *testing.T) {
	t.Run("deprecate keeps item discoverable", func(t *testing.T) {
		m := NewEvolvingManual("")
		item := addTestItem(m, "old advice", ItemTypeInsight, "legacy")

		require.True(t, m.RemoveItem(item.ItemID, true))

		got, ok := m.GetItem(item.ItemID)
		require.True(t, ok)
		assert.Equal(t, StatusDeprecated, got.Metadata.Status)
		// Indexes keep deprecated items; active filtering happens later.
		assert.Len(t, m.GetItemsByTag("legacy"), 1)
		assert.Empty(t, m.GetActiveItems())
	})

	t.Run("hard removal purges indexes", func(t *testing.T) {
		m := NewEvolvingManual("")
		item := addTestItem(m, "obsolete", ItemTypePattern, "legacy")

		require.True(t, m.RemoveItem(item.ItemID, false))

		_, ok := m.GetItem(item.ItemID)
		assert.False(t, ok)
		assert.Empty(t, m.GetItemsByType(ItemTypePattern))
		assert.Empty(t, m.GetItemsByTag("legacy"))
	})

	t.Run("unknown id", func(t *testing.T) {
		m := NewEvolvingManual("")
		assert.False(t, m.RemoveItem("missing", true))
	})
}

func TestManualToContextString(t *testing.T) {
	m := NewEvolvingManual("")
	first := addTestItem(m, "Validate inputs", ItemTypeInstruction)
	second := addTestItem(m, "Prefer retries with backoff", ItemTypeInsight)
	second.Metadata.UsageCount = 10

	t.Run("format and prioritization", func(t *testing.T) {
		out := m.ToContextString(0, PrioritizeByUsage)
		blocks := strings.Split(out, "\n\n")
		require.Len(t, blocks, 2)
		assert.Equal(t, "[INSIGHT] "+second.ItemID+"\nPrefer retries with backoff", blocks[0])
		assert.Equal(t, "[INSTRUCTION] "+first.ItemID+"\nValidate inputs", blocks[1])
	})

	t.Run("max items truncates after sorting", func(t *testing.T) {
		out := m.ToContextString(1, PrioritizeByUsage)
		assert.Contains(t, out, second.ItemID)
		assert.NotContains(t, out, first.ItemID)
	})

	t.Run("confidence prioritization", func(t *testing.T) {
		first.Metadata.ConfidenceScore = 0.2
		second.Metadata.ConfidenceScore = 0.9
		out := m.ToContextString(0, PrioritizeByConfidence)
		assert.True(t, strings.Index(out, second.ItemID) < strings.Index(out, first.ItemID))
	})

	t.Run("deprecated items excluded", func(t *testing.T) {
		m.RemoveItem(first.ItemID, true)
		out := m.ToContextString(0, PrioritizeByUsage)
		assert.NotContains(t, out, first.ItemID)
	})
}

func TestManualTokenEstimation(t *testing.T) {
	m := NewEvolvingManual("")
	addTestItem(m, strings.Repeat("a", 40), ItemTypeInstruction)
	addTestItem(m, strings.Repeat("b", 20), ItemTypeInsight)

	assert.Equal(t, 15, m.EstimateTotalTokens())
}

func TestManualStatistics(t *testing.T) {
	m := NewEvolvingManual("stats-manual")
	a := addTestItem(m, "one", ItemTypeInstruction)
	addTestItem(m, "two", ItemTypeInsight)
	m.RemoveItem(a.ItemID, true)

	stats := m.Statistics()
	assert.Equal(t, "stats-manual", stats.ManualID)
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 1, stats.ActiveItems)
	assert.Equal(t, 4, stats.Version) // create + 2 adds + deprecate
}

func TestManualSnapshotRoundTrip(t *testing.T) {
	m := NewEvolvingManual("rt-manual")
	a := addTestItem(m, "keep validating", ItemTypeInstruction, "safety")
	b := addTestItem(m, "cache hot paths", ItemTypeInsight)
	b.Metadata.UsageCount = 3

	snap := m.Snapshot()

	// Snapshot must be detached from the live manual.
	m.UpdateItem(a.ItemID, "mutated", "")
	assert.Equal(t, "keep validating", snap.Items[a.ItemID].Content)

	index := NewMetadataIndex()
	restored, err := RestoreManual(snap, index)
	require.NoError(t, err)

	assert.Equal(t, "rt-manual", restored.ManualID)
	assert.Equal(t, m.Version, restored.Version+1) // snapshot predates the mutation
	assert.Equal(t, 2, restored.Len())

	got, ok := restored.GetItem(b.ItemID)
	require.True(t, ok)
	assert.Equal(t, 3, got.Metadata.UsageCount)

	// Derived indexes and the metadata index are rebuilt.
	assert.Len(t, restored.GetItemsByTag("safety"), 1)
	_, ok = index.Get(a.ItemID)
	assert.True(t, ok)
}

func TestRestoreManualRejectsCorruptSnapshots(t *testing.T) {
	m := NewEvolvingManual("")
	item := addTestItem(m, "x", ItemTypeInstruction)

	t.Run("invalid item type", func(t *testing.T) {
		snap := m.Snapshot()
		snap.Items[item.ItemID].ItemType = "bogus"
		_, err := RestoreManual(snap, nil)
		require.Error(t, err)
	})

	t.Run("invalid status", func(t *testing.T) {
		snap := m.Snapshot()
		snap.Items[item.ItemID].Metadata.Status = "bogus"
		_, err := RestoreManual(snap, nil)
		require.Error(t, err)
	})

	t.Run("nil snapshot", func(t *testing.T) {
		_, err := RestoreManual(nil, nil)
		require.Error(t, err)
	})
}
