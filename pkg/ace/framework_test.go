package ace

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameworkAddManualItem(t *testing.T) {
	f := NewFramework()

	id := f.AddManualItem("Use HTTPS for all API calls", ItemTypeConstraint, []string{"security"}, "user", 0.9)

	item, ok := f.Manual().GetItem(id)
	require.True(t, ok)
	assert.Equal(t, 0.9, item.Metadata.ConfidenceScore)
	assert.Equal(t, "user", item.Metadata.CreatedBy)
	assert.Equal(t, 1, item.Metadata.Version)

	md, ok := f.MetadataIndex().Get(id)
	require.True(t, ok)
	assert.Same(t, item.Metadata, md)
}

func TestFrameworkConstraintGrowth(t *testing.T) {
	f := NewFramework()

	id := f.AddManualItem("Use HTTPS for all API calls", ItemTypeConstraint, []string{"security"}, "user", 0.9)

	update := NewDeltaUpdate(ActionUpdate, ItemTypeConstraint, "Also enforce TLS 1.2+",
		WithTarget(id),
		WithConfidence(0.95),
	)
	result := f.Updater().ApplyUpdate(update, StrategyDeterministic)
	require.True(t, result.Success)

	item, _ := f.Manual().GetItem(id)
	assert.Contains(t, item.Content, "Use HTTPS for all API calls")
	assert.Contains(t, item.Content, "Also enforce TLS 1.2+")
	assert.Equal(t, 0.95, item.Metadata.ConfidenceScore)
	assert.Equal(t, 2, item.Metadata.Version)
}

func TestFrameworkExecuteCycle(t *testing.T) {
	f := NewFramework(WithGenerateFunc(stubGenerate("cycle response")))
	f.AddManualItem("Deployment checklist", ItemTypeInstruction, nil, "user", 1.0)

	result, err := f.ExecuteCycle(context.Background(), "deploy the service", "", &ExecutionFeedback{}, true)
	require.NoError(t, err)

	assert.NotEmpty(t, result.CycleID)
	assert.Equal(t, "deploy the service", result.Task)
	require.NotNil(t, result.Generation)
	assert.Equal(t, "cycle response", result.Generation.Response)

	// A successful run with feedback produces one insight, and the
	// curator lands it in the manual.
	assert.Equal(t, 1, result.Reflection.InsightsCount)
	assert.Equal(t, 1, result.Curation.Summary.Applied)
	assert.Equal(t, result.StatsBefore.TotalItems+1, result.StatsAfter.TotalItems)

	stats := f.Statistics()
	assert.Equal(t, 1, stats.TotalCycles)
	assert.Equal(t, 1, stats.UpdateHistoryCount)
}

func TestFrameworkPhaseMethods(t *testing.T) {
	f := NewFramework(WithGenerateFunc(stubGenerate("ok")))

	generation, err := f.GenerateOnly(context.Background(), "task", GenerateOptions{UseManual: true})
	require.NoError(t, err)

	insights, err := f.ReflectOnly(context.Background(), generation, nil, false)
	require.NoError(t, err)
	require.Len(t, insights, 1)

	curation, err := f.CurateOnly(context.Background(), insights)
	require.NoError(t, err)
	assert.Equal(t, 1, curation.Summary.Applied)
	// Nothing went into execution history: only full cycles do.
	assert.Empty(t, f.ExecutionHistory())
}

func TestFrameworkSearchManual(t *testing.T) {
	f := NewFramework()
	https := f.AddManualItem("Use HTTPS for API calls", ItemTypeConstraint, []string{"security"}, "user", 1.0)
	f.AddManualItem("Cache aggressively", ItemTypeInsight, []string{"perf"}, "user", 1.0)

	t.Run("content match is case-insensitive", func(t *testing.T) {
		results := f.SearchManual("https", "", nil)
		require.Len(t, results, 1)
		assert.Equal(t, https, results[0].ItemID)
	})

	t.Run("type filter", func(t *testing.T) {
		assert.Empty(t, f.SearchManual("https", ItemTypeInsight, nil))
		assert.Len(t, f.SearchManual("https", ItemTypeConstraint, nil), 1)
	})

	t.Run("tag filter", func(t *testing.T) {
		assert.Len(t, f.SearchManual("", "", []string{"perf"}), 1)
		assert.Empty(t, f.SearchManual("https", "", []string{"perf"}))
	})

	t.Run("no match", func(t *testing.T) {
		assert.Empty(t, f.SearchManual("kubernetes", "", nil))
	})
}

func TestFrameworkManualContext(t *testing.T) {
	f := NewFramework()
	f.AddManualItem("rule one", ItemTypeInstruction, nil, "user", 1.0)

	out := f.ManualContext(0, PrioritizeByUsage)
	assert.Contains(t, out, "[INSTRUCTION]")
	assert.Contains(t, out, "rule one")
}

func TestFrameworkStateRoundTrip(t *testing.T) {
	f := NewFramework(WithGenerateFunc(stubGenerate("resp")), WithManualID("rt"))
	id := f.AddManualItem("Use HTTPS", ItemTypeConstraint, []string{"security"}, "user", 0.9)

	_, err := f.ExecuteCycle(context.Background(), "harden the API", "", &ExecutionFeedback{}, true)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, f.SaveState(path))

	restored, err := LoadState(path, nil)
	require.NoError(t, err)

	assert.Equal(t, f.FrameworkID(), restored.FrameworkID())
	assert.Equal(t, f.Manual().Len(), restored.Manual().Len())
	assert.Equal(t, f.Updater().HistoryLen(), restored.Updater().HistoryLen())
	assert.Len(t, restored.ExecutionHistory(), 1)

	item, ok := restored.Manual().GetItem(id)
	require.True(t, ok)
	assert.Equal(t, "Use HTTPS", item.Content)
	assert.Equal(t, 0.9, item.Metadata.ConfidenceScore)
	assert.True(t, item.Metadata.HasTag("security"))

	// The restored framework keeps evolving from where it left off.
	update := NewDeltaUpdate(ActionUpdate, ItemTypeConstraint, "Enforce TLS 1.2+",
		WithTarget(id), WithConfidence(0.95))
	result := restored.Updater().ApplyUpdate(update, StrategyDeterministic)
	require.True(t, result.Success)
	got, _ := restored.Manual().GetItem(id)
	assert.Contains(t, got.Content, "Enforce TLS 1.2+")
}

func TestLoadStateErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadState(filepath.Join(t.TempDir(), "missing.json"), nil)
		require.Error(t, err)
	})

	t.Run("nil state", func(t *testing.T) {
		_, err := RestoreFramework(nil, nil)
		require.Error(t, err)
	})

	t.Run("state without manual", func(t *testing.T) {
		_, err := RestoreFramework(&FrameworkState{FrameworkID: "x"}, nil)
		require.Error(t, err)
	})
}

func TestFrameworkReviewManual(t *testing.T) {
	f := NewFramework()
	id := f.AddManualItem("shaky advice", ItemTypeInsight, nil, "user", 0.3)

	report, err := f.ReviewManual(context.Background(), nil, 5)
	require.NoError(t, err)

	assert.Equal(t, 1, report.TotalReviewed)
	require.Equal(t, 1, report.ChangesApplied)
	assert.Equal(t, id, report.ReviewedItems[0].ItemID)
}
