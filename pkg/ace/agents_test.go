package ace

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubGenerate(response string) GenerateFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		return response, nil
	}
}

func TestGeneratorGenerate(t *testing.T) {
	t.Run("uses manual context and records usage", func(t *testing.T) {
		manual := NewEvolvingManual("")
		index := NewMetadataIndex()
		item := addTestItem(manual, "Always pin dependency versions", ItemTypeInstruction)
		index.Add(item.Metadata)

		var seenPrompt string
		g := NewGenerator(manual, index, func(ctx context.Context, prompt string) (string, error) {
			seenPrompt = prompt
			return "done", nil
		})

		result, err := g.Generate(context.Background(), "set up CI", GenerateOptions{UseManual: true})
		require.NoError(t, err)

		assert.Equal(t, "done", result.Response)
		assert.Contains(t, seenPrompt, "Always pin dependency versions")
		assert.Contains(t, seenPrompt, "Task: set up CI")
		assert.Equal(t, []string{item.ItemID}, result.UsedItems)
		assert.Equal(t, 1, item.Metadata.UsageCount)
		require.NotNil(t, result.Trace)
		assert.True(t, result.Trace.ContextUsed)
		assert.Equal(t, 1, result.Trace.ManualItemsCount)
	})

	t.Run("skips manual when disabled", func(t *testing.T) {
		manual := NewEvolvingManual("")
		item := addTestItem(manual, "guidance", ItemTypeInstruction)

		g := NewGenerator(manual, nil, stubGenerate("ok"))
		result, err := g.Generate(context.Background(), "task", GenerateOptions{})
		require.NoError(t, err)

		assert.Empty(t, result.UsedItems)
		assert.Zero(t, result.ManualContextLength)
		assert.Zero(t, item.Metadata.UsageCount)
	})

	t.Run("max manual items limits usage tracking", func(t *testing.T) {
		manual := NewEvolvingManual("")
		low := addTestItem(manual, "low confidence", ItemTypeInsight)
		low.Metadata.ConfidenceScore = 0.2
		high := addTestItem(manual, "high confidence", ItemTypeInsight)
		high.Metadata.ConfidenceScore = 0.9

		g := NewGenerator(manual, nil, stubGenerate("ok"))
		result, err := g.Generate(context.Background(), "task", GenerateOptions{
			UseManual:      true,
			MaxManualItems: 1,
		})
		require.NoError(t, err)

		assert.Equal(t, []string{high.ItemID}, result.UsedItems)
		assert.Equal(t, 1, high.Metadata.UsageCount)
		assert.Zero(t, low.Metadata.UsageCount)
	})

	t.Run("offline fallback without model", func(t *testing.T) {
		g := NewGenerator(nil, nil, nil)
		result, err := g.Generate(context.Background(), "task", GenerateOptions{UseManual: true})
		require.NoError(t, err)
		assert.Contains(t, result.Response, "task")
	})

	t.Run("reasoning extraction", func(t *testing.T) {
		response := "Reasoning: check the cache first\nAnswer: yes"
		assert.Equal(t, "Reasoning: check the cache first", extractReasoning(response))

		long := strings.Repeat("x", 600)
		assert.Len(t, extractReasoning(long), 500)
	})
}

func TestGeneratorCreateManualItem(t *testing.T) {
	manual := NewEvolvingManual("")
	index := NewMetadataIndex()
	g := NewGenerator(manual, index, nil)

	id := g.CreateManualItem("observed shortcut", ItemTypeInsight, "generation")

	item, ok := manual.GetItem(id)
	require.True(t, ok)
	assert.Equal(t, 0.7, item.Metadata.ConfidenceScore)
	assert.Equal(t, "Generator", item.Metadata.CreatedBy)
	_, ok = index.Get(id)
	assert.True(t, ok)
}

func TestReflectorReflect(t *testing.T) {
	trace := func(usedItems ...string) *GenerationResult {
		return &GenerationResult{
			Response:  "response",
			Reasoning: "reasoning",
			UsedItems: usedItems,
			Trace:     &GenerationTrace{Task: "deploy service", Timestamp: time.Now()},
		}
	}

	t.Run("success with feedback yields success pattern", func(t *testing.T) {
		r := NewReflector(nil, nil, nil)
		insights, err := r.Reflect(context.Background(), trace(), &ExecutionFeedback{}, true)
		require.NoError(t, err)

		require.Len(t, insights, 1)
		assert.Equal(t, ActionAdd, insights[0].Action)
		assert.Equal(t, ItemTypeInsight, insights[0].ItemType)
		assert.Equal(t, 0.8, insights[0].Confidence)
		assert.Equal(t, []string{"success_pattern", "reflection"}, insights[0].Tags)
		assert.Equal(t, "Reflector", insights[0].CreatedBy)
	})

	t.Run("success without feedback yields nothing", func(t *testing.T) {
		r := NewReflector(nil, nil, nil)
		insights, err := r.Reflect(context.Background(), trace(), nil, true)
		require.NoError(t, err)
		assert.Empty(t, insights)
	})

	t.Run("failure yields lesson with lower confidence", func(t *testing.T) {
		r := NewReflector(nil, nil, nil)
		insights, err := r.Reflect(context.Background(), trace(), &ExecutionFeedback{Error: "timeout"}, false)
		require.NoError(t, err)

		require.Len(t, insights, 1)
		assert.Equal(t, 0.6, insights[0].Confidence)
		assert.Contains(t, insights[0].Content, "timeout")
		assert.Equal(t, []string{"failure_lesson", "reflection"}, insights[0].Tags)
	})

	t.Run("problematic items get refinement deltas", func(t *testing.T) {
		manual := NewEvolvingManual("")
		index := NewMetadataIndex()
		item := addTestItem(manual, "flaky advice", ItemTypeInstruction)
		index.Add(item.Metadata)

		r := NewReflector(manual, index, nil)
		feedback := &ExecutionFeedback{
			Error:            "failed",
			Issues:           map[string]string{item.ItemID: "advice caused a regression"},
			ProblematicItems: []string{item.ItemID},
		}
		insights, err := r.Reflect(context.Background(), trace(item.ItemID), feedback, false)
		require.NoError(t, err)

		require.Len(t, insights, 2)
		refinement := insights[1]
		assert.Equal(t, ActionUpdate, refinement.Action)
		assert.Equal(t, ItemTypeRefinement, refinement.ItemType)
		assert.Equal(t, item.ItemID, refinement.TargetItemID)
		assert.Contains(t, refinement.Content, "advice caused a regression")
	})

	t.Run("used items get reflection recorded", func(t *testing.T) {
		manual := NewEvolvingManual("")
		index := NewMetadataIndex()
		item := addTestItem(manual, "advice", ItemTypeInstruction)
		index.Add(item.Metadata)

		r := NewReflector(manual, index, nil)
		_, err := r.Reflect(context.Background(), trace(item.ItemID), nil, true)
		require.NoError(t, err)
		assert.Equal(t, 1, item.Metadata.ReflectionCount)
	})

	t.Run("nil result is rejected", func(t *testing.T) {
		r := NewReflector(nil, nil, nil)
		_, err := r.Reflect(context.Background(), nil, nil, true)
		require.Error(t, err)
	})
}

func TestCuratorCurate(t *testing.T) {
	t.Run("applies insights through the updater", func(t *testing.T) {
		c := NewCurator(nil, nil, nil, nil)
		insights := []*DeltaUpdate{
			NewDeltaUpdate(ActionAdd, ItemTypeInsight, "lesson one", WithConfidence(0.8)),
			NewDeltaUpdate(ActionAdd, ItemTypeInsight, "lesson two", WithConfidence(0.6)),
		}

		result, err := c.Curate(context.Background(), insights, StrategyDeterministic)
		require.NoError(t, err)

		assert.Equal(t, 2, result.Summary.TotalInsights)
		assert.Equal(t, 2, result.Summary.Applied)
		assert.Zero(t, result.Summary.Rejected)
		assert.Equal(t, 2, c.updater.Manual().Len())
		// Offline synthesis re-issues the delta under the Curator's name.
		assert.Equal(t, "Curator", result.AppliedUpdates[0].Synthesized.CreatedBy)
	})

	t.Run("rejections carry the updater's reason", func(t *testing.T) {
		c := NewCurator(nil, nil, nil, nil)
		insights := []*DeltaUpdate{
			NewDeltaUpdate(ActionUpdate, ItemTypeInsight, "x", WithTarget("ghost")),
		}

		result, err := c.Curate(context.Background(), insights, StrategyDeterministic)
		require.NoError(t, err)

		assert.Zero(t, result.Summary.Applied)
		require.Len(t, result.RejectedUpdates, 1)
		assert.Contains(t, result.RejectedUpdates[0].Reason, "not found")
	})

	t.Run("model synthesis boosts confidence and tags", func(t *testing.T) {
		c := NewCurator(nil, nil, nil, stubGenerate("condensed lesson"))
		insights := []*DeltaUpdate{
			NewDeltaUpdate(ActionAdd, ItemTypeInsight, "verbose lesson",
				WithConfidence(0.8), WithDeltaTags("reflection")),
		}

		result, err := c.Curate(context.Background(), insights, StrategyDeterministic)
		require.NoError(t, err)

		require.Len(t, result.AppliedUpdates, 1)
		synthesized := result.AppliedUpdates[0].Synthesized
		assert.Equal(t, "condensed lesson", synthesized.Content)
		assert.InDelta(t, 0.9, synthesized.Confidence, 1e-9)
		assert.Equal(t, []string{"reflection", "curated"}, synthesized.Tags)
	})

	t.Run("offline synthesis truncates long content", func(t *testing.T) {
		c := NewCurator(nil, nil, nil, nil)
		long := strings.Repeat("y", 600)
		result, err := c.Curate(context.Background(), []*DeltaUpdate{
			NewDeltaUpdate(ActionAdd, ItemTypeInsight, long),
		}, StrategyDeterministic)
		require.NoError(t, err)
		require.Len(t, result.AppliedUpdates, 1)
		assert.Len(t, result.AppliedUpdates[0].Synthesized.Content, 500)
	})
}

func TestCuratorReviewManual(t *testing.T) {
	t.Run("low confidence items get updated", func(t *testing.T) {
		manual := NewEvolvingManual("")
		index := NewMetadataIndex()
		item := addTestItem(manual, "weak advice", ItemTypeInsight)
		item.Metadata.ConfidenceScore = 0.3
		index.Add(item.Metadata)

		c := NewCurator(manual, index, nil, nil)
		report, err := c.ReviewManual(context.Background(), nil, 10)
		require.NoError(t, err)

		assert.Equal(t, 1, report.TotalReviewed)
		assert.Equal(t, 1, report.ChangesApplied)
	})

	t.Run("stale unused items are flagged for review", func(t *testing.T) {
		manual := NewEvolvingManual("")
		item := addTestItem(manual, "forgotten advice", ItemTypeInstruction)
		item.Metadata.UpdatedAt = time.Now().AddDate(0, 0, -60)

		c := NewCurator(manual, nil, nil, nil)
		report, err := c.ReviewManual(context.Background(), nil, 10)
		require.NoError(t, err)

		require.Equal(t, 1, report.ChangesApplied)
		got, _ := manual.GetItem(item.ItemID)
		assert.Contains(t, got.Content, "[Review needed]")
	})

	t.Run("focus areas restrict the review to tagged items", func(t *testing.T) {
		manual := NewEvolvingManual("")
		tagged := addTestItem(manual, "tagged", ItemTypeInsight, "security")
		tagged.Metadata.ConfidenceScore = 0.3
		addTestItem(manual, "untagged", ItemTypeInsight)

		c := NewCurator(manual, nil, nil, nil)
		report, err := c.ReviewManual(context.Background(), []string{"security"}, 10)
		require.NoError(t, err)

		require.Len(t, report.ReviewedItems, 1)
		assert.Equal(t, tagged.ItemID, report.ReviewedItems[0].ItemID)
	})

	t.Run("healthy items are left alone", func(t *testing.T) {
		manual := NewEvolvingManual("")
		addTestItem(manual, "solid advice", ItemTypeInstruction)

		c := NewCurator(manual, nil, nil, nil)
		report, err := c.ReviewManual(context.Background(), nil, 10)
		require.NoError(t, err)

		assert.Equal(t, 1, report.TotalReviewed)
		assert.Zero(t, report.ChangesApplied)
	})
}
