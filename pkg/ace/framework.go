package ace

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// ReflectionSummary compacts one reflection phase for the cycle record.
type ReflectionSummary struct {
	InsightsCount int            `json:"insights_count"`
	Insights      []*DeltaUpdate `json:"insights"`
}

// CycleResult records one full generate-reflect-curate cycle.
type CycleResult struct {
	CycleID         string            `json:"cycle_id"`
	Task            string            `json:"task"`
	Timestamp       time.Time         `json:"timestamp"`
	DurationSeconds float64           `json:"duration_seconds"`
	Generation      *GenerationResult `json:"generation"`
	Reflection      ReflectionSummary `json:"reflection"`
	Curation        *CurationResult   `json:"curation"`
	StatsBefore     ManualStatistics  `json:"manual_stats_before"`
	StatsAfter      ManualStatistics  `json:"manual_stats_after"`
}

// FrameworkStatistics aggregates counters across every component.
type FrameworkStatistics struct {
	FrameworkID        string           `json:"framework_id"`
	CreatedAt          time.Time        `json:"created_at"`
	ManualStats        ManualStatistics `json:"manual_stats"`
	MetadataStats      IndexStatistics  `json:"metadata_stats"`
	TotalCycles        int              `json:"total_cycles"`
	UpdateHistoryCount int              `json:"update_history_count"`
}

// Framework wires the manual, metadata index, updater, and the three
// agents into one orchestrator. All mutation of the manual flows
// through the shared IncrementalUpdater so the update history stays
// complete.
type Framework struct {
	manual   *EvolvingManual
	metadata *MetadataIndex
	merger   *DeterministicMerger
	updater  *IncrementalUpdater

	generator *Generator
	reflector *Reflector
	curator   *Curator

	frameworkID      string
	createdAt        time.Time
	executionHistory []*CycleResult
}

// FrameworkOption customizes a Framework at construction time.
type FrameworkOption func(*frameworkConfig)

type frameworkConfig struct {
	manual   *EvolvingManual
	metadata *MetadataIndex
	generate GenerateFunc
	manualID string
}

// WithManual seeds the framework with an existing manual.
func WithManual(manual *EvolvingManual) FrameworkOption {
	return func(c *frameworkConfig) { c.manual = manual }
}

// WithMetadataIndex seeds the framework with an existing index.
func WithMetadataIndex(metadata *MetadataIndex) FrameworkOption {
	return func(c *frameworkConfig) { c.metadata = metadata }
}

// WithGenerateFunc supplies the model capability shared by all three
// agents. Without it the agents run in their offline modes.
func WithGenerateFunc(generate GenerateFunc) FrameworkOption {
	return func(c *frameworkConfig) { c.generate = generate }
}

// WithManualID names the manual created when none is supplied.
func WithManualID(manualID string) FrameworkOption {
	return func(c *frameworkConfig) { c.manualID = manualID }
}

// NewFramework builds a framework with all components sharing one
// manual and metadata index.
func NewFramework(opts ...FrameworkOption) *Framework {
	var cfg frameworkConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	manual := cfg.manual
	if manual == nil {
		manual = NewEvolvingManual(cfg.manualID)
	}
	metadata := cfg.metadata
	if metadata == nil {
		metadata = NewMetadataIndex()
	}

	updater := NewIncrementalUpdater(manual, metadata)

	return &Framework{
		manual:           manual,
		metadata:         metadata,
		merger:           NewDeterministicMerger(),
		updater:          updater,
		generator:        NewGenerator(manual, metadata, cfg.generate),
		reflector:        NewReflector(manual, metadata, cfg.generate),
		curator:          NewCurator(manual, metadata, updater, cfg.generate),
		frameworkID:      "ace_" + uuid.New().String()[:8],
		createdAt:        time.Now(),
		executionHistory: []*CycleResult{},
	}
}

// Manual returns the shared manual.
func (f *Framework) Manual() *EvolvingManual { return f.manual }

// MetadataIndex returns the shared metadata index.
func (f *Framework) MetadataIndex() *MetadataIndex { return f.metadata }

// Updater returns the shared incremental updater.
func (f *Framework) Updater() *IncrementalUpdater { return f.updater }

// Merger returns the deterministic merger.
func (f *Framework) Merger() *DeterministicMerger { return f.merger }

// FrameworkID returns the framework's identifier.
func (f *Framework) FrameworkID() string { return f.frameworkID }

// ExecuteCycle runs one full cycle: generate a response for task,
// reflect on the outcome with the given feedback, then curate the
// resulting insights into the manual.
func (f *Framework) ExecuteCycle(ctx context.Context, task, taskContext string, feedback *ExecutionFeedback, success bool) (*CycleResult, error) {
	if err := errors.CheckContext(ctx, "execute cycle"); err != nil {
		return nil, err
	}

	cycleID := "cycle_" + uuid.New().String()[:8]
	start := time.Now()
	statsBefore := f.manual.Statistics()

	generation, err := f.generator.Generate(ctx, task, GenerateOptions{
		Context:   taskContext,
		UseManual: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.GenerationFailed, "cycle generation phase failed")
	}

	insights, err := f.reflector.Reflect(ctx, generation, feedback, success)
	if err != nil {
		return nil, errors.Wrap(err, errors.GenerationFailed, "cycle reflection phase failed")
	}

	curation, err := f.curator.Curate(ctx, insights, StrategyDeterministic)
	if err != nil {
		return nil, errors.Wrap(err, errors.GenerationFailed, "cycle curation phase failed")
	}

	result := &CycleResult{
		CycleID:         cycleID,
		Task:            task,
		Timestamp:       start,
		DurationSeconds: time.Since(start).Seconds(),
		Generation:      generation,
		Reflection: ReflectionSummary{
			InsightsCount: len(insights),
			Insights:      insights,
		},
		Curation:    curation,
		StatsBefore: statsBefore,
		StatsAfter:  f.manual.Statistics(),
	}

	f.executionHistory = append(f.executionHistory, result)

	logging.GetLogger().Info(ctx, "cycle %s completed in %.3fs: %d insights, %d applied",
		cycleID, result.DurationSeconds, len(insights), curation.Summary.Applied)
	return result, nil
}

// GenerateOnly runs just the generation phase.
func (f *Framework) GenerateOnly(ctx context.Context, task string, opts GenerateOptions) (*GenerationResult, error) {
	return f.generator.Generate(ctx, task, opts)
}

// ReflectOnly runs just the reflection phase.
func (f *Framework) ReflectOnly(ctx context.Context, result *GenerationResult, feedback *ExecutionFeedback, success bool) ([]*DeltaUpdate, error) {
	return f.reflector.Reflect(ctx, result, feedback, success)
}

// CurateOnly applies reflection insights to the manual with the
// deterministic strategy.
func (f *Framework) CurateOnly(ctx context.Context, insights []*DeltaUpdate) (*CurationResult, error) {
	return f.curator.Curate(ctx, insights, StrategyDeterministic)
}

// AddManualItem adds an item directly to the manual, bypassing the
// agent cycle. Returns the new item's id.
func (f *Framework) AddManualItem(content string, itemType ItemType, tags []string, createdBy string, confidence float64) string {
	item := NewManualItem(content, itemType)

	md := NewMetadata(item.ItemID, itemType, createdBy)
	md.Tags = append([]string(nil), tags...)
	md.ConfidenceScore = confidence
	md.ContextLength = item.EstimateTokens()

	f.metadata.Add(md)
	f.manual.AddItem(item, md)
	return item.ItemID
}

// ManualContext renders the manual for inclusion in a prompt.
func (f *Framework) ManualContext(maxItems int, prioritizeBy string) string {
	return f.manual.ToContextString(maxItems, prioritizeBy)
}

// ReviewManual reviews and curates existing items via the Curator.
func (f *Framework) ReviewManual(ctx context.Context, focusAreas []string, maxReviews int) (*ReviewReport, error) {
	return f.curator.ReviewManual(ctx, focusAreas, maxReviews)
}

// SearchManual returns active items whose content contains query,
// case-insensitively, optionally narrowed by type and tags. An empty
// itemType means no type filter.
func (f *Framework) SearchManual(query string, itemType ItemType, tags []string) []*ManualItem {
	candidates := f.manual.GetActiveItems()
	if itemType != "" {
		candidates = f.manual.GetItemsByType(itemType)
	}

	if len(tags) > 0 {
		tagged := make(map[string]struct{})
		for _, tag := range tags {
			for _, item := range f.manual.GetItemsByTag(tag) {
				tagged[item.ItemID] = struct{}{}
			}
		}
		filtered := candidates[:0:0]
		for _, item := range candidates {
			if _, ok := tagged[item.ItemID]; ok {
				filtered = append(filtered, item)
			}
		}
		candidates = filtered
	}

	queryLower := strings.ToLower(query)
	var results []*ManualItem
	for _, item := range candidates {
		if strings.Contains(strings.ToLower(item.Content), queryLower) {
			results = append(results, item)
		}
	}
	return results
}

// ExecutionHistory returns the recorded cycle results, oldest first.
func (f *Framework) ExecutionHistory() []*CycleResult {
	return append([]*CycleResult(nil), f.executionHistory...)
}

// Statistics aggregates counters across the framework.
func (f *Framework) Statistics() FrameworkStatistics {
	return FrameworkStatistics{
		FrameworkID:        f.frameworkID,
		CreatedAt:          f.createdAt,
		ManualStats:        f.manual.Statistics(),
		MetadataStats:      f.metadata.Statistics(),
		TotalCycles:        len(f.executionHistory),
		UpdateHistoryCount: f.updater.HistoryLen(),
	}
}
