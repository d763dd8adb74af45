package ace

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// AppliedUpdate pairs a reflected insight with the delta that was
// actually applied after synthesis.
type AppliedUpdate struct {
	Original    *DeltaUpdate `json:"original_insight"`
	Synthesized *DeltaUpdate `json:"synthesized"`
	Result      ApplyResult  `json:"result"`
}

// RejectedUpdate records an insight the curation pass declined, with
// the reason.
type RejectedUpdate struct {
	Insight *DeltaUpdate `json:"insight"`
	Reason  string       `json:"reason"`
}

// CurationSummary totals one curation pass.
type CurationSummary struct {
	TotalInsights int       `json:"total_insights"`
	Applied       int       `json:"applied"`
	Rejected      int       `json:"rejected"`
	CuratorID     string    `json:"curator_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// CurationResult is the structured outcome of Curate.
type CurationResult struct {
	AppliedUpdates  []AppliedUpdate  `json:"applied_updates"`
	RejectedUpdates []RejectedUpdate `json:"rejected_updates"`
	Summary         CurationSummary  `json:"summary"`
}

// ItemReview is the verdict on one reviewed manual item.
type ItemReview struct {
	ItemID            string   `json:"item_id"`
	NeedsUpdate       bool     `json:"needs_update"`
	SuggestedType     ItemType `json:"suggested_type"`
	ImprovedContent   string   `json:"improved_content,omitempty"`
	CurrentConfidence float64  `json:"current_confidence"`
}

// ReviewReport summarizes a manual review pass.
type ReviewReport struct {
	ReviewedItems  []ItemReview  `json:"reviewed_items"`
	CuratedChanges []ApplyResult `json:"curated_changes"`
	TotalReviewed  int           `json:"total_reviewed"`
	ChangesApplied int           `json:"changes_applied"`
}

// Curator synthesizes the Reflector's insights into compact deltas and
// applies them through the IncrementalUpdater. It also runs periodic
// manual reviews, flagging stale or low-confidence items.
type Curator struct {
	manual   *EvolvingManual
	metadata *MetadataIndex
	updater  *IncrementalUpdater
	generate GenerateFunc
	id       string
}

// NewCurator creates a curator. A nil updater gets one built over the
// given manual and index; generate may be nil for offline use.
func NewCurator(manual *EvolvingManual, metadata *MetadataIndex, updater *IncrementalUpdater, generate GenerateFunc) *Curator {
	if manual == nil {
		manual = NewEvolvingManual("")
	}
	if metadata == nil {
		metadata = NewMetadataIndex()
	}
	if updater == nil {
		updater = NewIncrementalUpdater(manual, metadata)
	}
	return &Curator{
		manual:   manual,
		metadata: metadata,
		updater:  updater,
		generate: generate,
		id:       "curator_" + uuid.New().String()[:8],
	}
}

// Curate synthesizes each insight and applies it to the manual.
// Insights are processed independently; a rejection never blocks the
// rest of the batch.
func (c *Curator) Curate(ctx context.Context, insights []*DeltaUpdate, strategy MergeStrategy) (*CurationResult, error) {
	if err := errors.CheckContext(ctx, "curate"); err != nil {
		return nil, err
	}

	result := &CurationResult{
		AppliedUpdates:  []AppliedUpdate{},
		RejectedUpdates: []RejectedUpdate{},
	}

	for _, insight := range insights {
		synthesized, err := c.synthesizeInsight(ctx, insight)
		if err != nil {
			result.RejectedUpdates = append(result.RejectedUpdates, RejectedUpdate{
				Insight: insight,
				Reason:  err.Error(),
			})
			continue
		}

		applied := c.updater.ApplyUpdate(synthesized, strategy)
		if applied.Success {
			result.AppliedUpdates = append(result.AppliedUpdates, AppliedUpdate{
				Original:    insight,
				Synthesized: synthesized,
				Result:      applied,
			})
		} else {
			result.RejectedUpdates = append(result.RejectedUpdates, RejectedUpdate{
				Insight: insight,
				Reason:  applied.Error,
			})
		}
	}

	result.Summary = CurationSummary{
		TotalInsights: len(insights),
		Applied:       len(result.AppliedUpdates),
		Rejected:      len(result.RejectedUpdates),
		CuratorID:     c.id,
		Timestamp:     time.Now(),
	}

	logging.GetLogger().Debug(ctx, "%s curated %d insights: %d applied, %d rejected",
		c.id, result.Summary.TotalInsights, result.Summary.Applied, result.Summary.Rejected)
	return result, nil
}

// synthesizeInsight produces the delta that actually gets applied.
// With a model available the content is condensed and the delta gets a
// small confidence boost plus a "curated" tag; offline the content is
// truncated to keep the manual compact.
func (c *Curator) synthesizeInsight(ctx context.Context, insight *DeltaUpdate) (*DeltaUpdate, error) {
	if insight == nil {
		return nil, errors.New(errors.InvalidInput, "nil insight")
	}

	if c.generate == nil {
		return NewDeltaUpdate(insight.Action, insight.ItemType, truncate(insight.Content, 500),
			WithTarget(insight.TargetItemID),
			WithSources(insight.SourceItemIDs...),
			WithCreator("Curator"),
			WithConfidence(insight.Confidence),
			WithDeltaTags(insight.Tags...),
		), nil
	}

	prompt := fmt.Sprintf(`Synthesize this insight into a compact, actionable format for an evolving manual:

Original: %s
Type: %s

Provide a concise, reusable version (max 200 words).`, insight.Content, insight.ItemType)

	content, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, errors.Wrap(err, errors.GenerationFailed, "insight synthesis failed")
	}

	confidence := insight.Confidence + 0.1
	if confidence > 1.0 {
		confidence = 1.0
	}
	return NewDeltaUpdate(insight.Action, insight.ItemType, content,
		WithTarget(insight.TargetItemID),
		WithSources(insight.SourceItemIDs...),
		WithCreator("Curator"),
		WithConfidence(confidence),
		WithDeltaTags(append(append([]string(nil), insight.Tags...), "curated")...),
	), nil
}

// ReviewManual reviews existing items and applies improvements. With
// focusAreas the review covers items carrying those tags; otherwise it
// takes the maxReviews least used active items. Items flagged by the
// review heuristics get an update delta applied in place.
func (c *Curator) ReviewManual(ctx context.Context, focusAreas []string, maxReviews int) (*ReviewReport, error) {
	if err := errors.CheckContext(ctx, "review manual"); err != nil {
		return nil, err
	}
	if maxReviews <= 0 {
		maxReviews = 10
	}

	var toReview []*ManualItem
	if len(focusAreas) > 0 {
		seen := make(map[string]struct{})
		for _, tag := range focusAreas {
			for _, item := range c.manual.GetItemsByTag(tag) {
				if _, dup := seen[item.ItemID]; dup {
					continue
				}
				seen[item.ItemID] = struct{}{}
				toReview = append(toReview, item)
			}
		}
	} else {
		toReview = c.manual.GetActiveItems()
		sort.SliceStable(toReview, func(i, j int) bool {
			return usageOf(toReview[i]) < usageOf(toReview[j])
		})
		if len(toReview) > maxReviews {
			toReview = toReview[:maxReviews]
		}
	}

	report := &ReviewReport{
		ReviewedItems:  []ItemReview{},
		CuratedChanges: []ApplyResult{},
	}

	for _, item := range toReview {
		review := c.reviewItem(item)
		report.ReviewedItems = append(report.ReviewedItems, review)

		if !review.NeedsUpdate {
			continue
		}
		content := review.ImprovedContent
		if content == "" {
			content = item.Content
		}
		update := NewDeltaUpdate(ActionUpdate, review.SuggestedType, content,
			WithTarget(item.ItemID),
			WithCreator("Curator"),
			WithConfidence(0.8),
			WithDeltaTags("curation", "review"),
		)
		if applied := c.updater.ApplyUpdate(update, StrategyDeterministic); applied.Success {
			report.CuratedChanges = append(report.CuratedChanges, applied)
		}
	}

	report.TotalReviewed = len(report.ReviewedItems)
	report.ChangesApplied = len(report.CuratedChanges)
	return report, nil
}

// reviewItem applies the staleness and confidence heuristics to one
// item.
func (c *Curator) reviewItem(item *ManualItem) ItemReview {
	review := ItemReview{
		ItemID:            item.ItemID,
		SuggestedType:     item.ItemType,
		CurrentConfidence: 1.0,
	}

	md := item.Metadata
	if md == nil {
		return review
	}
	review.CurrentConfidence = md.ConfidenceScore

	daysSinceUpdate := int(time.Since(md.UpdatedAt).Hours() / 24)
	if md.UsageCount < 2 && daysSinceUpdate > 30 {
		review.NeedsUpdate = true
		review.ImprovedContent = "[Review needed] " + item.Content
	}
	if md.ConfidenceScore < 0.5 {
		review.NeedsUpdate = true
	}
	return review
}
