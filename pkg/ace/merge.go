package ace

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/text/cases"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// DefaultDuplicateThreshold is the similarity above which two contents
// are considered duplicates.
const DefaultDuplicateThreshold = 0.8

// DeterministicMerger combines delta content into existing items using
// fixed per-type templates. Given the same existing item and delta it
// always produces the same merged content; no model call is involved.
// Every template is append-only: the existing content survives the
// merge verbatim somewhere in the output.
type DeterministicMerger struct {
	duplicateThreshold float64
}

// MergerOption customizes a DeterministicMerger.
type MergerOption func(*DeterministicMerger)

// WithDuplicateThreshold overrides the similarity threshold used by
// DetectDuplicates when the caller passes a non-positive threshold.
func WithDuplicateThreshold(threshold float64) MergerOption {
	return func(m *DeterministicMerger) { m.duplicateThreshold = threshold }
}

// NewDeterministicMerger creates a merger with the default duplicate
// threshold.
func NewDeterministicMerger(opts ...MergerOption) *DeterministicMerger {
	m := &DeterministicMerger{duplicateThreshold: DefaultDuplicateThreshold}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CanMerge reports whether delta may merge into existing. A merge is
// ruled out when the existing item is deprecated, or when the types
// differ and the delta is not a refinement or insight (those two kinds
// may attach to any item type).
func (m *DeterministicMerger) CanMerge(existing *ManualItem, delta *DeltaUpdate) bool {
	if existing == nil || delta == nil {
		return false
	}
	if existing.Metadata != nil && existing.Metadata.Status == StatusDeprecated {
		return false
	}
	if existing.ItemType != delta.ItemType {
		return delta.ItemType == ItemTypeRefinement || delta.ItemType == ItemTypeInsight
	}
	return true
}

// Merge combines delta content into existing per the existing item's
// type template and applies the metadata side effects: max-wins
// confidence, tag union, dependency extension, a merge_history entry,
// and exactly one version increment. The merged content is returned;
// writing it back to the manual is the caller's job.
func (m *DeterministicMerger) Merge(existing *ManualItem, delta *DeltaUpdate) (string, error) {
	if !m.CanMerge(existing, delta) {
		return "", errors.WithFields(
			errors.New(errors.MergeFailed, "items cannot be merged"),
			errors.Fields{
				"item_id":       existing.ItemID,
				"existing_type": string(existing.ItemType),
				"delta_type":    string(delta.ItemType),
			})
	}

	merged := m.mergeContent(existing.Content, delta.Content, existing.ItemType, delta.Timestamp)
	m.updateMetadata(existing.Metadata, delta)
	return merged, nil
}

// mergeContent dispatches on the EXISTING item's type, not the delta's:
// the template belongs to the item being grown.
func (m *DeterministicMerger) mergeContent(existing, delta string, itemType ItemType, at time.Time) string {
	date := at.Format("2006-01-02")

	switch itemType {
	case ItemTypeInstruction:
		original := existing
		if len(original) > 200 {
			original = original[:200] + "..."
		}
		return fmt.Sprintf("%s\n\n[Update %s]\n%s\n\n[Original]\n%s", existing, date, delta, original)
	case ItemTypeInsight:
		return existing + "\n\n" + delta
	case ItemTypePattern:
		return fmt.Sprintf("%s\n\n[Pattern Variant]\n%s", existing, delta)
	case ItemTypeExample:
		return fmt.Sprintf("%s\n\n[Example %s]\n%s", existing, date, delta)
	case ItemTypeConstraint:
		return fmt.Sprintf("%s\n\n[Additional Constraint]\n%s", existing, delta)
	case ItemTypeRefinement:
		return fmt.Sprintf("[Refined Version %s]\n%s\n\n---\n[Original Version]\n%s", date, delta, existing)
	default:
		return fmt.Sprintf("%s\n\n---\n\n[Update %s]\n%s", existing, at.Format(time.RFC3339), delta)
	}
}

func (m *DeterministicMerger) updateMetadata(md *Metadata, delta *DeltaUpdate) {
	if md == nil {
		return
	}

	if delta.Confidence > md.ConfidenceScore {
		md.ConfidenceScore = delta.Confidence
	}
	for _, tag := range delta.Tags {
		md.AddTag(tag)
	}
	for _, sourceID := range delta.SourceItemIDs {
		if !containsString(md.Dependencies, sourceID) {
			md.Dependencies = append(md.Dependencies, sourceID)
		}
	}

	entry := map[string]interface{}{
		"update_id":  delta.UpdateID,
		"timestamp":  delta.Timestamp.Format(time.RFC3339),
		"created_by": delta.CreatedBy,
	}
	history, _ := md.CustomFields["merge_history"].([]map[string]interface{})
	md.CustomFields["merge_history"] = append(history, entry)

	md.IncrementVersion()
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// DuplicateMatch pairs an existing item id with its similarity to a
// candidate content.
type DuplicateMatch struct {
	ItemID     string  `json:"item_id"`
	Similarity float64 `json:"similarity"`
}

// DetectDuplicates scores content against every active item in the
// manual and returns the items whose similarity meets the threshold,
// in the manual's insertion order. A non-positive threshold falls back
// to the merger's configured threshold. Scoring runs in parallel;
// results stay ordered because each item writes into its own slot.
func (m *DeterministicMerger) DetectDuplicates(ctx context.Context, manual *EvolvingManual, content string, threshold float64) ([]DuplicateMatch, error) {
	if threshold <= 0 {
		threshold = m.duplicateThreshold
	}

	items := manual.GetActiveItems()
	scores := make([]float64, len(items))

	p := pool.New().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())
	for idx, item := range items {
		idx, item := idx, item
		p.Go(func(ctx context.Context) error {
			if err := errors.CheckContext(ctx, "detect duplicates"); err != nil {
				return err
			}
			scores[idx] = ContentSimilarity(content, item.Content)
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}

	var matches []DuplicateMatch
	for idx, item := range items {
		if scores[idx] >= threshold {
			matches = append(matches, DuplicateMatch{ItemID: item.ItemID, Similarity: scores[idx]})
		}
	}
	return matches, nil
}

// ContentSimilarity returns a ratio in [0, 1] between two contents,
// ignoring case. The ratio is 2*M/T where M is the total length of the
// longest matching blocks and T the combined length, so identical
// contents score 1.0 and disjoint contents 0.0.
func ContentSimilarity(a, b string) float64 {
	// A fresh Caser per call: Casers are stateful and not safe to
	// share across the scoring goroutines.
	folder := cases.Fold()
	ra := []rune(folder.String(a))
	rb := []rune(folder.String(b))

	total := len(ra) + len(rb)
	if total == 0 {
		return 1.0
	}
	return 2.0 * float64(matchingTotal(ra, rb)) / float64(total)
}

// matchingTotal sums the lengths of the matching blocks found by
// recursively splitting around the longest common run.
func matchingTotal(a, b []rune) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingTotal(a[:ai], b[:bi]) +
		matchingTotal(a[ai+size:], b[bi+size:])
}

// longestMatch finds the longest run of runes common to a and b,
// preferring the earliest occurrence in a, then in b.
func longestMatch(a, b []rune) (bestA, bestB, bestSize int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}

	positions := make(map[rune][]int, len(b))
	for j, r := range b {
		positions[r] = append(positions[r], j)
	}

	runLengths := map[int]int{}
	for i, r := range a {
		next := make(map[int]int, len(positions[r]))
		for _, j := range positions[r] {
			k := runLengths[j-1] + 1
			next[j] = k
			if k > bestSize {
				bestA, bestB, bestSize = i-k+1, j-k+1, k
			}
		}
		runLengths = next
	}
	return bestA, bestB, bestSize
}
