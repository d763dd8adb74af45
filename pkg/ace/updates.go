package ace

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ace-go/pkg/logging"
)

// Action is the kind of change a delta update describes.
type Action string

const (
	ActionAdd       Action = "add"
	ActionUpdate    Action = "update"
	ActionDeprecate Action = "deprecate"
	ActionRemove    Action = "remove"
)

// Valid reports whether a is a recognized action.
func (a Action) Valid() bool {
	switch a {
	case ActionAdd, ActionUpdate, ActionDeprecate, ActionRemove:
		return true
	}
	return false
}

// MergeStrategy selects how an update action combines content.
type MergeStrategy string

const (
	// StrategyDeterministic delegates to the DeterministicMerger's
	// per-type append-only templates.
	StrategyDeterministic MergeStrategy = "deterministic"
	// StrategyReplace makes the delta content the new item body under a
	// dated marker. The marker keeps the action visible in the content:
	// a replace is never a silent overwrite.
	StrategyReplace MergeStrategy = "replace"
)

// DeltaUpdate is an immutable instruction describing one change to the
// manual. Deltas never mutate the manual directly; they are value
// objects consumed by the IncrementalUpdater. Treat a constructed delta
// as read-only.
type DeltaUpdate struct {
	UpdateID      string    `json:"update_id"`
	Action        Action    `json:"action"`
	ItemType      ItemType  `json:"item_type"`
	Content       string    `json:"content"`
	TargetItemID  string    `json:"target_item_id,omitempty"`
	SourceItemIDs []string  `json:"source_item_ids"`
	CreatedBy     string    `json:"created_by"`
	Confidence    float64   `json:"confidence"`
	Tags          []string  `json:"tags"`
	Timestamp     time.Time `json:"timestamp"`
}

// DeltaOption customizes a delta at construction time.
type DeltaOption func(*DeltaUpdate)

// WithTarget sets the item a non-add delta is aimed at.
func WithTarget(itemID string) DeltaOption {
	return func(d *DeltaUpdate) { d.TargetItemID = itemID }
}

// WithSources records the items this delta was derived from.
func WithSources(itemIDs ...string) DeltaOption {
	return func(d *DeltaUpdate) { d.SourceItemIDs = append([]string(nil), itemIDs...) }
}

// WithCreator names the producing agent.
func WithCreator(createdBy string) DeltaOption {
	return func(d *DeltaUpdate) { d.CreatedBy = createdBy }
}

// WithConfidence sets the delta's confidence score.
func WithConfidence(confidence float64) DeltaOption {
	return func(d *DeltaUpdate) { d.Confidence = confidence }
}

// WithDeltaTags sets the delta's tag list.
func WithDeltaTags(tags ...string) DeltaOption {
	return func(d *DeltaUpdate) { d.Tags = append([]string(nil), tags...) }
}

// NewDeltaUpdate constructs a delta with a generated update id and the
// current timestamp.
func NewDeltaUpdate(action Action, itemType ItemType, content string, opts ...DeltaOption) *DeltaUpdate {
	d := &DeltaUpdate{
		UpdateID:      uuid.New().String(),
		Action:        action,
		ItemType:      itemType,
		Content:       content,
		SourceItemIDs: []string{},
		CreatedBy:     "system",
		Confidence:    1.0,
		Tags:          []string{},
		Timestamp:     time.Now(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ApplyResult is the structured outcome of one delta application.
// Failures are reported here, never raised.
type ApplyResult struct {
	Success       bool          `json:"success"`
	Error         string        `json:"error,omitempty"`
	Action        Action        `json:"action,omitempty"`
	ItemID        string        `json:"item_id,omitempty"`
	Status        string        `json:"status,omitempty"`
	MergeStrategy MergeStrategy `json:"merge_strategy,omitempty"`
	Delta         *DeltaUpdate  `json:"delta,omitempty"`
}

// BatchResult summarizes a batch application.
type BatchResult struct {
	Total      int           `json:"total"`
	Successful int           `json:"successful"`
	Failed     int           `json:"failed"`
	Results    []ApplyResult `json:"results"`
}

// IncrementalUpdater validates and applies delta updates atomically with
// respect to the manual + metadata index pair, recording every
// dispatched delta in an append-only history.
//
// History boundary: a delta is appended to history once it reaches a
// recognized dispatch, whether or not the inner action succeeds.
// Routing failures (unknown action, missing or unknown target before
// dispatch) are rejected first and never enter history. This matches
// the behavior the engine inherited; tests pin it as a documented
// contract.
type IncrementalUpdater struct {
	manual   *EvolvingManual
	metadata *MetadataIndex
	merger   *DeterministicMerger
	history  []*DeltaUpdate
}

// NewIncrementalUpdater creates an updater over the given manual and
// metadata index. Nil arguments get fresh instances.
func NewIncrementalUpdater(manual *EvolvingManual, metadata *MetadataIndex) *IncrementalUpdater {
	if manual == nil {
		manual = NewEvolvingManual("")
	}
	if metadata == nil {
		metadata = NewMetadataIndex()
	}
	return &IncrementalUpdater{
		manual:   manual,
		metadata: metadata,
		merger:   NewDeterministicMerger(),
	}
}

// Manual returns the manual this updater mutates.
func (u *IncrementalUpdater) Manual() *EvolvingManual {
	return u.manual
}

// MetadataIndex returns the metadata index this updater mutates.
func (u *IncrementalUpdater) MetadataIndex() *MetadataIndex {
	return u.metadata
}

func failure(delta *DeltaUpdate, format string, args ...interface{}) ApplyResult {
	res := ApplyResult{
		Success: false,
		Error:   fmt.Sprintf(format, args...),
		Delta:   delta,
	}
	if delta != nil {
		res.Action = delta.Action
	}
	return res
}

// ApplyUpdate applies one delta to the manual. Validation failures and
// action failures are both reported as results, never panics; a fault
// inside an action handler is caught at this boundary and converted to
// a failure result so one bad delta cannot abort a batch.
func (u *IncrementalUpdater) ApplyUpdate(delta *DeltaUpdate, strategy MergeStrategy) (result ApplyResult) {
	logger := logging.GetLogger()

	if delta == nil {
		return failure(nil, "nil delta update")
	}
	if !delta.Action.Valid() {
		logger.Warn(context.Background(), "rejected delta %s: unknown action %q", delta.UpdateID, delta.Action)
		return failure(delta, "unknown action: %s", delta.Action)
	}
	if delta.Action != ActionAdd {
		if delta.TargetItemID == "" {
			return failure(delta, "%s action requires target_item_id", delta.Action)
		}
		if _, ok := u.manual.GetItem(delta.TargetItemID); !ok {
			return failure(delta, "item %s not found", delta.TargetItemID)
		}
	}

	// The delta reached a recognized dispatch: record the attempt before
	// running the action, whatever its inner outcome.
	u.history = append(u.history, delta)

	defer func() {
		if r := recover(); r != nil {
			logger.Error(context.Background(), "delta %s faulted during dispatch: %v", delta.UpdateID, r)
			result = failure(delta, "internal fault: %v", r)
		}
	}()

	switch delta.Action {
	case ActionAdd:
		result = u.applyAdd(delta)
	case ActionUpdate:
		result = u.applyContentUpdate(delta, strategy)
	case ActionDeprecate:
		result = u.applyRemove(delta, true)
	case ActionRemove:
		result = u.applyRemove(delta, false)
	}
	return result
}

func (u *IncrementalUpdater) applyAdd(delta *DeltaUpdate) ApplyResult {
	item := NewManualItem(delta.Content, delta.ItemType)

	md := NewMetadata(item.ItemID, delta.ItemType, delta.CreatedBy)
	md.CreatedAt = delta.Timestamp
	md.UpdatedAt = delta.Timestamp
	md.ConfidenceScore = delta.Confidence
	md.Tags = append([]string(nil), delta.Tags...)
	md.Dependencies = append([]string(nil), delta.SourceItemIDs...)
	md.ContextLength = item.EstimateTokens()
	md.CustomFields["update_id"] = delta.UpdateID
	md.CustomFields["source_updates"] = append([]string(nil), delta.SourceItemIDs...)

	u.metadata.Add(md)
	u.manual.AddItem(item, md)

	return ApplyResult{
		Success: true,
		Action:  ActionAdd,
		ItemID:  item.ItemID,
		Status:  "added",
		Delta:   delta,
	}
}

func (u *IncrementalUpdater) applyContentUpdate(delta *DeltaUpdate, strategy MergeStrategy) ApplyResult {
	item, ok := u.manual.GetItem(delta.TargetItemID)
	if !ok {
		// Target vanished after validation. Still a dispatch-stage
		// failure, so it stays in history.
		return failure(delta, "item %s not found", delta.TargetItemID)
	}

	var merged string
	switch strategy {
	case StrategyDeterministic:
		var err error
		merged, err = u.merger.Merge(item, delta)
		if err != nil {
			return failure(delta, "merge failed: %v", err)
		}
	case StrategyReplace:
		merged = fmt.Sprintf("[Replaced %s by %s]\n%s",
			delta.Timestamp.Format("2006-01-02"), delta.CreatedBy, delta.Content)
		u.applyReplaceSideEffects(item, delta)
	default:
		return failure(delta, "unknown merge strategy: %s", strategy)
	}

	if !u.manual.replaceContent(delta.TargetItemID, merged) {
		return failure(delta, "item %s not found", delta.TargetItemID)
	}

	return ApplyResult{
		Success:       true,
		Action:        ActionUpdate,
		ItemID:        delta.TargetItemID,
		Status:        "updated",
		MergeStrategy: strategy,
		Delta:         delta,
	}
}

// applyReplaceSideEffects mirrors the merger's metadata contract for
// the replace strategy: max-wins confidence, tag union, provenance,
// one version increment.
func (u *IncrementalUpdater) applyReplaceSideEffects(item *ManualItem, delta *DeltaUpdate) {
	md := item.Metadata
	if md == nil {
		return
	}
	if delta.Confidence > md.ConfidenceScore {
		md.ConfidenceScore = delta.Confidence
	}
	for _, tag := range delta.Tags {
		md.AddTag(tag)
	}
	appendSourceUpdate(md, delta.UpdateID)
	md.IncrementVersion()
}

func appendSourceUpdate(md *Metadata, updateID string) {
	existing, _ := md.CustomFields["source_updates"].([]string)
	md.CustomFields["source_updates"] = append(existing, updateID)
}

func (u *IncrementalUpdater) applyRemove(delta *DeltaUpdate, deprecate bool) ApplyResult {
	status := "removed"
	action := ActionRemove
	if deprecate {
		status = "deprecated"
		action = ActionDeprecate
	}

	if !u.manual.RemoveItem(delta.TargetItemID, deprecate) {
		return failure(delta, "item %s not found", delta.TargetItemID)
	}

	return ApplyResult{
		Success: true,
		Action:  action,
		ItemID:  delta.TargetItemID,
		Status:  status,
		Delta:   delta,
	}
}

// BatchApply applies deltas independently and in order; one failure
// does not block later deltas.
func (u *IncrementalUpdater) BatchApply(deltas []*DeltaUpdate, strategy MergeStrategy) BatchResult {
	batch := BatchResult{
		Total:   len(deltas),
		Results: make([]ApplyResult, 0, len(deltas)),
	}

	for _, delta := range deltas {
		result := u.ApplyUpdate(delta, strategy)
		if result.Success {
			batch.Successful++
		} else {
			batch.Failed++
		}
		batch.Results = append(batch.Results, result)
	}

	logging.GetLogger().Debug(context.Background(), "batch applied %d deltas: %d ok, %d failed",
		batch.Total, batch.Successful, batch.Failed)
	return batch
}

// UpdateHistory returns the most recent limit entries of the history,
// oldest first. limit <= 0 returns the full history.
func (u *IncrementalUpdater) UpdateHistory(limit int) []*DeltaUpdate {
	history := u.history
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]*DeltaUpdate(nil), history...)
}

// HistoryLen returns the number of recorded deltas.
func (u *IncrementalUpdater) HistoryLen() int {
	return len(u.history)
}

// restoreHistory reloads history entries from a persisted state.
func (u *IncrementalUpdater) restoreHistory(deltas []*DeltaUpdate) {
	u.history = append([]*DeltaUpdate(nil), deltas...)
}
