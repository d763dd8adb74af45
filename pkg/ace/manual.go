package ace

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/XiaoConstantine/ace-go/pkg/errors"
)

// ManualItem is a single unit of stored guidance. The item holds a
// reference to its metadata record for convenience; the MetadataIndex
// owns the record's lifecycle.
type ManualItem struct {
	ItemID   string    `json:"item_id"`
	Content  string    `json:"content"`
	ItemType ItemType  `json:"item_type"`
	Metadata *Metadata `json:"metadata,omitempty"`
}

// NewManualItem creates an item with a generated identifier.
func NewManualItem(content string, itemType ItemType) *ManualItem {
	return &ManualItem{
		ItemID:   uuid.New().String(),
		Content:  content,
		ItemType: itemType,
	}
}

// EstimateTokens returns a rough token count (4 chars per token).
// This is a coarse proxy, not a tokenizer.
func (i *ManualItem) EstimateTokens() int {
	return len(i.Content) / 4
}

// Prioritization keys accepted by ToContextString.
const (
	PrioritizeByUsage      = "usage"
	PrioritizeByConfidence = "confidence"
)

// EvolvingManual is the authoritative item store: a structured,
// versioned knowledge base that grows incrementally. It owns the item
// map plus two derived indexes (type and tag); merge policy lives in
// DeterministicMerger, not here.
//
// A manual instance is not safe for concurrent use. Embedding systems
// that need concurrency must serialize access with a single lock per
// manual + metadata index pair.
type EvolvingManual struct {
	ManualID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int

	items map[string]*ManualItem
	order []string

	typeIndex map[ItemType]map[string]struct{}
	tagIndex  map[string]map[string]struct{}
}

// NewEvolvingManual creates an empty manual. An empty manualID gets a
// generated identifier.
func NewEvolvingManual(manualID string) *EvolvingManual {
	if manualID == "" {
		manualID = uuid.New().String()
	}
	now := time.Now()
	m := &EvolvingManual{
		ManualID:  manualID,
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
		items:     make(map[string]*ManualItem),
		typeIndex: make(map[ItemType]map[string]struct{}, len(ItemTypes)),
		tagIndex:  make(map[string]map[string]struct{}),
	}
	for _, t := range ItemTypes {
		m.typeIndex[t] = make(map[string]struct{})
	}
	return m
}

// touch records a structural mutation.
func (m *EvolvingManual) touch() {
	m.UpdatedAt = time.Now()
	m.Version++
}

func (m *EvolvingManual) indexItem(item *ManualItem, md *Metadata) {
	set, ok := m.typeIndex[md.ItemType]
	if !ok {
		set = make(map[string]struct{})
		m.typeIndex[md.ItemType] = set
	}
	set[item.ItemID] = struct{}{}
	for _, tag := range md.Tags {
		if _, ok := m.tagIndex[tag]; !ok {
			m.tagIndex[tag] = make(map[string]struct{})
		}
		m.tagIndex[tag][item.ItemID] = struct{}{}
	}
}

// AddItem adds an item to the manual. When metadata is supplied it is
// attached to the item and the type/tag indexes are updated in the same
// call. Returns the item identifier.
func (m *EvolvingManual) AddItem(item *ManualItem, md *Metadata) string {
	if md != nil {
		item.Metadata = md
		m.indexItem(item, md)
	}

	if _, exists := m.items[item.ItemID]; !exists {
		m.order = append(m.order, item.ItemID)
	}
	m.items[item.ItemID] = item
	m.touch()

	return item.ItemID
}

// GetItem returns the item with the given identifier.
func (m *EvolvingManual) GetItem(itemID string) (*ManualItem, bool) {
	item, ok := m.items[itemID]
	return item, ok
}

// Len returns the number of items in the manual, deprecated included.
func (m *EvolvingManual) Len() int {
	return len(m.items)
}

// UpdateItem replaces an item's content in place. The metadata record,
// when present, gets a version bump and a fresh timestamp. Returns
// false if the identifier is unknown.
func (m *EvolvingManual) UpdateItem(itemID, newContent, updatedBy string) bool {
	item, ok := m.items[itemID]
	if !ok {
		return false
	}

	item.Content = newContent
	if item.Metadata != nil {
		item.Metadata.IncrementVersion()
		if updatedBy != "" {
			item.Metadata.CustomFields["updated_by"] = updatedBy
		}
	}

	m.touch()
	return true
}

// replaceContent swaps an item's content without touching its metadata
// version. Used by the updater after the merger has already applied the
// metadata side effects, so a merge counts as exactly one version bump.
func (m *EvolvingManual) replaceContent(itemID, newContent string) bool {
	item, ok := m.items[itemID]
	if !ok {
		return false
	}
	item.Content = newContent
	m.touch()
	return true
}

// RemoveItem removes or deprecates an item. Deprecation flips the status
// and deliberately leaves the type/tag indexes untouched so deprecated
// items stay discoverable; callers filter by status when they want only
// active items. Hard removal purges the item from the map and both
// indexes. An item without metadata has no status to flip, so a
// deprecate request falls back to hard removal. Returns false if the
// identifier is unknown.
func (m *EvolvingManual) RemoveItem(itemID string, deprecate bool) bool {
	item, ok := m.items[itemID]
	if !ok {
		return false
	}

	if deprecate && item.Metadata != nil {
		item.Metadata.Status = StatusDeprecated
	} else {
		if item.Metadata != nil {
			delete(m.typeIndex[item.Metadata.ItemType], itemID)
			for _, tag := range item.Metadata.Tags {
				delete(m.tagIndex[tag], itemID)
			}
		}
		delete(m.items, itemID)
		for i, id := range m.order {
			if id == itemID {
				m.order = append(m.order[:i], m.order[i+1:]...)
				break
			}
		}
	}

	m.touch()
	return true
}

// itemsFromIDSet returns items in insertion order, skipping identifiers
// no longer present in the item map (defensive against stale entries).
func (m *EvolvingManual) itemsFromIDSet(ids map[string]struct{}) []*ManualItem {
	var out []*ManualItem
	for _, id := range m.order {
		if _, ok := ids[id]; !ok {
			continue
		}
		if item, ok := m.items[id]; ok {
			out = append(out, item)
		}
	}
	return out
}

// GetItemsByType returns all items of a specific type.
func (m *EvolvingManual) GetItemsByType(itemType ItemType) []*ManualItem {
	return m.itemsFromIDSet(m.typeIndex[itemType])
}

// GetItemsByTag returns all items with a specific tag.
func (m *EvolvingManual) GetItemsByTag(tag string) []*ManualItem {
	return m.itemsFromIDSet(m.tagIndex[tag])
}

// GetActiveItems returns every item whose status is active. Items
// without metadata are treated as implicitly active.
func (m *EvolvingManual) GetActiveItems() []*ManualItem {
	var out []*ManualItem
	for _, id := range m.order {
		item := m.items[id]
		if item.Metadata == nil || item.Metadata.Status == StatusActive {
			out = append(out, item)
		}
	}
	return out
}

// ToContextString renders the active items as a single prompt block.
// Items are ordered descending by usage count or confidence score
// (prioritizeBy: "usage" or "confidence"); ties keep insertion order, so
// output is deterministic for a fixed manual. maxItems <= 0 means no
// truncation.
func (m *EvolvingManual) ToContextString(maxItems int, prioritizeBy string) string {
	items := m.GetActiveItems()

	switch prioritizeBy {
	case PrioritizeByConfidence:
		sort.SliceStable(items, func(i, j int) bool {
			return confidenceOf(items[i]) > confidenceOf(items[j])
		})
	default:
		sort.SliceStable(items, func(i, j int) bool {
			return usageOf(items[i]) > usageOf(items[j])
		})
	}

	if maxItems > 0 && len(items) > maxItems {
		items = items[:maxItems]
	}

	sections := make([]string, 0, len(items))
	for _, item := range items {
		label := "item"
		if item.Metadata != nil {
			label = string(item.Metadata.ItemType)
		}
		sections = append(sections, fmt.Sprintf("[%s] %s\n%s", strings.ToUpper(label), item.ItemID, item.Content))
	}

	return strings.Join(sections, "\n\n")
}

func usageOf(item *ManualItem) int {
	if item.Metadata == nil {
		return 0
	}
	return item.Metadata.UsageCount
}

func confidenceOf(item *ManualItem) float64 {
	if item.Metadata == nil {
		return 0
	}
	return item.Metadata.ConfidenceScore
}

// EstimateTotalTokens sums the per-item token estimate over every item.
// Approximate by construction: content length divided by 4.
func (m *EvolvingManual) EstimateTotalTokens() int {
	total := 0
	for _, item := range m.items {
		total += item.EstimateTokens()
	}
	return total
}

// ManualStatistics summarizes a manual's current shape.
type ManualStatistics struct {
	ManualID        string    `json:"manual_id"`
	TotalItems      int       `json:"total_items"`
	ActiveItems     int       `json:"active_items"`
	Version         int       `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	EstimatedTokens int       `json:"estimated_tokens"`
}

// Statistics returns summary counts for the manual.
func (m *EvolvingManual) Statistics() ManualStatistics {
	return ManualStatistics{
		ManualID:        m.ManualID,
		TotalItems:      len(m.items),
		ActiveItems:     len(m.GetActiveItems()),
		Version:         m.Version,
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		EstimatedTokens: m.EstimateTotalTokens(),
	}
}

// ManualSnapshot is the serialized form of a manual. Indexes are never
// persisted; they are rebuilt from items on restore.
type ManualSnapshot struct {
	ManualID  string                 `json:"manual_id"`
	Version   int                    `json:"version"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
	Items     map[string]*ManualItem `json:"items"`
}

// Snapshot exports the full manual state.
func (m *EvolvingManual) Snapshot() *ManualSnapshot {
	items := make(map[string]*ManualItem, len(m.items))
	for id, item := range m.items {
		copied := *item
		if item.Metadata != nil {
			copied.Metadata = item.Metadata.Clone()
		}
		items[id] = &copied
	}
	return &ManualSnapshot{
		ManualID:  m.ManualID,
		Version:   m.Version,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
		Items:     items,
	}
}

// RestoreManual rebuilds a manual from a snapshot. Both derived indexes
// are reconstructed from the items themselves, never trusted from the
// snapshot; item metadata is registered into the supplied index. Items
// load in lexicographic id order so iteration order is reproducible.
// Invalid enum values make the whole restore fail: a corrupt snapshot
// cannot be partially trusted.
func RestoreManual(snap *ManualSnapshot, index *MetadataIndex) (*EvolvingManual, error) {
	if snap == nil {
		return nil, errors.New(errors.InvalidInput, "nil manual snapshot")
	}

	m := NewEvolvingManual(snap.ManualID)
	m.Version = snap.Version
	m.CreatedAt = snap.CreatedAt
	m.UpdatedAt = snap.UpdatedAt

	ids := make([]string, 0, len(snap.Items))
	for id := range snap.Items {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		item := snap.Items[id]
		if !item.ItemType.Valid() {
			return nil, errors.WithFields(
				errors.New(errors.SerializationFailed, "invalid item type in snapshot"),
				errors.Fields{"item_id": id, "item_type": string(item.ItemType)})
		}
		copied := *item
		if item.Metadata != nil {
			if !item.Metadata.Status.Valid() {
				return nil, errors.WithFields(
					errors.New(errors.SerializationFailed, "invalid item status in snapshot"),
					errors.Fields{"item_id": id, "status": string(item.Metadata.Status)})
			}
			copied.Metadata = item.Metadata.Clone()
			if index != nil {
				index.Add(copied.Metadata)
			}
			m.indexItem(&copied, copied.Metadata)
		}
		m.items[id] = &copied
		m.order = append(m.order, id)
	}

	return m, nil
}
