package ace

import (
	"sort"
	"time"
)

// ItemType classifies the kind of knowledge a manual item carries.
type ItemType string

const (
	ItemTypeInstruction ItemType = "instruction"
	ItemTypeExample     ItemType = "example"
	ItemTypePattern     ItemType = "pattern"
	ItemTypeConstraint  ItemType = "constraint"
	ItemTypeInsight     ItemType = "insight"
	ItemTypeRefinement  ItemType = "refinement"
)

// ItemTypes lists every valid item type in declaration order.
var ItemTypes = []ItemType{
	ItemTypeInstruction,
	ItemTypeExample,
	ItemTypePattern,
	ItemTypeConstraint,
	ItemTypeInsight,
	ItemTypeRefinement,
}

// Valid reports whether t is a recognized item type.
func (t ItemType) Valid() bool {
	for _, known := range ItemTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ItemStatus tracks the lifecycle state of a manual item.
type ItemStatus string

const (
	StatusActive        ItemStatus = "active"
	StatusDeprecated    ItemStatus = "deprecated"
	StatusPendingReview ItemStatus = "pending_review"
	StatusArchived      ItemStatus = "archived"
)

// ItemStatuses lists every valid status in declaration order.
var ItemStatuses = []ItemStatus{
	StatusActive,
	StatusDeprecated,
	StatusPendingReview,
	StatusArchived,
}

// Valid reports whether s is a recognized status.
func (s ItemStatus) Valid() bool {
	for _, known := range ItemStatuses {
		if s == known {
			return true
		}
	}
	return false
}

// Metadata tracks provenance, versioning, and usage for one manual item.
// The version counter is monotonic: every mutation goes through
// IncrementVersion, and merges never lower the stored confidence.
type Metadata struct {
	ItemID          string         `json:"item_id"`
	ItemType        ItemType       `json:"item_type"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	CreatedBy       string         `json:"created_by"`
	Version         int            `json:"version"`
	Status          ItemStatus     `json:"status"`
	UsageCount      int            `json:"usage_count"`
	LastUsed        *time.Time     `json:"last_used,omitempty"`
	Tags            []string       `json:"tags"`
	Dependencies    []string       `json:"dependencies"`
	ConfidenceScore float64        `json:"confidence_score"`
	ContextLength   int            `json:"context_length"`
	ReflectionCount int            `json:"reflection_count"`
	LastReflected   *time.Time     `json:"last_reflected,omitempty"`
	CustomFields    map[string]any `json:"custom_fields"`
}

// NewMetadata creates an active version-1 record for the given item.
func NewMetadata(itemID string, itemType ItemType, createdBy string) *Metadata {
	now := time.Now()
	return &Metadata{
		ItemID:          itemID,
		ItemType:        itemType,
		CreatedAt:       now,
		UpdatedAt:       now,
		CreatedBy:       createdBy,
		Version:         1,
		Status:          StatusActive,
		Tags:            []string{},
		Dependencies:    []string{},
		ConfidenceScore: 1.0,
		CustomFields:    map[string]any{},
	}
}

// RecordUsage bumps the usage counter and last-used timestamp.
func (m *Metadata) RecordUsage() {
	m.UsageCount++
	now := time.Now()
	m.LastUsed = &now
}

// IncrementVersion bumps the version counter and refreshes updated_at.
func (m *Metadata) IncrementVersion() {
	m.Version++
	m.UpdatedAt = time.Now()
}

// AddTag appends a tag unless already present. Insertion order is kept
// for display.
func (m *Metadata) AddTag(tag string) {
	if !m.HasTag(tag) {
		m.Tags = append(m.Tags, tag)
	}
}

// HasTag reports whether the record carries the given tag.
func (m *Metadata) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// RecordReflection notes that this item was analyzed by the reflector.
func (m *Metadata) RecordReflection() {
	m.ReflectionCount++
	now := time.Now()
	m.LastReflected = &now
}

// Clone returns a deep copy of the record.
func (m *Metadata) Clone() *Metadata {
	out := *m
	out.Tags = append([]string(nil), m.Tags...)
	out.Dependencies = append([]string(nil), m.Dependencies...)
	out.CustomFields = make(map[string]any, len(m.CustomFields))
	for k, v := range m.CustomFields {
		out.CustomFields[k] = v
	}
	if m.LastUsed != nil {
		t := *m.LastUsed
		out.LastUsed = &t
	}
	if m.LastReflected != nil {
		t := *m.LastReflected
		out.LastReflected = &t
	}
	return &out
}

// MetadataIndex owns the set of metadata records independently of the
// manual's item map and provides the query operations used for curation
// and ranking.
//
// An insertion-order slice backs every scan so that stable sorts and
// tie-breaks are deterministic; Go map iteration alone would not be.
type MetadataIndex struct {
	records map[string]*Metadata
	order   []string
}

// NewMetadataIndex creates an empty index.
func NewMetadataIndex() *MetadataIndex {
	return &MetadataIndex{records: make(map[string]*Metadata)}
}

// Add inserts or overwrites a record by item identifier. Last write wins;
// an overwrite keeps the record's original position in iteration order.
func (ix *MetadataIndex) Add(m *Metadata) {
	if _, exists := ix.records[m.ItemID]; !exists {
		ix.order = append(ix.order, m.ItemID)
	}
	ix.records[m.ItemID] = m
}

// Get returns the record for the given item identifier.
func (ix *MetadataIndex) Get(itemID string) (*Metadata, bool) {
	m, ok := ix.records[itemID]
	return m, ok
}

// Len returns the number of records in the index.
func (ix *MetadataIndex) Len() int {
	return len(ix.records)
}

// Update applies field overwrites to an existing record, then increments
// its version and refreshes updated_at. Unknown identifiers and unknown
// field names are silently ignored: callers must treat a missing id as
// "nothing happened".
func (ix *MetadataIndex) Update(itemID string, changes map[string]any) {
	m, ok := ix.records[itemID]
	if !ok {
		return
	}

	for field, value := range changes {
		switch field {
		case "status":
			switch v := value.(type) {
			case ItemStatus:
				m.Status = v
			case string:
				m.Status = ItemStatus(v)
			}
		case "item_type":
			switch v := value.(type) {
			case ItemType:
				m.ItemType = v
			case string:
				m.ItemType = ItemType(v)
			}
		case "created_by":
			if v, ok := value.(string); ok {
				m.CreatedBy = v
			}
		case "confidence_score":
			switch v := value.(type) {
			case float64:
				m.ConfidenceScore = v
			case int:
				m.ConfidenceScore = float64(v)
			}
		case "usage_count":
			if v, ok := value.(int); ok {
				m.UsageCount = v
			}
		case "context_length":
			if v, ok := value.(int); ok {
				m.ContextLength = v
			}
		case "tags":
			if v, ok := value.([]string); ok {
				m.Tags = append([]string(nil), v...)
			}
		case "dependencies":
			if v, ok := value.([]string); ok {
				m.Dependencies = append([]string(nil), v...)
			}
		case "custom_fields":
			if v, ok := value.(map[string]any); ok {
				m.CustomFields = v
			}
		}
	}

	m.IncrementVersion()
}

// all returns the records in insertion order.
func (ix *MetadataIndex) all() []*Metadata {
	out := make([]*Metadata, 0, len(ix.order))
	for _, id := range ix.order {
		out = append(out, ix.records[id])
	}
	return out
}

// SearchByType returns all records of the given item type.
func (ix *MetadataIndex) SearchByType(itemType ItemType) []*Metadata {
	var out []*Metadata
	for _, m := range ix.all() {
		if m.ItemType == itemType {
			out = append(out, m)
		}
	}
	return out
}

// SearchByTag returns all records carrying the given tag.
func (ix *MetadataIndex) SearchByTag(tag string) []*Metadata {
	var out []*Metadata
	for _, m := range ix.all() {
		if m.HasTag(tag) {
			out = append(out, m)
		}
	}
	return out
}

// SearchByStatus returns all records with the given status.
func (ix *MetadataIndex) SearchByStatus(status ItemStatus) []*Metadata {
	var out []*Metadata
	for _, m := range ix.all() {
		if m.Status == status {
			out = append(out, m)
		}
	}
	return out
}

// MostUsed returns up to limit records sorted descending by usage count.
// Ties keep insertion order.
func (ix *MetadataIndex) MostUsed(limit int) []*Metadata {
	out := ix.all()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UsageCount > out[j].UsageCount
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// RecentlyUpdated returns up to limit records sorted descending by
// updated_at. Ties keep insertion order.
func (ix *MetadataIndex) RecentlyUpdated(limit int) []*Metadata {
	out := ix.all()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// IndexStatistics aggregates counts over the whole index.
type IndexStatistics struct {
	TotalItems        int                `json:"total_items"`
	ByType            map[ItemType]int   `json:"by_type"`
	ByStatus          map[ItemStatus]int `json:"by_status"`
	TotalUsage        int                `json:"total_usage"`
	AverageConfidence float64            `json:"average_confidence"`
}

// Statistics computes aggregate counts across all records. The average
// confidence of an empty index is 0.
func (ix *MetadataIndex) Statistics() IndexStatistics {
	stats := IndexStatistics{
		TotalItems: len(ix.records),
		ByType:     make(map[ItemType]int, len(ItemTypes)),
		ByStatus:   make(map[ItemStatus]int, len(ItemStatuses)),
	}
	for _, t := range ItemTypes {
		stats.ByType[t] = 0
	}
	for _, s := range ItemStatuses {
		stats.ByStatus[s] = 0
	}

	var confidenceSum float64
	for _, m := range ix.records {
		stats.ByType[m.ItemType]++
		stats.ByStatus[m.Status]++
		stats.TotalUsage += m.UsageCount
		confidenceSum += m.ConfidenceScore
	}
	if len(ix.records) > 0 {
		stats.AverageConfidence = confidenceSum / float64(len(ix.records))
	}
	return stats
}

// Export returns a deep copy of every record keyed by item identifier,
// suitable for serialization.
func (ix *MetadataIndex) Export() map[string]*Metadata {
	out := make(map[string]*Metadata, len(ix.records))
	for id, m := range ix.records {
		out[id] = m.Clone()
	}
	return out
}

// Import replaces matching records from the given mapping. Records are
// inserted in lexicographic id order so that iteration order is
// reproducible after a round-trip.
func (ix *MetadataIndex) Import(data map[string]*Metadata) {
	ids := make([]string, 0, len(data))
	for id := range data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		ix.Add(data[id].Clone())
	}
}
