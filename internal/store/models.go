// Package store provides SQLite-backed persistence for a single user's
// long-term memory: key/value attributes, typed entities, timestamped
// events, and entity relations.
package store

import (
	"time"

	"github.com/attislabs/mimir/pkg/search"
)

// Category classifies an attribute.
type Category string

const (
	CategoryBasicInfo   Category = "basic_info"
	CategoryPreferences Category = "preferences"
	CategoryHabits      Category = "habits"
)

// ValidCategory reports whether s is a recognized category.
func ValidCategory(s string) bool {
	switch Category(s) {
	case CategoryBasicInfo, CategoryPreferences, CategoryHabits:
		return true
	default:
		return false
	}
}

// EntityType classifies an entity.
type EntityType string

const (
	EntityPet      EntityType = "pet"
	EntityProperty EntityType = "property"
	EntityVehicle  EntityType = "vehicle"
	EntityPerson   EntityType = "person"
)

// ValidEntityType reports whether s is a recognized entity type.
func ValidEntityType(s string) bool {
	switch EntityType(s) {
	case EntityPet, EntityProperty, EntityVehicle, EntityPerson:
		return true
	default:
		return false
	}
}

// EntityStatus is the user-visible lifecycle state of an entity.
// It is independent of the deleted retention flag: DeleteEntity toggles
// status to inactive and never touches retention.
type EntityStatus string

const (
	StatusActive   EntityStatus = "active"
	StatusInactive EntityStatus = "inactive"
)

// EventType classifies an event.
type EventType string

const (
	EventPurchase    EventType = "purchase"
	EventIllness     EventType = "illness"
	EventMaintenance EventType = "maintenance"
	EventActivity    EventType = "activity"
	EventMilestone   EventType = "milestone"
	EventOther       EventType = "other"
)

// ValidEventType reports whether s is a recognized event type.
func ValidEventType(s string) bool {
	switch EventType(s) {
	case EventPurchase, EventIllness, EventMaintenance,
		EventActivity, EventMilestone, EventOther:
		return true
	default:
		return false
	}
}

// Attribute is a single key/value fact about the user.
type Attribute struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Category   string  `json:"category,omitempty"`
	Confidence float64 `json:"confidence"`
	UpdatedAt  int64   `json:"updated_at"`
}

// AttributeUpdate reports the outcome of an attribute upsert, including
// the value it overwrote when one existed.
type AttributeUpdate struct {
	Updated          bool    `json:"updated"`
	HadPreviousValue bool    `json:"had_previous_value"`
	PreviousValue    *string `json:"previous_value"`
}

// Entity is a long-lived referenceable object (pet, property, vehicle,
// person). Attributes is nil when absent or when the stored JSON is
// malformed.
type Entity struct {
	ID         int64          `json:"id"`
	EntityType EntityType     `json:"entity_type"`
	Name       string         `json:"name,omitempty"`
	Attributes map[string]any `json:"attributes"`
	Status     EntityStatus   `json:"status"`
	CreatedAt  int64          `json:"created_at"`
	UpdatedAt  int64          `json:"updated_at"`
}

// EntityPatch is a partial update. Nil fields are left untouched; a
// non-nil Attributes map replaces the stored object wholesale.
type EntityPatch struct {
	Name       *string
	Attributes map[string]any
	Status     *EntityStatus
}

// Empty reports whether the patch modifies nothing.
func (p EntityPatch) Empty() bool {
	return p.Name == nil && p.Attributes == nil && p.Status == nil
}

// Event is a timestamped occurrence, optionally linked to entities.
// Metadata is nil when absent or malformed in storage.
type Event struct {
	ID               int64          `json:"id"`
	EventType        EventType      `json:"event_type"`
	Description      string         `json:"description"`
	Timestamp        int64          `json:"timestamp"`
	RelatedEntityIDs []int64        `json:"related_entity_ids"`
	Metadata         map[string]any `json:"metadata"`
	Importance       float64        `json:"importance"`
	CreatedAt        int64          `json:"created_at"`
}

// EventParams are the inputs to AddEvent. A zero Timestamp means now;
// a nil Importance means DefaultImportance.
type EventParams struct {
	Type             EventType
	Description      string
	RelatedEntityIDs []int64
	Metadata         map[string]any
	Timestamp        time.Time
	Importance       *float64
}

// EventSearchParams are the inputs to SearchEvents. A non-empty Keywords
// list selects the relevance-scored path; otherwise Query is matched as a
// plain substring against descriptions.
type EventSearchParams struct {
	Query     string
	Keywords  []string
	Type      EventType
	TimeRange string
	Limit     int
}

// Relation links two entities.
type Relation struct {
	ID           int64  `json:"id"`
	SourceID     int64  `json:"source_id"`
	TargetID     int64  `json:"target_id"`
	RelationType string `json:"relation_type"`
	CreatedAt    int64  `json:"created_at"`
}

// DeleteResult reports a soft delete. Deleted is false when no live row
// matched; the operation is an idempotent no-op, not a failure.
type DeleteResult struct {
	Deleted bool  `json:"deleted"`
	Changes int64 `json:"changes"`
}

// UpdateResult reports a patch operation.
type UpdateResult struct {
	Updated bool  `json:"updated"`
	Changes int64 `json:"changes"`
}

// AttributeMatch is a scored attribute search result.
type AttributeMatch struct {
	Attribute
	RelevanceScore  float64  `json:"relevance_score"`
	MatchedKeywords []string `json:"matched_keywords"`
}

// MatchedFields breaks down which entity fields a search hit.
type MatchedFields struct {
	Name       bool `json:"name"`
	Attributes bool `json:"attributes"`
}

// EntityMatch is a scored entity search result.
type EntityMatch struct {
	Entity
	RelevanceScore  float64       `json:"relevance_score"`
	MatchedKeywords []string      `json:"matched_keywords"`
	MatchedFields   MatchedFields `json:"matched_fields"`
}

// EventMatch is an event search result. The relevance fields are only
// populated by the keyword-scored path.
type EventMatch struct {
	Event
	RelevanceScore  float64  `json:"relevance_score,omitempty"`
	MatchedKeywords []string `json:"matched_keywords,omitempty"`
}

// Stats counts live rows per table.
type Stats struct {
	Attributes int64 `json:"attributes"`
	Entities   int64 `json:"entities"`
	Events     int64 `json:"events"`
	Relations  int64 `json:"relations"`
}

// Storer defines the memory persistence interface.
// SQLiteStore is the sole implementation.
type Storer interface {
	// Attributes
	UpdateAttribute(key, value, category string) (AttributeUpdate, error)
	QueryAttributes(keys []string, category string) ([]Attribute, error)
	DeleteAttribute(key string) (DeleteResult, error)
	SearchAttributes(keywords []string, category string, mode search.MatchMode, limit int) ([]AttributeMatch, error)

	// Entities
	CreateEntity(entityType EntityType, name string, attributes map[string]any) (int64, error)
	UpdateEntity(id int64, patch EntityPatch) (UpdateResult, error)
	ListEntities(entityType EntityType, status string) ([]Entity, error)
	DeleteEntity(id int64) (DeleteResult, error)
	SearchEntities(keywords []string, entityType EntityType, fields []string, mode search.MatchMode, limit int) ([]EntityMatch, error)

	// Events
	AddEvent(p EventParams) (int64, error)
	SearchEvents(p EventSearchParams) ([]EventMatch, error)
	EntityTimeline(entityID int64, limit int) ([]Event, error)
	DeleteEvent(id int64) (DeleteResult, error)

	// Relations
	RelateEntities(sourceID, targetID int64, relationType string) (int64, error)
	ListRelations(entityID int64) ([]Relation, error)
	DeleteRelation(id int64) (DeleteResult, error)

	// Snapshot + lifecycle
	Count() (Stats, error)
	Export() ([]byte, error)
	Import(data []byte) error
	Close() error
}
