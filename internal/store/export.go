package store

import (
	"encoding/json"
	"fmt"
)

// Export rows carry every column verbatim, including the retention flag
// and the raw serialized JSON blobs, so a snapshot round-trips the store
// byte-for-byte — soft-deleted rows and malformed blobs included.

type exportAttribute struct {
	UserID     string  `json:"user_id"`
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Category   *string `json:"category"`
	Confidence float64 `json:"confidence"`
	UpdatedAt  int64   `json:"updated_at"`
	Deleted    bool    `json:"deleted"`
}

type exportEntity struct {
	ID         int64   `json:"id"`
	UserID     string  `json:"user_id"`
	EntityType string  `json:"entity_type"`
	Name       *string `json:"name"`
	Attributes *string `json:"attributes"`
	Status     string  `json:"status"`
	CreatedAt  int64   `json:"created_at"`
	UpdatedAt  int64   `json:"updated_at"`
	Deleted    bool    `json:"deleted"`
}

type exportEvent struct {
	ID               int64   `json:"id"`
	UserID           string  `json:"user_id"`
	EventType        string  `json:"event_type"`
	Description      string  `json:"description"`
	Timestamp        int64   `json:"timestamp"`
	RelatedEntityIDs *string `json:"related_entity_ids"`
	Metadata         *string `json:"metadata"`
	Importance       float64 `json:"importance"`
	CreatedAt        int64   `json:"created_at"`
	Deleted          bool    `json:"deleted"`
}

type exportRelation struct {
	ID           int64  `json:"id"`
	UserID       string `json:"user_id"`
	SourceID     int64  `json:"source_id"`
	TargetID     int64  `json:"target_id"`
	RelationType string `json:"relation_type"`
	CreatedAt    int64  `json:"created_at"`
	Deleted      bool   `json:"deleted"`
}

type exportData struct {
	Attributes []exportAttribute `json:"attributes"`
	Entities   []exportEntity    `json:"entities"`
	Events     []exportEvent     `json:"events"`
	Relations  []exportRelation  `json:"relations"`
}

// Export serializes all four tables (all users, all rows) to JSON.
func (s *SQLiteStore) Export() ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var data exportData

	attrRows, err := s.db.Query(`
		SELECT user_id, key, value, category, confidence, updated_at, deleted
		FROM user_attributes ORDER BY user_id, key
	`)
	if err != nil {
		return nil, fmt.Errorf("export attributes: %w", err)
	}
	defer attrRows.Close()
	for attrRows.Next() {
		var a exportAttribute
		var deleted int
		if err := attrRows.Scan(&a.UserID, &a.Key, &a.Value, &a.Category, &a.Confidence, &a.UpdatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		a.Deleted = deleted != 0
		data.Attributes = append(data.Attributes, a)
	}
	if err := attrRows.Err(); err != nil {
		return nil, err
	}

	entityRows, err := s.db.Query(`
		SELECT id, user_id, entity_type, name, attributes, status, created_at, updated_at, deleted
		FROM entities ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("export entities: %w", err)
	}
	defer entityRows.Close()
	for entityRows.Next() {
		var e exportEntity
		var deleted int
		if err := entityRows.Scan(&e.ID, &e.UserID, &e.EntityType, &e.Name, &e.Attributes, &e.Status, &e.CreatedAt, &e.UpdatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		e.Deleted = deleted != 0
		data.Entities = append(data.Entities, e)
	}
	if err := entityRows.Err(); err != nil {
		return nil, err
	}

	eventRows, err := s.db.Query(`
		SELECT id, user_id, event_type, description, timestamp, related_entity_ids, metadata, importance, created_at, deleted
		FROM events ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("export events: %w", err)
	}
	defer eventRows.Close()
	for eventRows.Next() {
		var e exportEvent
		var deleted int
		if err := eventRows.Scan(&e.ID, &e.UserID, &e.EventType, &e.Description, &e.Timestamp, &e.RelatedEntityIDs, &e.Metadata, &e.Importance, &e.CreatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Deleted = deleted != 0
		data.Events = append(data.Events, e)
	}
	if err := eventRows.Err(); err != nil {
		return nil, err
	}

	relationRows, err := s.db.Query(`
		SELECT id, user_id, source_id, target_id, relation_type, created_at, deleted
		FROM entity_relations ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("export relations: %w", err)
	}
	defer relationRows.Close()
	for relationRows.Next() {
		var r exportRelation
		var deleted int
		if err := relationRows.Scan(&r.ID, &r.UserID, &r.SourceID, &r.TargetID, &r.RelationType, &r.CreatedAt, &deleted); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		r.Deleted = deleted != 0
		data.Relations = append(data.Relations, r)
	}
	if err := relationRows.Err(); err != nil {
		return nil, err
	}

	return json.Marshal(data)
}

// Import restores the store from an exported snapshot. All existing rows
// are cleared first; ids are preserved so relations and event references
// stay intact.
func (s *SQLiteStore) Import(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	var snap exportData
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("import unmarshal: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("import begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"user_attributes", "entities", "events", "entity_relations"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for _, a := range snap.Attributes {
		if _, err := tx.Exec(`
			INSERT INTO user_attributes (user_id, key, value, category, confidence, updated_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, a.UserID, a.Key, a.Value, a.Category, a.Confidence, a.UpdatedAt, boolToInt(a.Deleted)); err != nil {
			return fmt.Errorf("import attribute %q: %w", a.Key, err)
		}
	}
	for _, e := range snap.Entities {
		if _, err := tx.Exec(`
			INSERT INTO entities (id, user_id, entity_type, name, attributes, status, created_at, updated_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.UserID, e.EntityType, e.Name, e.Attributes, e.Status, e.CreatedAt, e.UpdatedAt, boolToInt(e.Deleted)); err != nil {
			return fmt.Errorf("import entity %d: %w", e.ID, err)
		}
	}
	for _, e := range snap.Events {
		if _, err := tx.Exec(`
			INSERT INTO events (id, user_id, event_type, description, timestamp, related_entity_ids, metadata, importance, created_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, e.ID, e.UserID, e.EventType, e.Description, e.Timestamp, e.RelatedEntityIDs, e.Metadata, e.Importance, e.CreatedAt, boolToInt(e.Deleted)); err != nil {
			return fmt.Errorf("import event %d: %w", e.ID, err)
		}
	}
	for _, r := range snap.Relations {
		if _, err := tx.Exec(`
			INSERT INTO entity_relations (id, user_id, source_id, target_id, relation_type, created_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, r.UserID, r.SourceID, r.TargetID, r.RelationType, r.CreatedAt, boolToInt(r.Deleted)); err != nil {
			return fmt.Errorf("import relation %d: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
