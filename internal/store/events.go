package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/attislabs/mimir/pkg/search"
	"github.com/attislabs/mimir/pkg/timerange"
)

// instantLayouts are the accepted client-supplied timestamp forms, tried
// in order.
var instantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseInstant parses a client-supplied timestamp in any of the accepted
// layouts. Layouts without a zone are interpreted as UTC.
func ParseInstant(s string) (time.Time, error) {
	for _, layout := range instantLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", ErrInvalidArgument, s)
}

// AddEvent records a new event and returns its id. The event's core
// fields are immutable afterwards; there is no update operation.
func (s *SQLiteStore) AddEvent(p EventParams) (int64, error) {
	if !ValidEventType(string(p.Type)) {
		return 0, fmt.Errorf("%w: unknown event type %q", ErrInvalidArgument, p.Type)
	}
	if p.Description == "" {
		return 0, fmt.Errorf("%w: event description is required", ErrInvalidArgument)
	}
	importance := DefaultImportance
	if p.Importance != nil {
		importance = *p.Importance
	}
	if importance < 0 || importance > 1 {
		return 0, fmt.Errorf("%w: importance %v outside [0, 1]", ErrInvalidArgument, importance)
	}

	ts := p.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	var related any
	if len(p.RelatedEntityIDs) > 0 {
		data, err := json.Marshal(p.RelatedEntityIDs)
		if err != nil {
			return 0, fmt.Errorf("marshal related entity ids: %w", err)
		}
		related = string(data)
	}
	metadata, err := encodeObject(p.Metadata)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO events (user_id, event_type, description, timestamp, related_entity_ids, metadata, importance, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0)
	`, s.user, string(p.Type), p.Description, ts.UnixMilli(), related, metadata, importance, nowMillis())
	if err != nil {
		return 0, fmt.Errorf("add event: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	s.notifyWrite("add_event")
	return id, nil
}

// SearchEvents retrieves events in one of two modes. With a non-empty
// keyword list, candidates are ranked by weighted occurrence counts
// (description hits count double metadata hits; at least one keyword must
// match). Otherwise the legacy path filters descriptions by a plain
// substring and orders by timestamp descending. Both modes honor the
// eventType and timeRange filters; limit defaults to 20.
func (s *SQLiteStore) SearchEvents(p EventSearchParams) ([]EventMatch, error) {
	if p.Type != "" && !ValidEventType(string(p.Type)) {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidArgument, p.Type)
	}
	limit := p.Limit
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT id, event_type, description, timestamp, related_entity_ids, metadata, importance, created_at
		FROM events
		WHERE user_id = ? AND deleted = 0`
	args := []any{s.user}
	if p.Type != "" {
		query += ` AND event_type = ?`
		args = append(args, string(p.Type))
	}
	if p.TimeRange != "" {
		tr, err := timerange.Resolve(p.TimeRange, time.Now())
		if err != nil {
			return nil, fmt.Errorf("resolve time range: %w", err)
		}
		query += ` AND timestamp >= ? AND timestamp < ?`
		args = append(args, tr.Start.UnixMilli(), tr.End.UnixMilli())
	}

	if len(p.Keywords) > 0 {
		return s.searchEventsScored(query, args, p.Keywords, limit)
	}

	if p.Query != "" {
		query += ` AND description LIKE ? ESCAPE '\'`
		args = append(args, "%"+escapeLike(p.Query)+"%")
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	var out []EventMatch
	for rows.Next() {
		e, _, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, EventMatch{Event: e})
	}
	return out, rows.Err()
}

// searchEventsScored is the keyword-ranked path. Match mode is implicitly
// "any"; this asymmetry with attribute/entity search is part of the tool
// surface's compatibility contract.
func (s *SQLiteStore) searchEventsScored(query string, args []any, keywords []string, limit int) ([]EventMatch, error) {
	scorer, err := search.NewScorer(keywords, search.EventWeights)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query+` ORDER BY timestamp DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("search events: %w", err)
	}
	defer rows.Close()

	var out []EventMatch
	for rows.Next() {
		e, rawMeta, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		sc := scorer.Score(map[string]string{
			"description": e.Description,
			"metadata":    rawMeta,
		})
		if !scorer.Accept(sc, search.MatchAny) {
			continue
		}
		out = append(out, EventMatch{
			Event:           e,
			RelevanceScore:  sc.Relevance,
			MatchedKeywords: sc.Matched,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// EntityTimeline returns non-deleted events referencing the entity,
// newest first. Membership is a structural check against the decoded id
// array, never a string pattern match over the serialized form. Limit
// defaults to 10.
func (s *SQLiteStore) EntityTimeline(entityID int64, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 10
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, event_type, description, timestamp, related_entity_ids, metadata, importance, created_at
		FROM events
		WHERE user_id = ? AND deleted = 0 AND related_entity_ids IS NOT NULL
		ORDER BY timestamp DESC
	`, s.user)
	if err != nil {
		return nil, fmt.Errorf("query timeline: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		e, _, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		if !containsID(e.RelatedEntityIDs, entityID) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, rows.Err()
}

// DeleteEvent soft-deletes an event via the retention flag. There is no
// un-delete.
func (s *SQLiteStore) DeleteEvent(id int64) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE events SET deleted = 1
		WHERE user_id = ? AND id = ? AND deleted = 0
	`, s.user, id)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete event %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DeleteResult{}, err
	}
	if n > 0 {
		s.notifyWrite("delete_event")
	}
	return DeleteResult{Deleted: n > 0, Changes: n}, nil
}

func scanEvent(rows *sql.Rows) (Event, string, error) {
	var e Event
	var etype string
	var related, metadata sql.NullString
	if err := rows.Scan(&e.ID, &etype, &e.Description, &e.Timestamp, &related, &metadata, &e.Importance, &e.CreatedAt); err != nil {
		return Event{}, "", fmt.Errorf("scan event: %w", err)
	}
	e.EventType = EventType(etype)
	e.RelatedEntityIDs = decodeIDs(related)
	e.Metadata = decodeObject(metadata)
	return e, metadata.String, nil
}

func containsID(ids []int64, id int64) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
