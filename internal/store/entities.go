package store

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/attislabs/mimir/pkg/search"
)

// CreateEntity registers a new entity and returns its id.
func (s *SQLiteStore) CreateEntity(entityType EntityType, name string, attributes map[string]any) (int64, error) {
	if !ValidEntityType(string(entityType)) {
		return 0, fmt.Errorf("%w: unknown entity type %q", ErrInvalidArgument, entityType)
	}
	attrs, err := encodeObject(attributes)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := nowMillis()
	res, err := s.db.Exec(`
		INSERT INTO entities (user_id, entity_type, name, attributes, status, created_at, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
	`, s.user, string(entityType), nullable(name), attrs, string(StatusActive), now, now)
	if err != nil {
		return 0, fmt.Errorf("create entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	s.notifyWrite("create_entity")
	return id, nil
}

// UpdateEntity applies a partial patch. An empty patch reports
// updated=false without touching storage; any applied patch refreshes
// updated_at. Patching a missing or retention-deleted id reports zero
// changes.
func (s *SQLiteStore) UpdateEntity(id int64, patch EntityPatch) (UpdateResult, error) {
	if patch.Empty() {
		return UpdateResult{Updated: false, Changes: 0}, nil
	}

	set := ``
	var args []any
	if patch.Name != nil {
		set += `name = ?, `
		args = append(args, nullable(*patch.Name))
	}
	if patch.Attributes != nil {
		attrs, err := encodeObject(patch.Attributes)
		if err != nil {
			return UpdateResult{}, err
		}
		set += `attributes = ?, `
		args = append(args, attrs)
	}
	if patch.Status != nil {
		if *patch.Status != StatusActive && *patch.Status != StatusInactive {
			return UpdateResult{}, fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, *patch.Status)
		}
		set += `status = ?, `
		args = append(args, string(*patch.Status))
	}
	set += `updated_at = ?`
	args = append(args, nowMillis(), s.user, id)

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`UPDATE entities SET `+set+` WHERE user_id = ? AND id = ? AND deleted = 0`, args...)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("update entity %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return UpdateResult{}, err
	}
	if n > 0 {
		s.notifyWrite("update_entity")
	}
	return UpdateResult{Updated: n > 0, Changes: n}, nil
}

// ListEntities returns entities filtered by type and status. Status
// accepts active (default), inactive, or all; retention-deleted rows are
// always excluded. Stored attribute JSON is deserialized; malformed blobs
// come back as nil rather than failing the call.
func (s *SQLiteStore) ListEntities(entityType EntityType, status string) ([]Entity, error) {
	if status == "" {
		status = string(StatusActive)
	}
	switch status {
	case string(StatusActive), string(StatusInactive), "all":
	default:
		return nil, fmt.Errorf("%w: unknown status filter %q", ErrInvalidArgument, status)
	}
	if entityType != "" && !ValidEntityType(string(entityType)) {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidArgument, entityType)
	}

	query := `
		SELECT id, entity_type, name, attributes, status, created_at, updated_at
		FROM entities
		WHERE user_id = ? AND deleted = 0`
	args := []any{s.user}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(entityType))
	}
	if status != "all" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, _, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteEntity marks an entity inactive. This is the user-visible soft
// delete: it toggles visibility only and never sets the retention flag.
func (s *SQLiteStore) DeleteEntity(id int64) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE entities SET status = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND deleted = 0
	`, string(StatusInactive), nowMillis(), s.user, id)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete entity %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DeleteResult{}, err
	}
	if n > 0 {
		s.notifyWrite("delete_entity")
	}
	return DeleteResult{Deleted: n > 0, Changes: n}, nil
}

// SearchEntities ranks active entities by weighted keyword occurrences:
// name hits count three times an attribute-blob hit. The fields argument
// restricts scoring to "name", "attributes", or both ("all", the default).
func (s *SQLiteStore) SearchEntities(keywords []string, entityType EntityType, fields []string, mode search.MatchMode, limit int) ([]EntityMatch, error) {
	weights, err := entitySearchWeights(fields)
	if err != nil {
		return nil, err
	}
	scorer, err := search.NewScorer(keywords, weights)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}
	if entityType != "" && !ValidEntityType(string(entityType)) {
		return nil, fmt.Errorf("%w: unknown entity type %q", ErrInvalidArgument, entityType)
	}
	if limit <= 0 {
		limit = 10
	}

	query := `
		SELECT id, entity_type, name, attributes, status, created_at, updated_at
		FROM entities
		WHERE user_id = ? AND deleted = 0 AND status = ?`
	args := []any{s.user, string(StatusActive)}
	if entityType != "" {
		query += ` AND entity_type = ?`
		args = append(args, string(entityType))
	}
	query += ` ORDER BY id`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("search entities: %w", err)
	}
	defer rows.Close()

	var out []EntityMatch
	for rows.Next() {
		e, rawAttrs, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		// Attributes are scored against the serialized form, so nested
		// values match the same way they were written.
		sc := scorer.Score(map[string]string{
			"name":       e.Name,
			"attributes": rawAttrs,
		})
		if !scorer.Accept(sc, mode) {
			continue
		}
		out = append(out, EntityMatch{
			Entity:          e,
			RelevanceScore:  sc.Relevance,
			MatchedKeywords: sc.Matched,
			MatchedFields: MatchedFields{
				Name:       sc.Fields["name"],
				Attributes: sc.Fields["attributes"],
			},
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

func entitySearchWeights(fields []string) (search.Weights, error) {
	if len(fields) == 0 {
		return search.EntityWeights, nil
	}
	w := search.Weights{}
	for _, f := range fields {
		switch f {
		case "all":
			return search.EntityWeights, nil
		case "name", "attributes":
			w[f] = search.EntityWeights[f]
		default:
			return nil, fmt.Errorf("%w: unknown search field %q", ErrInvalidArgument, f)
		}
	}
	return w, nil
}

func scanEntity(rows *sql.Rows) (Entity, string, error) {
	var e Entity
	var etype, status string
	var name, attrs sql.NullString
	if err := rows.Scan(&e.ID, &etype, &name, &attrs, &status, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entity{}, "", fmt.Errorf("scan entity: %w", err)
	}
	e.EntityType = EntityType(etype)
	e.Status = EntityStatus(status)
	if name.Valid {
		e.Name = name.String
	}
	e.Attributes = decodeObject(attrs)
	return e, attrs.String, nil
}

// nullable stores empty strings as SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
