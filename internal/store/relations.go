package store

import "fmt"

// RelateEntities records a directed link between two entities and returns
// the relation id. Endpoint existence is not enforced; referential
// integrity is managed at the application level.
func (s *SQLiteStore) RelateEntities(sourceID, targetID int64, relationType string) (int64, error) {
	if relationType == "" {
		return 0, fmt.Errorf("%w: relation type is required", ErrInvalidArgument)
	}
	if sourceID <= 0 || targetID <= 0 {
		return 0, fmt.Errorf("%w: relation endpoints must be positive entity ids", ErrInvalidArgument)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO entity_relations (user_id, source_id, target_id, relation_type, created_at, deleted)
		VALUES (?, ?, ?, ?, ?, 0)
	`, s.user, sourceID, targetID, relationType, nowMillis())
	if err != nil {
		return 0, fmt.Errorf("relate entities: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	s.notifyWrite("relate_entities")
	return id, nil
}

// ListRelations returns live relations touching the entity at either end.
func (s *SQLiteStore) ListRelations(entityID int64) ([]Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, source_id, target_id, relation_type, created_at
		FROM entity_relations
		WHERE user_id = ? AND deleted = 0 AND (source_id = ? OR target_id = ?)
		ORDER BY id
	`, s.user, entityID, entityID)
	if err != nil {
		return nil, fmt.Errorf("list relations: %w", err)
	}
	defer rows.Close()

	var out []Relation
	for rows.Next() {
		var r Relation
		if err := rows.Scan(&r.ID, &r.SourceID, &r.TargetID, &r.RelationType, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan relation: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteRelation soft-deletes a relation.
func (s *SQLiteStore) DeleteRelation(id int64) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE entity_relations SET deleted = 1
		WHERE user_id = ? AND id = ? AND deleted = 0
	`, s.user, id)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete relation %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DeleteResult{}, err
	}
	if n > 0 {
		s.notifyWrite("delete_relation")
	}
	return DeleteResult{Deleted: n > 0, Changes: n}, nil
}
