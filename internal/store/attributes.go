package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/attislabs/mimir/pkg/search"
)

// UpdateAttribute creates or overwrites the fact stored under key.
// The previous live value, if any, is captured before the write and
// returned to the caller. A nil/empty category preserves the stored one
// (last-non-null-wins); writing resurrects a soft-deleted row.
func (s *SQLiteStore) UpdateAttribute(key, value, category string) (AttributeUpdate, error) {
	if key == "" {
		return AttributeUpdate{}, fmt.Errorf("%w: attribute key is required", ErrInvalidArgument)
	}
	var cat any
	if category != "" {
		if !ValidCategory(category) {
			return AttributeUpdate{}, fmt.Errorf("%w: unknown category %q", ErrInvalidArgument, category)
		}
		cat = category
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var prev string
	err := s.db.QueryRow(`
		SELECT value FROM user_attributes
		WHERE user_id = ? AND key = ? AND deleted = 0
	`, s.user, key).Scan(&prev)
	had := err == nil
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return AttributeUpdate{}, fmt.Errorf("read attribute %q: %w", key, err)
	}

	_, err = s.db.Exec(`
		INSERT INTO user_attributes (user_id, key, value, category, updated_at, deleted)
		VALUES (?, ?, ?, ?, ?, 0)
		ON CONFLICT(user_id, key) DO UPDATE SET
			value = excluded.value,
			category = COALESCE(excluded.category, user_attributes.category),
			updated_at = excluded.updated_at,
			deleted = 0
	`, s.user, key, value, cat, nowMillis())
	if err != nil {
		return AttributeUpdate{}, fmt.Errorf("write attribute %q: %w", key, err)
	}

	s.notifyWrite("update_attribute")

	out := AttributeUpdate{Updated: true, HadPreviousValue: had}
	if had {
		out.PreviousValue = &prev
	}
	return out, nil
}

// QueryAttributes returns live attributes, optionally restricted to a key
// set and/or a category. Output is ordered by key.
func (s *SQLiteStore) QueryAttributes(keys []string, category string) ([]Attribute, error) {
	query := `
		SELECT key, value, category, confidence, updated_at
		FROM user_attributes
		WHERE user_id = ? AND deleted = 0`
	args := []any{s.user}

	if len(keys) > 0 {
		query += ` AND key IN (` + placeholders(len(keys)) + `)`
		for _, k := range keys {
			args = append(args, k)
		}
	}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY key`

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query attributes: %w", err)
	}
	defer rows.Close()

	var out []Attribute
	for rows.Next() {
		a, err := scanAttribute(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// DeleteAttribute soft-deletes the fact stored under key. Deleting an
// absent or already-deleted key reports zero changes and is not an error.
func (s *SQLiteStore) DeleteAttribute(key string) (DeleteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE user_attributes SET deleted = 1, updated_at = ?
		WHERE user_id = ? AND key = ? AND deleted = 0
	`, nowMillis(), s.user, key)
	if err != nil {
		return DeleteResult{}, fmt.Errorf("delete attribute %q: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return DeleteResult{}, err
	}
	if n > 0 {
		s.notifyWrite("delete_attribute")
	}
	return DeleteResult{Deleted: n > 0, Changes: n}, nil
}

// SearchAttributes ranks live attributes by weighted keyword occurrences:
// key hits count double value hits. Ties keep key order; results are
// truncated to limit (default 10).
func (s *SQLiteStore) SearchAttributes(keywords []string, category string, mode search.MatchMode, limit int) ([]AttributeMatch, error) {
	scorer, err := search.NewScorer(keywords, search.AttributeWeights)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidArgument, err)
	}
	if limit <= 0 {
		limit = 10
	}

	candidates, err := s.QueryAttributes(nil, category)
	if err != nil {
		return nil, err
	}

	var out []AttributeMatch
	for _, a := range candidates {
		sc := scorer.Score(map[string]string{"key": a.Key, "value": a.Value})
		if !scorer.Accept(sc, mode) {
			continue
		}
		out = append(out, AttributeMatch{
			Attribute:       a,
			RelevanceScore:  sc.Relevance,
			MatchedKeywords: sc.Matched,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RelevanceScore > out[j].RelevanceScore
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func scanAttribute(rows *sql.Rows) (Attribute, error) {
	var a Attribute
	var category sql.NullString
	if err := rows.Scan(&a.Key, &a.Value, &category, &a.Confidence, &a.UpdatedAt); err != nil {
		return Attribute{}, fmt.Errorf("scan attribute: %w", err)
	}
	if category.Valid {
		a.Category = category.String
	}
	return a, nil
}
