package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/attislabs/mimir/internal/store"
	"github.com/attislabs/mimir/pkg/search"
	"github.com/attislabs/mimir/pkg/tools"
)

// registerTools wires every memory operation into the registry.
// Handlers decode their JSON arguments, call the store, and return the
// result as JSON. Store-level failures come back as error envelopes so
// the assistant can react instead of the session dying.
func registerTools(reg *tools.Registry, st store.Storer) {
	must(reg.Register(tools.Tool{
		Name:        "update_attribute",
		Description: "Create or overwrite a fact about the user. Returns the previous value when one existed.",
		Parameters: objectSchema(map[string]any{
			"key":      prop("string", "Attribute key, e.g. current_city"),
			"value":    prop("string", "Attribute value"),
			"category": prop("string", "Optional category: basic_info, preferences, or habits"),
		}, "key", "value"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			Key      string `json:"key"`
			Value    string `json:"value"`
			Category string `json:"category"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.UpdateAttribute(p.Key, p.Value, p.Category)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(out)
	}))

	must(reg.Register(tools.Tool{
		Name:        "query_attributes",
		Description: "Fetch stored facts, optionally restricted to a key list and/or category.",
		Parameters: objectSchema(map[string]any{
			"keys":     arrayProp("string", "Optional keys to fetch; empty means all"),
			"category": prop("string", "Optional category filter"),
		}),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			Keys     []string `json:"keys"`
			Category string   `json:"category"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.QueryAttributes(p.Keys, p.Category)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(listOrEmpty(out))
	}))

	must(reg.Register(tools.Tool{
		Name:        "delete_attribute",
		Description: "Remove a stored fact. Deleting an absent key is a no-op, not an error.",
		Parameters: objectSchema(map[string]any{
			"key": prop("string", "Attribute key to delete"),
		}, "key"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			Key string `json:"key"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.DeleteAttribute(p.Key)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(out)
	}))

	must(reg.Register(tools.Tool{
		Name:        "search_attributes",
		Description: "Rank stored facts by keyword relevance. Key hits count double value hits.",
		Parameters: objectSchema(map[string]any{
			"keywords":   arrayProp("string", "Keywords to look for"),
			"category":   prop("string", "Optional category filter"),
			"match_mode": prop("string", "any (default) or all"),
			"limit":      prop("integer", "Maximum results, default 10"),
		}, "keywords"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			Keywords  []string `json:"keywords"`
			Category  string   `json:"category"`
			MatchMode string   `json:"match_mode"`
			Limit     int      `json:"limit"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		mode, err := search.ParseMatchMode(p.MatchMode)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.SearchAttributes(p.Keywords, p.Category, mode, p.Limit)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(listOrEmpty(out))
	}))

	must(reg.Register(tools.Tool{
		Name:        "create_entity",
		Description: "Register a new entity (pet, property, vehicle, or person).",
		Parameters: objectSchema(map[string]any{
			"entity_type": prop("string", "pet, property, vehicle, or person"),
			"name":        prop("string", "Optional display name"),
			"attributes":  prop("object", "Optional free-form attributes"),
		}, "entity_type"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			EntityType string         `json:"entity_type"`
			Name       string         `json:"name"`
			Attributes map[string]any `json:"attributes"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		id, err := st.CreateEntity(store.EntityType(p.EntityType), p.Name, p.Attributes)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(map[string]int64{"entity_id": id})
	}))

	must(reg.Register(tools.Tool{
		Name:        "update_entity",
		Description: "Patch an entity. Omitted fields are left untouched; attributes replace the stored object wholesale.",
		Parameters: objectSchema(map[string]any{
			"entity_id":  prop("integer", "Entity id"),
			"name":       prop("string", "New name"),
			"attributes": prop("object", "Replacement attributes"),
			"status":     prop("string", "active or inactive"),
		}, "entity_id"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			EntityID   int64          `json:"entity_id"`
			Name       *string        `json:"name"`
			Attributes map[string]any `json:"attributes"`
			Status     *string        `json:"status"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		patch := store.EntityPatch{Name: p.Name, Attributes: p.Attributes}
		if p.Status != nil {
			status := store.EntityStatus(*p.Status)
			patch.Status = &status
		}
		out, err := st.UpdateEntity(p.EntityID, patch)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(out)
	}))

	must(reg.Register(tools.Tool{
		Name:        "list_entities",
		Description: "List entities by type and status. Status defaults to active; pass all to include inactive.",
		Parameters: objectSchema(map[string]any{
			"entity_type": prop("string", "Optional type filter"),
			"status":      prop("string", "active (default), inactive, or all"),
		}),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			EntityType string `json:"entity_type"`
			Status     string `json:"status"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.ListEntities(store.EntityType(p.EntityType), p.Status)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(listOrEmpty(out))
	}))

	must(reg.Register(tools.Tool{
		Name:        "delete_entity",
		Description: "Mark an entity inactive. Its history and relations are preserved.",
		Parameters: objectSchema(map[string]any{
			"entity_id": prop("integer", "Entity id"),
		}, "entity_id"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			EntityID int64 `json:"entity_id"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.DeleteEntity(p.EntityID)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(out)
	}))

	must(reg.Register(tools.Tool{
		Name:        "search_entities",
		Description: "Rank active entities by keyword relevance. Name hits count three times attribute hits.",
		Parameters: objectSchema(map[string]any{
			"keywords":    arrayProp("string", "Keywords to look for"),
			"entity_type": prop("string", "Optional type filter"),
			"fields":      arrayProp("string", "Fields to search: name, attributes, or all (default)"),
			"match_mode":  prop("string", "any (default) or all"),
			"limit":       prop("integer", "Maximum results, default 10"),
		}, "keywords"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			Keywords   []string `json:"keywords"`
			EntityType string   `json:"entity_type"`
			Fields     []string `json:"fields"`
			MatchMode  string   `json:"match_mode"`
			Limit      int      `json:"limit"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		mode, err := search.ParseMatchMode(p.MatchMode)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.SearchEntities(p.Keywords, store.EntityType(p.EntityType), p.Fields, mode, p.Limit)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(listOrEmpty(out))
	}))

	must(reg.Register(tools.Tool{
		Name:        "add_event",
		Description: "Record a timestamped event, optionally linked to entities. Timestamp defaults to now.",
		Parameters: objectSchema(map[string]any{
			"event_type":         prop("string", "purchase, illness, maintenance, activity, milestone, or other"),
			"description":        prop("string", "What happened"),
			"timestamp":          prop("string", "Optional RFC 3339 or YYYY-MM-DD timestamp"),
			"related_entity_ids": arrayProp("integer", "Optional entity ids this event concerns"),
			"metadata":           prop("object", "Optional free-form metadata"),
			"importance":         prop("number", "Optional importance in [0, 1], default 0.5"),
		}, "event_type", "description"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			EventType        string         `json:"event_type"`
			Description      string         `json:"description"`
			Timestamp        string         `json:"timestamp"`
			RelatedEntityIDs []int64        `json:"related_entity_ids"`
			Metadata         map[string]any `json:"metadata"`
			Importance       *float64       `json:"importance"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		params := store.EventParams{
			Type:             store.EventType(p.EventType),
			Description:      p.Description,
			RelatedEntityIDs: p.RelatedEntityIDs,
			Metadata:         p.Metadata,
			Importance:       p.Importance,
		}
		if p.Timestamp != "" {
			ts, err := store.ParseInstant(p.Timestamp)
			if err != nil {
				return tools.ErrorResult(err), nil
			}
			params.Timestamp = ts
		}
		id, err := st.AddEvent(params)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(map[string]int64{"event_id": id})
	}))

	must(reg.Register(tools.Tool{
		Name:        "search_events",
		Description: "Find events. With keywords, results are relevance-ranked; otherwise query is a plain substring over descriptions, newest first.",
		Parameters: objectSchema(map[string]any{
			"query":      prop("string", "Substring to match in descriptions"),
			"keywords":   arrayProp("string", "Keywords for relevance ranking"),
			"event_type": prop("string", "Optional type filter"),
			"time_range": prop("string", "Optional range: last_week, last_month, last_year, YYYY-MM, or YYYY"),
			"limit":      prop("integer", "Maximum results, default 20"),
		}),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			Query     string   `json:"query"`
			Keywords  []string `json:"keywords"`
			EventType string   `json:"event_type"`
			TimeRange string   `json:"time_range"`
			Limit     int      `json:"limit"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.SearchEvents(store.EventSearchParams{
			Query:     p.Query,
			Keywords:  p.Keywords,
			Type:      store.EventType(p.EventType),
			TimeRange: p.TimeRange,
			Limit:     p.Limit,
		})
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(listOrEmpty(out))
	}))

	must(reg.Register(tools.Tool{
		Name:        "query_entity_timeline",
		Description: "List events referencing an entity, newest first.",
		Parameters: objectSchema(map[string]any{
			"entity_id": prop("integer", "Entity id"),
			"limit":     prop("integer", "Maximum results, default 10"),
		}, "entity_id"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			EntityID int64 `json:"entity_id"`
			Limit    int   `json:"limit"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.EntityTimeline(p.EntityID, p.Limit)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(listOrEmpty(out))
	}))

	must(reg.Register(tools.Tool{
		Name:        "delete_event",
		Description: "Remove an event from all future queries.",
		Parameters: objectSchema(map[string]any{
			"event_id": prop("integer", "Event id"),
		}, "event_id"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			EventID int64 `json:"event_id"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.DeleteEvent(p.EventID)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(out)
	}))

	must(reg.Register(tools.Tool{
		Name:        "relate_entities",
		Description: "Record a directed relation between two entities, e.g. person owns pet.",
		Parameters: objectSchema(map[string]any{
			"source_id":     prop("integer", "Source entity id"),
			"target_id":     prop("integer", "Target entity id"),
			"relation_type": prop("string", "Relation label, e.g. owns"),
		}, "source_id", "target_id", "relation_type"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			SourceID     int64  `json:"source_id"`
			TargetID     int64  `json:"target_id"`
			RelationType string `json:"relation_type"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		id, err := st.RelateEntities(p.SourceID, p.TargetID, p.RelationType)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(map[string]int64{"relation_id": id})
	}))

	must(reg.Register(tools.Tool{
		Name:        "list_entity_relations",
		Description: "List relations touching an entity at either end.",
		Parameters: objectSchema(map[string]any{
			"entity_id": prop("integer", "Entity id"),
		}, "entity_id"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			EntityID int64 `json:"entity_id"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.ListRelations(p.EntityID)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(listOrEmpty(out))
	}))

	must(reg.Register(tools.Tool{
		Name:        "delete_relation",
		Description: "Remove a relation between entities.",
		Parameters: objectSchema(map[string]any{
			"relation_id": prop("integer", "Relation id"),
		}, "relation_id"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			RelationID int64 `json:"relation_id"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		out, err := st.DeleteRelation(p.RelationID)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(out)
	}))

	must(reg.Register(tools.Tool{
		Name:        "memory_stats",
		Description: "Count live attributes, entities, events, and relations.",
		Parameters:  objectSchema(map[string]any{}),
	}, func(_ context.Context, _ json.RawMessage) (tools.Result, error) {
		out, err := st.Count()
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		return tools.JSONResult(out)
	}))

	must(reg.Register(tools.Tool{
		Name:        "search_memory",
		Description: "Free-text search across attributes, entities, and events. Keywords are extracted from the text automatically.",
		Parameters: objectSchema(map[string]any{
			"text":  prop("string", "Natural-language search text"),
			"limit": prop("integer", "Maximum results per section, default 5"),
		}, "text"),
	}, func(_ context.Context, args json.RawMessage) (tools.Result, error) {
		var p struct {
			Text  string `json:"text"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(args, &p); err != nil {
			return tools.ErrorResult(err), nil
		}
		limit := p.Limit
		if limit <= 0 {
			limit = 5
		}
		keywords := search.ExtractKeywords(p.Text)
		if len(keywords) == 0 {
			return tools.ErrorResult(fmt.Errorf("no usable keywords in %q", p.Text)), nil
		}

		attrs, err := st.SearchAttributes(keywords, "", search.MatchAny, limit)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		entities, err := st.SearchEntities(keywords, "", nil, search.MatchAny, limit)
		if err != nil {
			return tools.ErrorResult(err), nil
		}
		events, err := st.SearchEvents(store.EventSearchParams{Keywords: keywords, Limit: limit})
		if err != nil {
			return tools.ErrorResult(err), nil
		}

		return tools.JSONResult(map[string]any{
			"keywords":   keywords,
			"attributes": listOrEmpty(attrs),
			"entities":   listOrEmpty(entities),
			"events":     listOrEmpty(events),
		})
	}))
}

func objectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func prop(typ, description string) map[string]any {
	return map[string]any{"type": typ, "description": description}
}

func arrayProp(itemType, description string) map[string]any {
	return map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": itemType},
		"description": description,
	}
}

// listOrEmpty keeps empty result sets serializing as [] instead of null.
func listOrEmpty[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
