package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attislabs/mimir/internal/store"
	"github.com/attislabs/mimir/pkg/tools"
)

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	st, err := store.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	reg := tools.NewRegistry()
	registerTools(reg, st)
	return reg
}

func runSession(t *testing.T, reg *tools.Registry, requests ...string) []map[string]any {
	t.Helper()
	in := strings.NewReader(strings.Join(requests, "\n") + "\n")
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, serve(context.Background(), reg, in, &out, logger))

	var responses []map[string]any
	dec := json.NewDecoder(&out)
	for dec.More() {
		var resp map[string]any
		require.NoError(t, dec.Decode(&resp))
		responses = append(responses, resp)
	}
	require.Len(t, responses, len(requests))
	return responses
}

func TestServe_AttributeRoundTrip(t *testing.T) {
	reg := newTestRegistry(t)

	responses := runSession(t, reg,
		`{"tool":"update_attribute","args":{"key":"current_city","value":"Beijing","category":"basic_info"}}`,
		`{"tool":"update_attribute","args":{"key":"current_city","value":"Shanghai"}}`,
		`{"tool":"query_attributes","args":{"keys":["current_city"]}}`,
	)

	second := responses[1]["result"].(map[string]any)
	assert.Equal(t, true, second["had_previous_value"])
	assert.Equal(t, "Beijing", second["previous_value"])

	attrs := responses[2]["result"].([]any)
	require.Len(t, attrs, 1)
	assert.Equal(t, "Shanghai", attrs[0].(map[string]any)["value"])
}

func TestServe_EntityAndTimeline(t *testing.T) {
	reg := newTestRegistry(t)

	responses := runSession(t, reg,
		`{"tool":"create_entity","args":{"entity_type":"pet","name":"Whiskers","attributes":{"species":"cat"}}}`,
		`{"tool":"add_event","args":{"event_type":"milestone","description":"adopted Whiskers","related_entity_ids":[1],"timestamp":"2026-01-01"}}`,
		`{"tool":"query_entity_timeline","args":{"entity_id":1}}`,
		`{"tool":"memory_stats","args":{}}`,
	)

	created := responses[0]["result"].(map[string]any)
	assert.Equal(t, float64(1), created["entity_id"])

	timeline := responses[2]["result"].([]any)
	require.Len(t, timeline, 1)
	assert.Equal(t, "adopted Whiskers", timeline[0].(map[string]any)["description"])

	stats := responses[3]["result"].(map[string]any)
	assert.Equal(t, float64(1), stats["entities"])
	assert.Equal(t, float64(1), stats["events"])
}

func TestServe_ErrorsAreEnveloped(t *testing.T) {
	reg := newTestRegistry(t)

	responses := runSession(t, reg,
		`{"tool":"create_entity","args":{"entity_type":"spaceship"}}`,
		`{"tool":"no_such_tool","args":{}}`,
		`this is not json`,
	)

	// Invalid argument: handler returns an error envelope, session continues.
	assert.Equal(t, true, responses[0]["is_error"])
	result := responses[0]["result"].(map[string]any)
	assert.Contains(t, result["error"], "invalid argument")

	// Unknown tool and malformed line: top-level error responses.
	assert.Contains(t, responses[1]["error"], "tool not found")
	assert.Contains(t, responses[2]["error"], "malformed request")
}

func TestServe_ToolsList(t *testing.T) {
	reg := newTestRegistry(t)

	responses := runSession(t, reg, `{"tool":"tools/list"}`)

	list := responses[0]["tools"].([]any)
	require.NotEmpty(t, list)

	names := make(map[string]bool)
	for _, item := range list {
		names[item.(map[string]any)["name"].(string)] = true
	}
	for _, want := range []string{
		"update_attribute", "query_attributes", "delete_attribute", "search_attributes",
		"create_entity", "update_entity", "list_entities", "delete_entity", "search_entities",
		"add_event", "search_events", "query_entity_timeline", "delete_event",
		"relate_entities", "list_entity_relations", "delete_relation",
		"memory_stats", "search_memory",
	} {
		assert.True(t, names[want], "missing tool %s", want)
	}
}

func TestServe_SearchMemory(t *testing.T) {
	reg := newTestRegistry(t)

	responses := runSession(t, reg,
		`{"tool":"update_attribute","args":{"key":"favorite_food","value":"dumplings"}}`,
		`{"tool":"create_entity","args":{"entity_type":"property","name":"Dumplings House"}}`,
		`{"tool":"search_memory","args":{"text":"where can I get dumplings?"}}`,
	)

	result := responses[2]["result"].(map[string]any)
	assert.NotEmpty(t, result["attributes"])
	assert.NotEmpty(t, result["entities"])
	assert.Empty(t, result["events"])
}
