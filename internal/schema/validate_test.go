package schema

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func answersFixture() map[string]any {
	return map[string]any{
		"schema_version": "2025.09-1",
		"active_step":    0,
		"steps": []any{
			map[string]any{
				"is_valid": nil,
				"answers": map[string]any{
					"0-0": "hello",
					"1-2": true,
				},
			},
		},
	}
}

func mustAnswersSchema(t *testing.T) *Schema {
	t.Helper()
	s, err := AnswersSchema("2025.09-1")
	require.NoError(t, err)
	return s
}

func TestValidateReportsExactCoordinate(t *testing.T) {
	s := mustAnswersSchema(t)
	doc := answersFixture()
	doc["steps"].([]any)[0].(map[string]any)["answers"].(map[string]any)["1-2"] = -4

	failures := Validate(doc, s)
	require.Len(t, failures, 1)
	require.Equal(t, "steps.0.answers.1-2", failures[0].Coordinate)
}

func TestValidateRejectsUndeclaredTopLevelKey(t *testing.T) {
	s := mustAnswersSchema(t)
	doc := answersFixture()
	doc["surprise"] = "value"

	failures := Validate(doc, s)
	require.Len(t, failures, 1)
	require.Equal(t, "", failures[0].Coordinate)
	require.Contains(t, failures[0].Message, "surprise")
}

func TestValidateRejectsMalformedAnswerKey(t *testing.T) {
	s := mustAnswersSchema(t)
	doc := answersFixture()
	doc["steps"].([]any)[0].(map[string]any)["answers"].(map[string]any)["a-1"] = "oops"

	failures := Validate(doc, s)
	require.Len(t, failures, 1)
	require.Equal(t, "steps.0.answers", failures[0].Coordinate)
	require.Contains(t, failures[0].Message, "a-1")
}

func TestValidateMissingRequiredProperty(t *testing.T) {
	s := mustAnswersSchema(t)
	doc := answersFixture()
	delete(doc, "active_step")

	failures := Validate(doc, s)
	require.Len(t, failures, 1)
	require.Contains(t, failures[0].Message, "active_step")
}

func TestValidateGridAnswer(t *testing.T) {
	s := mustAnswersSchema(t)
	doc := answersFixture()
	answers := doc["steps"].([]any)[0].(map[string]any)["answers"].(map[string]any)

	answers["2-0"] = []any{
		map[string]any{"name": "Ada", "hours": 12, "remote": false, "note": nil},
	}
	require.Nil(t, Validate(doc, s))

	// A nested object is not a legal grid cell value.
	answers["2-0"] = []any{
		map[string]any{"name": map[string]any{"first": "Ada"}},
	}
	failures := Validate(doc, s)
	require.Len(t, failures, 1)
	require.Equal(t, "steps.0.answers.2-0", failures[0].Coordinate)
}

func TestValidateStopsAtFirstFailure(t *testing.T) {
	s := mustAnswersSchema(t)
	doc := answersFixture()
	doc["active_step"] = -1
	doc["steps"].([]any)[0].(map[string]any)["answers"].(map[string]any)["0-0"] = -7

	failures := Validate(doc, s)
	require.Len(t, failures, 1)
}

func TestValidateDecodedJSONNumbers(t *testing.T) {
	s := mustAnswersSchema(t)
	raw := `{
		"schema_version": "2025.09-1",
		"active_step": 2,
		"steps": [{"is_valid": false, "answers": {"3-1": 42}}]
	}`
	var doc map[string]any
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	require.Nil(t, Validate(doc, s))

	raw = `{
		"schema_version": "2025.09-1",
		"active_step": 2,
		"steps": [{"is_valid": false, "answers": {"3-1": 4.5}}]
	}`
	doc = nil
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	failures := Validate(doc, s)
	require.Len(t, failures, 1)
	require.Equal(t, "steps.0.answers.3-1", failures[0].Coordinate)
}

func TestValidateStepStateShape(t *testing.T) {
	s := mustAnswersSchema(t)
	doc := answersFixture()
	doc["steps"].([]any)[0].(map[string]any)["is_valid"] = "yes"

	failures := Validate(doc, s)
	require.Len(t, failures, 1)
	require.Equal(t, "steps.0.is_valid", failures[0].Coordinate)
}

func TestValidateRootTypeMismatch(t *testing.T) {
	s := mustAnswersSchema(t)
	failures := Validate([]any{"not", "an", "object"}, s)
	require.Len(t, failures, 1)
	require.Equal(t, "", failures[0].Coordinate)
}
