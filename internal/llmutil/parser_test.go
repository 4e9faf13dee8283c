package llmutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSONObject(t *testing.T) {
	cases := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "fenced with json tag",
			input:    "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "fenced without tag",
			input:    "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "fence surrounded by prose",
			input:    "Here you go:\n```json\n{\"a\": 1}\n```\nHope that helps!",
			expected: `{"a": 1}`,
		},
		{
			name:     "bare object",
			input:    `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "object embedded in prose",
			input:    `Sure thing! The answer is {"a": 1} as requested.`,
			expected: `{"a": 1}`,
		},
		{
			name:     "nested object embedded in prose",
			input:    `Result: {"a": {"b": 2}, "c": 3} done.`,
			expected: `{"a": {"b": 2}, "c": 3}`,
		},
		{
			name:     "no object at all",
			input:    "I cannot comply with that request.",
			expected: "",
		},
		{
			name:     "empty input",
			input:    "",
			expected: "",
		},
		{
			name:     "unbalanced braces",
			input:    `{"a": 1`,
			expected: "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ExtractJSONObject(tc.input))
		})
	}
}

func TestParseJSONResponse(t *testing.T) {
	type payload struct {
		Status string `json:"status"`
	}

	t.Run("parses through the extraction stages", func(t *testing.T) {
		result, err := ParseJSONResponse[payload]("```json\n{\"status\": \"ok\"}\n```")
		require.NoError(t, err)
		assert.Equal(t, "ok", result.Status)
	})

	t.Run("errors when nothing extractable", func(t *testing.T) {
		_, err := ParseJSONResponse[payload]("plain refusal text")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no JSON object found")
	})

	t.Run("errors when the object does not fit the target type", func(t *testing.T) {
		_, err := ParseJSONResponse[payload](`{"status": 42}`)
		require.Error(t, err)
	})
}

func TestCleanCodeOutput(t *testing.T) {
	assert.Equal(t, `type "hi"`, CleanCodeOutput("```\ntype \"hi\"\n```"))
	assert.Equal(t, `type "hi"`, CleanCodeOutput("```bash\ntype \"hi\"\n```"))
	assert.Equal(t, `type "hi"`, CleanCodeOutput(`type "hi"`))
	assert.Equal(t, "", CleanCodeOutput("``````"))
}
