package jsonrepair

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseFencedRoundTrip(t *testing.T) {
	// A fenced valid object must decode to the same value as the unwrapped
	// string.
	inner := `{"potential_errors": [], "questions": [], "trade_requirements": []}`
	fenced := "```json\n" + inner + "\n```"

	var direct, viaFence map[string]any
	require.NoError(t, json.Unmarshal([]byte(inner), &direct))
	require.NoError(t, Parse(fenced, &viaFence))
	require.Equal(t, direct, viaFence)
}

func TestParsePlainObject(t *testing.T) {
	var out map[string]any
	require.NoError(t, Parse(`  {"a": 1}  `, &out))
	require.Equal(t, float64(1), out["a"])
}

func TestStripFenceKeepsInnerFences(t *testing.T) {
	// Markdown scopes inside string values contain fence markers themselves;
	// only the outermost fence may be removed.
	raw := "```json\n{\"scope\": \"use ``` for code blocks\"}\n```"
	var out map[string]string
	require.NoError(t, Parse(raw, &out))
	require.Equal(t, "use ``` for code blocks", out["scope"])
}

func TestRepairDefectCorpus(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"trailing comma object", `{"a": 1,}`},
		{"trailing comma array", `{"a": [1, 2,]}`},
		{"unescaped newline in string", "{\"a\": \"line one\nline two\"}"},
		{"unescaped tab in string", "{\"a\": \"col1\tcol2\"}"},
		{"unterminated final brace", `{"a": {"b": 1}`},
		{"unterminated array", `{"a": [1, 2`},
		{"unterminated string", `{"a": "oops`},
		{"dangling escape", `{"a": "oops\`},
		{"everything at once", "{\"a\": [\"x\ny\", 2,], \"b\": \"tail"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out map[string]any
			require.NoError(t, Parse(tt.in, &out), "repaired text should parse")
			require.NotEmpty(t, out)
		})
	}
}

func TestRepairPreservesValues(t *testing.T) {
	var out map[string]any
	require.NoError(t, Parse("{\"details\": \"first\nsecond\", \"cost\": \"N/A\",}", &out))
	require.Equal(t, "first\nsecond", out["details"])
	require.Equal(t, "N/A", out["cost"])
}

func TestParseFailsCleanly(t *testing.T) {
	var out map[string]any
	require.ErrorIs(t, Parse("", &out), ErrUnparseable)
	require.ErrorIs(t, Parse("the model refused to answer", &out), ErrUnparseable)
	require.ErrorIs(t, Parse("```json\n```", &out), ErrUnparseable)
}

func TestParseDoesNotFabricate(t *testing.T) {
	// Prose is not JSON; the stage must fail rather than produce a value.
	var out map[string]any
	err := Parse("Here is the analysis you asked for.", &out)
	require.Error(t, err)
	require.Empty(t, out)
}

func FuzzRepair(f *testing.F) {
	f.Add(`{"a": 1,}`)
	f.Add("{\"a\": \"x\ny\"}")
	f.Add(`{"a": [`)
	f.Add("```json\n{}\n```")
	f.Add(`{"a": "\`)
	f.Fuzz(func(t *testing.T, s string) {
		// Repair must never panic, and parseable input must stay parseable.
		repaired := Repair(StripFence(s))
		if json.Valid([]byte(s)) && !json.Valid([]byte(repaired)) {
			t.Fatalf("repair broke valid JSON: %q -> %q", s, repaired)
		}
	})
}
