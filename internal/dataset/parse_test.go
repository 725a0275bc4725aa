package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	data := "\ufeffquestion,expected_answer,generated_answer\n" +
		"What is 2+2?,4,four\n" +
		"\"Capital of France, please\",Paris,Paris\n"

	p, err := Parse("csv", strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, "csv", p.Format)
	assert.Equal(t, []string{"question", "expected_answer", "generated_answer"}, p.Columns)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, "Capital of France, please", p.Rows[1]["question"])
	assert.Equal(t, "4", p.Rows[0]["expected_answer"])
}

func TestParseCSVShortRows(t *testing.T) {
	p, err := Parse("CSV", strings.NewReader("prompt,reference\nhello\n"))
	require.NoError(t, err)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, "hello", p.Rows[0]["prompt"])
	_, ok := p.Rows[0]["reference"]
	assert.False(t, ok)
}

func TestParseJSONArray(t *testing.T) {
	data := `[{"query":"q1","context":["a","b"],"expected_answer":"x"},{"query":"q2","score":3}]`

	p, err := Parse("json", strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"context", "expected_answer", "query", "score"}, p.Columns)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, `["a","b"]`, p.Rows[0]["context"])
	assert.Equal(t, "3", p.Rows[1]["score"])
}

func TestParseJSONL(t *testing.T) {
	data := "{\"text\":\"hello\",\"label\":\"greeting\"}\n\n{\"text\":\"bye\",\"label\":null}\n"

	p, err := Parse("jsonl", strings.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, []string{"label", "text"}, p.Columns)
	require.Len(t, p.Rows, 2)
	assert.Equal(t, "", p.Rows[1]["label"])
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("xlsx", strings.NewReader("a"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Parse("csv", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = Parse("json", strings.NewReader("[]"))
	assert.ErrorIs(t, err, ErrEmptyDataset)

	_, err = Parse("jsonl", strings.NewReader("{not json}\n"))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestFormatFromFilename(t *testing.T) {
	assert.Equal(t, "csv", FormatFromFilename("qa.CSV"))
	assert.Equal(t, "jsonl", FormatFromFilename("rows.ndjson"))
	assert.Equal(t, "json", FormatFromFilename("set.json"))
	assert.Equal(t, "", FormatFromFilename("notes.txt"))
}
