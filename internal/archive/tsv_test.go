// SPDX-License-Identifier: MIT
package archive

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscapeField(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello world", "hello world"},
		{"tab", "a\tb", `a\tb`},
		{"newline", "line1\nline2", `line1\nline2`},
		{"carriage return", "a\rb", `a\rb`},
		{"backslash", `a\b`, `a\\b`},
		{"backslash then tab", "a\\\tb", `a\\\tb`},
		{"unicode untouched", "日本語 タイトル", "日本語 タイトル"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EscapeField(tt.in))
			assert.Equal(t, tt.in, UnescapeField(tt.want), "round trip")
		})
	}
}

func TestUnescapeFieldUnknownEscape(t *testing.T) {
	assert.Equal(t, "ax", UnescapeField(`a\x`))
}

func TestWriteTableRejectsRaggedRows(t *testing.T) {
	var buf bytes.Buffer
	err := WriteTable(&buf, []string{"a", "b"}, [][]string{{"only-one"}})
	assert.Error(t, err)
}

func TestReadTableRoundTrip(t *testing.T) {
	header := []string{"title", "id"}
	rows := [][]string{
		{"has\ttab", "v1"},
		{"has\nnewline", "v2"},
		{"plain", "v3"},
	}

	payload, err := EncodeTable(header, rows)
	require.NoError(t, err)

	// One logical row per physical line even with embedded newlines.
	assert.Equal(t, 4, strings.Count(string(payload), "\n"))

	gotHeader, gotRows, err := ReadTable(bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, header, gotHeader)
	assert.Equal(t, rows, gotRows)
}

func TestReadTableShortRowsPadded(t *testing.T) {
	payload := "a\tb\tc\nx\ty\n"
	_, rows, err := ReadTable(strings.NewReader(payload))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"x", "y", ""}, rows[0])
}

func TestReadTableMissingHeader(t *testing.T) {
	_, _, err := ReadTable(strings.NewReader(""))
	assert.Error(t, err)
}
