// SPDX-License-Identifier: MIT
package archive

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// The TSV dialect: UTF-8, one header line, LF endings, literal tabs,
// newlines, carriage returns and backslashes inside fields escaped as \t,
// \n, \r, \\. Fields are never quoted; encoding/csv's RFC-4180 quoting is
// deliberately not this format.

// EscapeField renders one field for a TSV cell.
func EscapeField(s string) string {
	if !strings.ContainsAny(s, "\\\t\n\r") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\t':
			b.WriteString(`\t`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// UnescapeField inverts EscapeField. Unknown escapes keep the escaped
// character verbatim so foreign rows stay readable.
func UnescapeField(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	escaped := false
	for _, r := range s {
		if !escaped {
			if r == '\\' {
				escaped = true
				continue
			}
			b.WriteRune(r)
			continue
		}
		switch r {
		case 't':
			b.WriteRune('\t')
		case 'n':
			b.WriteRune('\n')
		case 'r':
			b.WriteRune('\r')
		case '\\':
			b.WriteRune('\\')
		default:
			b.WriteRune(r)
		}
		escaped = false
	}
	return b.String()
}

// WriteTable emits a header line followed by rows. Every row must have
// exactly len(header) fields.
func WriteTable(w io.Writer, header []string, rows [][]string) error {
	bw := bufio.NewWriter(w)
	if err := writeRow(bw, header); err != nil {
		return err
	}
	for i, row := range rows {
		if len(row) != len(header) {
			return fmt.Errorf("tsv row %d has %d fields, header has %d", i, len(row), len(header))
		}
		if err := writeRow(bw, row); err != nil {
			return err
		}
	}
	return bw.Flush()
}

func writeRow(w *bufio.Writer, fields []string) error {
	for i, f := range fields {
		if i > 0 {
			if err := w.WriteByte('\t'); err != nil {
				return err
			}
		}
		if _, err := w.WriteString(EscapeField(f)); err != nil {
			return err
		}
	}
	return w.WriteByte('\n')
}

// EncodeTable renders a table to bytes; the exporter hands these to the
// store's atomic writer.
func EncodeTable(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteTable(&buf, header, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReadTable parses a TSV payload into header and unescaped rows. Short rows
// are padded with empty fields; long rows error out.
func ReadTable(r io.Reader) (header []string, rows [][]string, err error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := sc.Text()
		if lineNo == 1 {
			header = splitRow(line)
			continue
		}
		if line == "" {
			continue
		}
		fields := splitRow(line)
		if len(fields) > len(header) {
			return nil, nil, fmt.Errorf("tsv line %d has %d fields, header has %d", lineNo, len(fields), len(header))
		}
		for len(fields) < len(header) {
			fields = append(fields, "")
		}
		rows = append(rows, fields)
	}
	if err := sc.Err(); err != nil {
		return nil, nil, fmt.Errorf("read tsv: %w", err)
	}
	if header == nil {
		return nil, nil, fmt.Errorf("read tsv: missing header line")
	}
	return header, rows, nil
}

func splitRow(line string) []string {
	raw := strings.Split(line, "\t")
	fields := make([]string, len(raw))
	for i, f := range raw {
		fields[i] = UnescapeField(f)
	}
	return fields
}
