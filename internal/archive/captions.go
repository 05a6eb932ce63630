// SPDX-License-Identifier: MIT
package archive

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// CaptionsHeader is the per-video captions.tsv contract.
var CaptionsHeader = []string{"language", "auto_generated", "path", "fetched_at"}

// CaptionTrack is one row of a video's captions.tsv manifest. Path is
// relative to the video directory.
type CaptionTrack struct {
	Language      string
	AutoGenerated bool
	Path          string
	FetchedAt     time.Time
}

// EncodeCaptions renders captions.tsv sorted by language code.
func EncodeCaptions(tracks []CaptionTrack) ([]byte, error) {
	sorted := make([]CaptionTrack, len(tracks))
	copy(sorted, tracks)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Language != sorted[j].Language {
			return sorted[i].Language < sorted[j].Language
		}
		return !sorted[i].AutoGenerated && sorted[j].AutoGenerated
	})
	raw := make([][]string, len(sorted))
	for i, tr := range sorted {
		raw[i] = []string{
			tr.Language,
			strconv.FormatBool(tr.AutoGenerated),
			tr.Path,
			formatInstant(tr.FetchedAt),
		}
	}
	return EncodeTable(CaptionsHeader, raw)
}

// DecodeCaptions parses captions.tsv.
func DecodeCaptions(data []byte) ([]CaptionTrack, error) {
	header, raw, err := ReadTable(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	if err := checkHeader("captions.tsv", header, CaptionsHeader); err != nil {
		return nil, err
	}
	tracks := make([]CaptionTrack, 0, len(raw))
	for i, f := range raw {
		auto, err := strconv.ParseBool(f[1])
		if err != nil {
			return nil, fmt.Errorf("captions.tsv row %d: bad auto_generated %q", i+1, f[1])
		}
		fetched, err := parseInstant(f[3])
		if err != nil {
			return nil, fmt.Errorf("captions.tsv row %d: %w", i+1, err)
		}
		tracks = append(tracks, CaptionTrack{
			Language:      f[0],
			AutoGenerated: auto,
			Path:          f[2],
			FetchedAt:     fetched,
		})
	}
	return tracks, nil
}

// NormalizedCaptionsEqual reports whether two captions.tsv payloads differ
// only in the fetched_at column.
func NormalizedCaptionsEqual(old, new []byte) bool {
	a, errA := DecodeCaptions(old)
	b, errB := DecodeCaptions(new)
	if errA != nil || errB != nil {
		return bytes.Equal(old, new)
	}
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		a[i].FetchedAt = time.Time{}
		b[i].FetchedAt = time.Time{}
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
