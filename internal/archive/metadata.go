// SPDX-License-Identifier: MIT
package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

// metadata.json is serialized as a single JSON object with alphabetically
// sorted keys and two-space indentation. That makes parse→write round-trips
// byte-identical and keeps diffs stable across runs.

var knownMetadataKeys = metadataKeys()

func metadataKeys() map[string]bool {
	keys := make(map[string]bool)
	t := reflect.TypeOf(Video{})
	for i := 0; i < t.NumField(); i++ {
		tag := t.Field(i).Tag.Get("json")
		if tag == "" || tag == "-" {
			continue
		}
		if idx := bytes.IndexByte([]byte(tag), ','); idx >= 0 {
			tag = tag[:idx]
		}
		keys[tag] = true
	}
	return keys
}

// EncodeMetadata renders v as the canonical metadata.json bytes. Unknown
// fields captured by a previous decode are carried through; known fields
// always win on collision.
func EncodeMetadata(v *Video) ([]byte, error) {
	v.Normalize()

	known, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode metadata for %s: %w", v.VideoID, err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(known, &m); err != nil {
		return nil, fmt.Errorf("encode metadata for %s: %w", v.VideoID, err)
	}
	for k, u := range v.Unknown {
		if knownMetadataKeys[k] {
			continue
		}
		raw, err := json.Marshal(u)
		if err != nil {
			return nil, fmt.Errorf("encode metadata field %q for %s: %w", k, v.VideoID, err)
		}
		m[k] = raw
	}
	if v.Published.IsZero() {
		m["published"] = json.RawMessage("null")
	}

	out, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata for %s: %w", v.VideoID, err)
	}
	return append(out, '\n'), nil
}

// DecodeMetadata parses metadata.json bytes. Fields this version does not
// know about are preserved in Video.Unknown for the next write.
func DecodeMetadata(data []byte) (*Video, error) {
	var v Video
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	for k, raw := range m {
		if knownMetadataKeys[k] {
			continue
		}
		var u any
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&u); err != nil {
			return nil, fmt.Errorf("decode metadata field %q: %w", k, err)
		}
		if v.Unknown == nil {
			v.Unknown = make(map[string]any)
		}
		v.Unknown[k] = u
	}
	return &v, nil
}

// ContentChanged compares two video records ignoring provenance timestamps
// and foreign fields. It drives the fetch-but-nothing-changed short circuit.
func ContentChanged(old, new *Video) bool {
	if old == nil || new == nil {
		return old != new
	}
	o, n := *old, *new
	o.Normalize()
	n.Normalize()
	return !cmp.Equal(o, n,
		cmpopts.IgnoreFields(Video{}, "FirstFetched", "UpdatedAt", "Unknown"),
		cmpopts.EquateEmpty(),
	)
}

// NormalizedMetadataEqual reports whether two metadata.json payloads differ
// only in timestamp provenance fields. Malformed input counts as a real
// change so the commit is never suppressed by a parse bug.
func NormalizedMetadataEqual(old, new []byte) bool {
	return normalizedJSONEqual(old, new, TimestampFields)
}

// NormalizedPlaylistEqual is the same filter for playlist.json payloads.
func NormalizedPlaylistEqual(old, new []byte) bool {
	return normalizedJSONEqual(old, new, TimestampFields)
}

func normalizedJSONEqual(old, new []byte, drop []string) bool {
	a, okA := decodeLoose(old)
	b, okB := decodeLoose(new)
	if !okA || !okB {
		return bytes.Equal(old, new)
	}
	for _, f := range drop {
		delete(a, f)
		delete(b, f)
	}
	return cmp.Equal(a, b)
}

func decodeLoose(data []byte) (map[string]any, bool) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, false
	}
	return m, true
}
