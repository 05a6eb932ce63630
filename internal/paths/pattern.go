// SPDX-License-Identifier: MIT
package paths

import (
	"fmt"
	"strings"

	"github.com/con-org/annextube-sub000/internal/archive"
)

// DefaultPattern is the video directory layout used when the configuration
// does not override it.
const DefaultPattern = "{year}/{month}/{date}_{sanitized_title}"

var placeholders = map[string]bool{
	"year":            true,
	"month":           true,
	"date":            true,
	"video_id":        true,
	"sanitized_title": true,
	"channel_id":      true,
	"channel_name":    true,
}

type token struct {
	literal     string
	placeholder string
}

// Pattern is a parsed video path pattern. Parsing happens at configuration
// load time so unknown placeholders abort before any remote call.
type Pattern struct {
	raw      string
	segments [][]token
}

// Parse validates and compiles a pattern string.
func Parse(raw string) (*Pattern, error) {
	if raw == "" {
		raw = DefaultPattern
	}
	if strings.Contains(raw, "\\") {
		return nil, fmt.Errorf("pattern %q: backslashes are not allowed", raw)
	}

	p := &Pattern{raw: raw}
	for _, seg := range strings.Split(raw, "/") {
		if seg == "" {
			return nil, fmt.Errorf("pattern %q: empty path segment", raw)
		}
		tokens, err := parseSegment(seg)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", raw, err)
		}
		p.segments = append(p.segments, tokens)
	}
	return p, nil
}

func parseSegment(seg string) ([]token, error) {
	var tokens []token
	rest := seg
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		if open < 0 {
			tokens = append(tokens, token{literal: rest})
			break
		}
		if open > 0 {
			tokens = append(tokens, token{literal: rest[:open]})
		}
		closing := strings.IndexByte(rest[open:], '}')
		if closing < 0 {
			return nil, fmt.Errorf("unterminated placeholder in %q", seg)
		}
		name := rest[open+1 : open+closing]
		if !placeholders[name] {
			return nil, fmt.Errorf("unknown placeholder {%s}", name)
		}
		tokens = append(tokens, token{placeholder: name})
		rest = rest[open+closing+1:]
	}
	return tokens, nil
}

// String returns the original pattern text.
func (p *Pattern) String() string { return p.raw }

// Uses reports whether the pattern references the named placeholder.
// The path reconciler consults this to decide whether index rows carry
// enough to re-expand or the full metadata record is needed.
func (p *Pattern) Uses(name string) bool {
	for _, tokens := range p.segments {
		for _, tk := range tokens {
			if tk.placeholder == name {
				return true
			}
		}
	}
	return false
}

// Expand computes the relative directory (under videos/) for one video.
// Unknown publication instants expand to zero tokens so placeholder records
// still get a deterministic home.
func (p *Pattern) Expand(v *archive.Video) (string, error) {
	var segs []string
	for _, tokens := range p.segments {
		var b strings.Builder
		for _, tk := range tokens {
			if tk.placeholder == "" {
				b.WriteString(tk.literal)
				continue
			}
			val, err := expandPlaceholder(tk.placeholder, v)
			if err != nil {
				return "", err
			}
			b.WriteString(val)
		}
		seg := b.String()
		if seg == "" || seg == "." || seg == ".." {
			return "", fmt.Errorf("pattern %q expands to unsafe segment %q for video %s", p.raw, seg, v.VideoID)
		}
		segs = append(segs, truncateUTF8(seg, 255))
	}
	return strings.Join(segs, "/"), nil
}

func expandPlaceholder(name string, v *archive.Video) (string, error) {
	switch name {
	case "year":
		if v.Published.IsZero() {
			return "0000", nil
		}
		return v.Published.UTC().Format("2006"), nil
	case "month":
		if v.Published.IsZero() {
			return "00", nil
		}
		return v.Published.UTC().Format("01"), nil
	case "date":
		if v.Published.IsZero() {
			return "0000-00-00", nil
		}
		return v.Published.UTC().Format("2006-01-02"), nil
	case "video_id":
		if err := archive.ValidateVideoID(v.VideoID); err != nil {
			return "", err
		}
		return v.VideoID, nil
	case "sanitized_title":
		if s := Sanitize(v.Title); s != "" {
			return s, nil
		}
		return v.VideoID, nil
	case "channel_id":
		if s := Sanitize(v.ChannelID); s != "" {
			return s, nil
		}
		return "unknown-channel", nil
	case "channel_name":
		if s := Sanitize(v.ChannelName); s != "" {
			return s, nil
		}
		return "unknown-channel", nil
	default:
		return "", fmt.Errorf("unknown placeholder {%s}", name)
	}
}
