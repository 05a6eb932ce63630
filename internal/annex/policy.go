// SPDX-License-Identifier: MIT

package annex

import (
	"path"
	"strings"

	"github.com/con-org/annextube-sub000/internal/archive"
)

// Policy decides which paths live as plain git blobs and which go to
// the annex. The same rules are rendered into .gitattributes at init
// time, so the policy written to disk and the one used for in-process
// routing cannot drift.
type Policy struct {
	// AnnexVTT routes caption files into the annex instead of git.
	AnnexVTT bool
}

// Direct reports whether relPath is stored as a regular git blob.
func (p Policy) Direct(relPath string) bool {
	rel := path.Clean(strings.ReplaceAll(relPath, "\\", "/"))
	if rel == ".gitattributes" {
		return true
	}
	if rel == archive.ConfigDir || strings.HasPrefix(rel, archive.ConfigDir+"/") {
		return true
	}

	base := path.Base(rel)
	switch base {
	case archive.MetadataFile, archive.PlaylistFile:
		return true
	}

	switch path.Ext(base) {
	case ".tsv", ".md", ".toml":
		return true
	case ".vtt":
		return !p.AnnexVTT
	}
	return false
}

// Attributes renders the policy as .gitattributes content. The leading
// catch-all sends everything to the annex; the lines after it opt the
// direct formats back out. comments.json is deliberately absent so
// large comment dumps stay annexed.
func (p Policy) Attributes() string {
	var b strings.Builder
	b.WriteString("* annex.largefiles=anything\n")
	b.WriteString("*.tsv annex.largefiles=nothing\n")
	b.WriteString("*.md annex.largefiles=nothing\n")
	b.WriteString("*.toml annex.largefiles=nothing\n")
	if !p.AnnexVTT {
		b.WriteString("*.vtt annex.largefiles=nothing\n")
	}
	b.WriteString(archive.MetadataFile + " annex.largefiles=nothing\n")
	b.WriteString(archive.PlaylistFile + " annex.largefiles=nothing\n")
	b.WriteString(".gitattributes annex.largefiles=nothing\n")
	b.WriteString(archive.ConfigDir + "/** annex.largefiles=nothing\n")
	return b.String()
}
