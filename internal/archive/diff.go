// SPDX-License-Identifier: MIT
package archive

import (
	"bytes"
	"path"
)

// ContentEqual decides whether two versions of a tracked file are the same
// modulo timestamp provenance. The store's commit filter uses it to suppress
// commits whose staged diff carries no real change.
func ContentEqual(relPath string, old, new []byte) bool {
	switch path.Base(relPath) {
	case MetadataFile:
		return NormalizedMetadataEqual(old, new)
	case PlaylistFile:
		return NormalizedPlaylistEqual(old, new)
	case CaptionsManifest:
		return NormalizedCaptionsEqual(old, new)
	default:
		return bytes.Equal(old, new)
	}
}
