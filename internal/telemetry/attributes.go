// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used across annextube spans.
const (
	// Run attributes
	AttrRunID   = "run.id"
	AttrRunMode = "run.mode"

	// Source attributes
	AttrSourceURL  = "source.url"
	AttrSourceKind = "source.kind"

	// Video attributes
	AttrVideoID      = "video.id"
	AttrVideoPath    = "video.path"
	AttrVideoActions = "video.actions"

	// Playlist attributes
	AttrPlaylistID = "playlist.id"

	// Remote API attributes
	AttrRemoteEndpoint = "remote.endpoint"
	AttrRemoteAttempt  = "remote.attempt"

	// Store attributes
	AttrStoreOperation = "store.operation"
	AttrStorePath      = "store.path"

	// Error attributes
	AttrErrorType    = "error.type"
	AttrErrorMessage = "error.message"
)

// RunAttributes returns span attributes for a pipeline run.
func RunAttributes(runID, mode string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRunID, runID),
		attribute.String(AttrRunMode, mode),
	}
}

// SourceAttributes returns span attributes for one archival source.
func SourceAttributes(url, kind string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrSourceURL, url),
		attribute.String(AttrSourceKind, kind),
	}
}

// VideoAttributes returns span attributes for per-video processing.
func VideoAttributes(videoID, path string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrVideoID, videoID),
	}
	if path != "" {
		attrs = append(attrs, attribute.String(AttrVideoPath, path))
	}
	return attrs
}

// RemoteAttributes returns span attributes for a remote API call.
func RemoteAttributes(endpoint string, attempt int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRemoteEndpoint, endpoint),
		attribute.Int(AttrRemoteAttempt, attempt),
	}
}

// StoreAttributes returns span attributes for a repository store operation.
func StoreAttributes(op, path string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrStoreOperation, op),
		attribute.String(AttrStorePath, path),
	}
}

// ErrorAttributes returns span attributes describing an error.
func ErrorAttributes(errType, message string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrErrorType, errType),
		attribute.String(AttrErrorMessage, message),
	}
}
