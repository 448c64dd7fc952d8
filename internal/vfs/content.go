package vfs

import (
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// DefaultMaxFileSize bounds a single file's content
const DefaultMaxFileSize int64 = 100 << 20

// detectMime picks the content type stored on a written file.
// JSON and SVG are named by extension; everything else is sniffed.
func detectMime(path string, content []byte) string {
	switch {
	case strings.HasSuffix(path, ".json"):
		return "application/json"
	case strings.HasSuffix(path, ".svg"):
		return "image/svg+xml"
	}
	return mimetype.Detect(content).String()
}
