package constants

import "strings"

// AllowedExtensions holds the default allowed file extensions for scan uploads
// and directory ingestion. TXT entries are raw OCR dumps fed straight to the
// engine; the rest go through the OCR provider first.
var AllowedExtensions = map[string]struct{}{
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"webp": {},
	"txt":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsTextExt reports whether the extension denotes a pre-extracted OCR text dump.
func IsTextExt(ext string) bool {
	return NormalizeExt(ext) == "txt"
}
