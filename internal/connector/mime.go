package connector

import (
	"mime"
	"path/filepath"
	"strings"
)

// MIME values with protocol meaning.
const (
	MimeDirectory   = "directory"
	MimeUnknown     = "unknown"
	MimeBrokenLink  = "symlink-broken"
	mimeTextPlain   = "text/plain"
	mimeMSOfficeGen = "application/vnd.ms-office"
)

// extraMimeTypes fills gaps in the system table and corrects known-wrong
// guesses.
var extraMimeTypes = map[string]string{
	"txt":  "text/plain",
	"conf": "text/plain",
	"ini":  "text/plain",
	"php":  "text/x-php",
	"html": "text/html",
	"htm":  "text/html",
	"js":   "text/javascript",
	"css":  "text/css",
	"rtf":  "text/rtf",
	"rtfd": "text/rtfd",
	"py":   "text/x-python",
	"java": "text/x-java-source",
	"rb":   "text/x-ruby",
	"sh":   "text/x-shellscript",
	"pl":   "text/x-perl",
	"sql":  "text/x-sql",
	"doc":  "application/msword",
	"ogg":  "application/ogg",
	"7z":   "application/x-7z-compressed",
	"ogm":  "application/ogm",
	"mkv":  "video/x-matroska",
}

// plainTextNames are extension-less files that are always text.
var plainTextNames = map[string]bool{
	"README":    true,
	"ChangeLog": true,
}

// mimeType guesses the MIME type of path from its name alone.
func mimeType(path string) string {
	dotExt := filepath.Ext(path)
	ext := strings.ToLower(strings.TrimPrefix(dotExt, "."))

	typ := MimeUnknown
	if dotExt != "" {
		if t := mime.TypeByExtension(strings.ToLower(dotExt)); t != "" {
			if mt, _, err := mime.ParseMediaType(t); err == nil {
				typ = mt
			}
		}
	}

	switch {
	case typ == mimeTextPlain && ext == "pl":
		typ = extraMimeTypes[ext]
	case typ == mimeMSOfficeGen && ext == "doc":
		typ = extraMimeTypes[ext]
	}

	if typ == MimeUnknown {
		if plainTextNames[filepath.Base(path)] {
			typ = mimeTextPlain
		} else if t, ok := extraMimeTypes[ext]; ok {
			typ = t
		}
	}
	return typ
}
