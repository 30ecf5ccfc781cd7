package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

var (
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	unsafeChars  = regexp.MustCompile(`["\\/:*?<>|;]`)
)

// MaxFilenameLength bounds sanitized names, in bytes
const MaxFilenameLength = 200

// SanitizeFilename reduces a client supplied file name to a safe base name.
// Directory parts, control characters and characters that break headers or
// file systems are removed. The extension survives truncation.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base("/" + name)
	name = controlChars.ReplaceAllString(name, "")
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.TrimSpace(name)

	if name == "" || name == "." || name == ".." || name == "/" {
		return "upload"
	}

	if len(name) > MaxFilenameLength {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = truncateUTF8(strings.TrimSuffix(name, ext), MaxFilenameLength-len(ext)) + ext
	}
	return name
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
