// Package storage names and creates files in the download directory.
package storage

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// Sanitize maps an arbitrary name onto [A-Za-z0-9._-]+ with no leading or
// trailing dots/underscores. Never returns an empty string.
func Sanitize(name string) string {
	name = unsafeChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, "._")
	if name == "" {
		return "file"
	}
	return name
}

// DeriveName picks the output filename: the explicit name if given, else
// the basename of the URL path, else a timestamp fallback. The result is
// sanitized.
func DeriveName(explicit, urlPath string, now time.Time) string {
	name := strings.TrimSpace(explicit)
	if name == "" {
		base := path.Base(urlPath)
		if base != "/" && base != "." {
			name = base
		}
	}
	if name == "" {
		name = "download_" + now.Format("20060102_150405")
	}
	return Sanitize(name)
}

// CreateUnique opens a new file named name in dir, appending _1, _2, …
// to the stem until an unused name is found. Creation is atomic
// (O_EXCL), so two concurrent calls can never claim the same name.
// Returns the open file and the final name.
func CreateUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	for i := 0; ; i++ {
		candidate := stem + ext
		if i > 0 {
			candidate = fmt.Sprintf("%s_%d%s", stem, i, ext)
		}
		f, err := os.OpenFile(filepath.Join(dir, candidate), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return f, candidate, nil
		}
		if !os.IsExist(err) {
			return nil, "", err
		}
	}
}
