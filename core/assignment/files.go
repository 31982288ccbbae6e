package assignment

import (
	"context"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"
)

var (
	filenameStripRegex = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

	windowsDeviceFiles = map[string]bool{
		"CON": true, "AUX": true, "COM1": true, "COM2": true, "COM3": true, "COM4": true,
		"LPT1": true, "LPT2": true, "LPT3": true, "PRN": true, "NUL": true,
	}
)

// FileStore persists uploaded documents under slash separated keys.
type FileStore interface {
	Save(ctx context.Context, key string, content io.Reader) error
}

// SecureFilename returns a version of filename that is safe to use as a single path component.
// Non-ASCII characters are decomposed then dropped, path separators and whitespace become
// underscores and anything outside [A-Za-z0-9_.-] is removed. The result may be empty.
func SecureFilename(filename string) string {
	decomposed := norm.NFKD.String(filename)

	var b strings.Builder
	for _, r := range decomposed {
		if r <= unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	filename = b.String()

	filename = strings.NewReplacer("/", " ", `\`, " ").Replace(filename)
	filename = strings.Join(strings.Fields(filename), "_")
	filename = filenameStripRegex.ReplaceAllString(filename, "")
	filename = strings.Trim(filename, "._")

	if filename != "" && windowsDeviceFiles[strings.ToUpper(strings.SplitN(filename, ".", 2)[0])] {
		filename = "_" + filename
	}
	return filename
}

// Ext returns the lower-cased extension of filename, after its last dot, or "" if it has none.
func Ext(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

// AllowedFile reports whether the extension of filename is one of allowed (lower-cased, without dot).
func AllowedFile(filename string, allowed []string) bool {
	ext := Ext(filename)
	if ext == "" {
		return false
	}
	for _, a := range allowed {
		if ext == a {
			return true
		}
	}
	return false
}

// ComposeDeadline combines the date of date (2006-01-02) with the hour and minute of clock (15:04), in UTC.
func ComposeDeadline(date, clock string) (time.Time, error) {
	d, err := time.ParseInLocation(DateLayout, date, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing deadline date")
	}
	t, err := time.ParseInLocation(TimeLayout, clock, time.UTC)
	if err != nil {
		return time.Time{}, errors.Wrap(err, "parsing deadline time")
	}
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour(), t.Minute(), 0, 0, time.UTC), nil
}

// documentKey is where the document of assignment aid of course cid is stored.
func documentKey(cid, aid, filename string) string {
	return path.Join(cid, aid, filename)
}

// submissionKey is where the work of a student on an assignment is stored.
func submissionKey(cid, aid, schoolID, filename string) string {
	return path.Join(cid, "submissions", aid, schoolID+"_"+filename)
}

// publicPath is the URL path a stored document is served from.
func publicPath(urlPrefix, key string) string {
	return strings.TrimSuffix(urlPrefix, "/") + "/" + key
}
