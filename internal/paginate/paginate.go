// Package paginate splits long command output into bounded pages.
package paginate

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidPageSize is returned when the page size is below one.
	ErrInvalidPageSize = errors.New("paginate: page size must be at least 1")
	// ErrIndexOutOfRange is returned by Page for an index outside the page list.
	ErrIndexOutOfRange = errors.New("paginate: page index out of range")
)

// TruncatedSuffix marks output that was cut by Truncate.
const TruncatedSuffix = "\n... (output truncated)"

// Paginate splits text into pages of at most size runes.
// Pages break after a newline where possible; a line longer than size is cut on
// rune boundaries. Joining the pages yields text unchanged. Empty text gives a
// single empty page.
func Paginate(text string, size int) ([]string, error) {
	if size < 1 {
		return nil, ErrInvalidPageSize
	}
	if text == "" {
		return []string{""}, nil
	}

	var (
		pages []string
		cur   strings.Builder
		n     int
	)
	flush := func() {
		if cur.Len() == 0 {
			return
		}
		pages = append(pages, cur.String())
		cur.Reset()
		n = 0
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		ln := utf8.RuneCountInString(line)
		if n+ln <= size {
			cur.WriteString(line)
			n += ln
			continue
		}
		flush()
		for ln > size {
			head, tail := splitRunes(line, size)
			pages = append(pages, head)
			line = tail
			ln -= size
		}
		cur.WriteString(line)
		n = ln
	}
	flush()
	return pages, nil
}

// splitRunes cuts s after the first n runes.
func splitRunes(s string, n int) (string, string) {
	i := 0
	for n > 0 && i < len(s) {
		_, w := utf8.DecodeRuneInString(s[i:])
		i += w
		n--
	}
	return s[:i], s[i:]
}

// Page returns pages[index] or ErrIndexOutOfRange.
func Page(pages []string, index int) (string, error) {
	if index < 0 || index >= len(pages) {
		return "", fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, index, len(pages))
	}
	return pages[index], nil
}

// Truncate limits text to max runes, appending TruncatedSuffix when it cuts.
// The suffix is not counted against max.
func Truncate(text string, max int) string {
	if max < 1 || utf8.RuneCountInString(text) <= max {
		return text
	}
	head, _ := splitRunes(text, max)
	return head + TruncatedSuffix
}

// View locates one page within a paginated output.
type View struct {
	Index int
	Total int
}

// Label renders the one-based position, e.g. "Page 2/5".
func (v View) Label() string {
	return fmt.Sprintf("Page %d/%d", v.Index+1, v.Total)
}

// HasPrev reports whether a previous page exists.
func (v View) HasPrev() bool { return v.Index > 0 }

// HasNext reports whether a following page exists.
func (v View) HasNext() bool { return v.Index+1 < v.Total }
