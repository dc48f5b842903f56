// Package files renders remote directory listings and searches remote trees.
package files

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// ErrBadPattern is returned for a glob doublestar cannot parse.
var ErrBadPattern = errors.New("invalid search pattern")

// Lister is the part of a remote connection that search needs.
type Lister interface {
	ReadDir(ctx context.Context, dir string) ([]fs.FileInfo, error)
}

var icons = map[string]string{
	".py": "🐍", ".go": "🐹", ".js": "📜", ".html": "🌐", ".css": "🎨",
	".json": "📋", ".xml": "📋", ".yaml": "📋", ".yml": "📋",
	".txt": "📄", ".md": "📝", ".pdf": "📕",
	".doc": "📘", ".docx": "📘", ".xls": "📗", ".xlsx": "📗",
	".zip": "📦", ".tar": "📦", ".gz": "📦", ".tgz": "📦",
	".jpg": "🖼", ".jpeg": "🖼", ".png": "🖼", ".gif": "🖼",
	".mp4": "🎬", ".mp3": "🎵", ".wav": "🎵",
	".sh": "⚙", ".conf": "⚙", ".cfg": "⚙", ".ini": "⚙",
	".log": "📊",
}

// Icon picks an emoji for a directory entry.
func Icon(info fs.FileInfo) string {
	switch {
	case info.IsDir():
		return "📁"
	case info.Mode()&fs.ModeSymlink != 0:
		return "🔗"
	}
	if icon, ok := icons[strings.ToLower(path.Ext(info.Name()))]; ok {
		return icon
	}
	return "📄"
}

// SortEntries orders directories first, then by name.
func SortEntries(entries []fs.FileInfo) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return entries[i].Name() < entries[j].Name()
	})
}

// RenderListing formats dir's entries as an aligned table.
func RenderListing(dir string, entries []fs.FileInfo) string {
	SortEntries(entries)
	var b strings.Builder
	fmt.Fprintf(&b, "📂 %s (%d items)\n\n", dir, len(entries))
	if len(entries) == 0 {
		b.WriteString("(empty directory)\n")
		return b.String()
	}

	dirs, regular := 0, 0
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		size := "-"
		if e.IsDir() {
			dirs++
		} else {
			regular++
			size = humanize.IBytes(uint64(e.Size()))
		}
		rows = append(rows, []string{
			Icon(e) + " " + e.Name(),
			size,
			e.Mode().String(),
			e.ModTime().UTC().Format(time.DateTime),
		})
	}

	t := tablewriter.NewWriter(&b)
	t.SetHeader([]string{"Name", "Size", "Mode", "Modified"})
	t.SetAutoFormatHeaders(false)
	t.SetAutoWrapText(false)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetColumnSeparator("")
	t.SetCenterSeparator("")
	t.SetRowSeparator("")
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.AppendBulk(rows)
	t.Render()

	fmt.Fprintf(&b, "\n%d directories, %d files\n", dirs, regular)
	return b.String()
}

// Resolve turns user input into an absolute remote path. "~" refers to home.
func Resolve(cwd, home, p string) string {
	p = strings.TrimSpace(p)
	switch {
	case p == "" || p == ".":
		return cwd
	case p == "~":
		return home
	case strings.HasPrefix(p, "~/"):
		return path.Join(home, p[2:])
	case path.IsAbs(p):
		return path.Clean(p)
	default:
		return path.Join(cwd, p)
	}
}

// ValidName checks a single path argument typed by the user.
func ValidName(p string) error {
	p = strings.TrimSpace(p)
	if p == "" {
		return errors.New("path must not be empty")
	}
	if strings.ContainsAny(p, "\x00\n\r") {
		return errors.New("path must not contain control characters")
	}
	if len(p) > 4096 {
		return errors.New("path is too long")
	}
	return nil
}

// SearchOptions bounds a tree walk.
type SearchOptions struct {
	MaxResults int
	MaxDepth   int
	MaxDirs    int
}

func (o SearchOptions) withDefaults() SearchOptions {
	if o.MaxResults <= 0 {
		o.MaxResults = 50
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 8
	}
	if o.MaxDirs <= 0 {
		o.MaxDirs = 500
	}
	return o
}

// SearchResult lists matches relative to the search root; directories end in "/".
type SearchResult struct {
	Root        string
	Pattern     string
	Matches     []string
	Truncated   bool
	DirsScanned int
}

// Search walks root breadth first. A pattern without "/" matches base names at
// any depth; otherwise it matches the path relative to root.
func Search(ctx context.Context, l Lister, root, pattern string, opts SearchOptions) (SearchResult, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" || !doublestar.ValidatePattern(pattern) {
		return SearchResult{}, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}
	opts = opts.withDefaults()
	byName := !strings.Contains(pattern, "/")
	res := SearchResult{Root: root, Pattern: pattern}

	type item struct {
		dir   string
		rel   string
		depth int
	}
	queue := []item{{dir: root}}
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		cur := queue[0]
		queue = queue[1:]
		if res.DirsScanned >= opts.MaxDirs {
			res.Truncated = true
			break
		}
		entries, err := l.ReadDir(ctx, cur.dir)
		res.DirsScanned++
		if err != nil {
			if cur.dir == root {
				return res, err
			}
			continue
		}
		SortEntries(entries)
		for _, e := range entries {
			rel := path.Join(cur.rel, e.Name())
			subject := rel
			if byName {
				subject = e.Name()
			}
			if ok, _ := doublestar.Match(pattern, subject); ok {
				if len(res.Matches) >= opts.MaxResults {
					res.Truncated = true
					return res, nil
				}
				if e.IsDir() {
					res.Matches = append(res.Matches, rel+"/")
				} else {
					res.Matches = append(res.Matches, rel)
				}
			}
			if e.IsDir() && e.Mode()&fs.ModeSymlink == 0 && cur.depth+1 < opts.MaxDepth {
				queue = append(queue, item{dir: path.Join(cur.dir, e.Name()), rel: rel, depth: cur.depth + 1})
			}
		}
	}
	return res, nil
}

// Render formats a search result for display.
func (r SearchResult) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔍 %q in %s\n\n", r.Pattern, r.Root)
	if len(r.Matches) == 0 {
		b.WriteString("No matches.\n")
	}
	for _, m := range r.Matches {
		b.WriteString(m)
		b.WriteByte('\n')
	}
	if r.Truncated {
		b.WriteString("\n… more results omitted, narrow the pattern\n")
	}
	return b.String()
}
