// Package monitor runs read-only system queries on a remote host.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/sshbot/internal/remote"
)

// ErrUnknownReport is returned for a report name missing from the catalogue.
var ErrUnknownReport = errors.New("unknown monitor report")

// Executor is satisfied by remote.Conn.
type Executor interface {
	Execute(ctx context.Context, cmd remote.Command) (remote.Result, error)
}

// Query is one command whose trimmed stdout fills a labelled line.
type Query struct {
	Label string
	Line  string
}

// Report groups queries under a title. Block reports print raw output.
type Report struct {
	Name    string
	Title   string
	Block   bool
	Queries []Query
}

const notAvailable = "N/A"

var reports = []Report{
	{
		Name:  "system",
		Title: "🖥 System information",
		Queries: []Query{
			{Label: "Hostname", Line: "hostname"},
			{Label: "OS", Line: `grep PRETTY_NAME /etc/os-release | cut -d= -f2 | tr -d '"'`},
			{Label: "Kernel", Line: "uname -r"},
			{Label: "Uptime", Line: "uptime -p"},
			{Label: "Users", Line: "who | wc -l"},
		},
	},
	{
		Name:  "resources",
		Title: "📊 Resource usage",
		Queries: []Query{
			{Label: "CPU", Line: `top -bn1 | grep 'Cpu(s)' | sed 's/.*, *\([0-9.]*\)%* id.*/\1/' | awk '{print 100 - $1 "%"}'`},
			{Label: "Memory", Line: `free -h | awk '/^Mem:/ {print $3 " / " $2}'`},
			{Label: "Disk (/)", Line: `df -h / | awk 'NR==2 {print $3 " / " $2 " (" $5 ")"}'`},
			{Label: "Load", Line: `uptime | awk -F'load average:' '{print $2}'`},
		},
	},
	{
		Name:    "processes",
		Title:   "⚙ Top processes by CPU",
		Block:   true,
		Queries: []Query{{Line: "ps aux --sort=-%cpu | head -n 11"}},
	},
	{
		Name:    "disk",
		Title:   "💾 Disk usage",
		Block:   true,
		Queries: []Query{{Line: "df -h | grep -v tmpfs"}},
	},
	{
		Name:  "network",
		Title: "🌐 Network interfaces",
		Block: true,
		Queries: []Query{
			{Line: "ip -br addr show | grep -v '^lo'"},
			{Label: "Public IP", Line: "curl -s --max-time 5 ifconfig.me || wget -qO- -T 5 ifconfig.me"},
		},
	},
	{
		Name:    "ports",
		Title:   "🔌 Listening ports",
		Block:   true,
		Queries: []Query{{Line: "ss -tuln | grep LISTEN | head -n 20"}},
	},
}

// Reports returns the catalogue in menu order.
func Reports() []Report {
	return append([]Report(nil), reports...)
}

// Lookup finds a report by name.
func Lookup(name string) (Report, bool) {
	for _, r := range reports {
		if r.Name == name {
			return r, true
		}
	}
	return Report{}, false
}

// Run executes every query of the named report in dir, at most limit at a
// time, and renders the result. A failing query shows N/A; a transport failure
// aborts the report.
func Run(ctx context.Context, exec Executor, name, dir string, limit int) (string, error) {
	report, ok := Lookup(name)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownReport, name)
	}
	if limit < 1 {
		limit = 1
	}

	out := make([]string, len(report.Queries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, p := range report.Queries {
		g.Go(func() error {
			res, err := exec.Execute(gctx, remote.Command{Dir: dir, Line: p.Line})
			switch {
			case err != nil && remote.Transport(err):
				return err
			case err != nil, res.ExitCode != 0:
				out[i] = notAvailable
			default:
				out[i] = strings.TrimSpace(res.Stdout)
				if out[i] == "" {
					out[i] = notAvailable
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return render(report, out), nil
}

func render(r Report, out []string) string {
	var b strings.Builder
	b.WriteString(r.Title)
	b.WriteString("\n\n")
	for i, p := range r.Queries {
		switch {
		case r.Block && p.Label == "":
			b.WriteString(out[i])
			b.WriteByte('\n')
		case r.Block && out[i] == notAvailable:
			// optional extras are omitted from block reports
		default:
			fmt.Fprintf(&b, "%s: %s\n", p.Label, out[i])
		}
	}
	return b.String()
}
