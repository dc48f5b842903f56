package sessionstore

import (
	"io"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
)

// WriteTable renders records for operators. Credentials are never printed;
// the Restorable column only says whether a sealed one exists.
func WriteTable(w io.Writer, records []Record, now time.Time) {
	t := tablewriter.NewWriter(w)
	t.SetHeader([]string{"User", "Target", "Auth", "CWD", "Connected", "Last activity", "Restorable"})
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

	for _, r := range records {
		restorable := "no"
		if len(r.SealedCredential) > 0 {
			restorable = "yes"
		}
		t.Append([]string{
			strconv.FormatInt(r.UserID, 10),
			r.Username + "@" + r.Host + ":" + strconv.Itoa(r.Port),
			r.AuthMethod,
			r.RemoteCWD,
			humanize.RelTime(r.ConnectedAt, now, "ago", "from now"),
			humanize.RelTime(r.LastActivity, now, "ago", "from now"),
			restorable,
		})
	}
	t.Render()
}
