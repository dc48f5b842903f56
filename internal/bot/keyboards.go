package bot

import (
	"strconv"

	"github.com/m3rciful/sshbot/core/telegram/keyboard"
	"github.com/m3rciful/sshbot/internal/dialog"
	"github.com/m3rciful/sshbot/internal/monitor"
	"github.com/m3rciful/sshbot/internal/paginate"

	tele "gopkg.in/telebot.v4"
)

func btn(text string, action dialog.Action, payload ...string) keyboard.InlineBtn {
	b := keyboard.InlineBtn{Text: text, Unique: string(action)}
	if len(payload) > 0 {
		b.Data = payload[0]
	}
	return b
}

var (
	backRow   = []keyboard.InlineBtn{btn("⬅️ Back", dialog.ActionMenu)}
	cancelRow = []keyboard.InlineBtn{btn("✖️ Cancel", dialog.ActionCancel)}
)

// menuRows returns the keyboard rows of m.
func menuRows(m dialog.Menu) [][]keyboard.InlineBtn {
	switch m {
	case dialog.MenuMain:
		return [][]keyboard.InlineBtn{
			{btn("🔌 Connect", dialog.ActionConnect)},
			{btn("📊 Status", dialog.ActionStatus), btn("❓ Help", dialog.ActionHelp)},
		}
	case dialog.MenuAuthMethod:
		return [][]keyboard.InlineBtn{
			{btn("🔑 Password", dialog.ActionAuthPassword), btn("🗝 Private key", dialog.ActionAuthKey)},
			cancelRow,
		}
	case dialog.MenuConnected:
		return [][]keyboard.InlineBtn{
			{btn("📁 Files", dialog.ActionFiles), btn("📈 Monitor", dialog.ActionMonitor), btn("⚡ Quick", dialog.ActionQuick)},
			{btn("📊 Status", dialog.ActionStatus), btn("🔌 Disconnect", dialog.ActionDisconnect)},
		}
	case dialog.MenuFiles:
		rows := keyboard.Chunk([]keyboard.InlineBtn{
			btn("📂 Browse", dialog.ActionBrowse),
			btn("📍 Where am I", dialog.ActionPwd),
			btn("🏠 Home", dialog.ActionHome),
			btn("📂 Change dir", dialog.ActionCD),
			btn("📤 Upload", dialog.ActionUpload),
			btn("📥 Download", dialog.ActionDownload),
			btn("✏️ Edit", dialog.ActionEdit),
			btn("📄 New file", dialog.ActionTouch),
			btn("📁 New folder", dialog.ActionMkdir),
			btn("🔍 Search", dialog.ActionSearch),
			btn("💾 Disk usage", dialog.ActionDisk),
		}, 2)
		return append(rows, backRow)
	case dialog.MenuMonitor:
		var btns []keyboard.InlineBtn
		for _, r := range monitor.Reports() {
			btns = append(btns, btn(r.Title, dialog.ActionMonitorRun, r.Name))
		}
		return append(keyboard.Chunk(btns, 2), backRow)
	case dialog.MenuQuick:
		var btns []keyboard.InlineBtn
		for _, q := range monitor.QuickCommands() {
			btns = append(btns, btn(q.Label, dialog.ActionQuickRun, q.Name))
		}
		return append(keyboard.Chunk(btns, 3), backRow)
	case dialog.MenuCancel:
		return [][]keyboard.InlineBtn{cancelRow}
	}
	return nil
}

// pageRow holds the previous/next buttons around the current position.
func pageRow(v *paginate.View) []keyboard.InlineBtn {
	if v == nil || v.Total < 2 {
		return nil
	}
	var row []keyboard.InlineBtn
	if v.HasPrev() {
		row = append(row, btn("◀️", dialog.ActionPage, strconv.Itoa(v.Index-1)))
	}
	if v.HasNext() {
		row = append(row, btn("▶️", dialog.ActionPage, strconv.Itoa(v.Index+1)))
	}
	return row
}

// markup builds the inline keyboard of r, or nil when it has none.
func markup(r dialog.Reply) *tele.ReplyMarkup {
	rows := append([][]keyboard.InlineBtn{pageRow(r.Page)}, menuRows(r.Menu)...)
	m := keyboard.InlineButtonsRows(rows...)
	if len(m.InlineKeyboard) == 0 {
		return nil
	}
	return m
}
