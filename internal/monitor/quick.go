package monitor

// QuickCommand is a one-tap shell command.
type QuickCommand struct {
	Name  string
	Label string
	Line  string
}

var quick = []QuickCommand{
	{Name: "ls", Label: "📂 ls -la", Line: "ls -la"},
	{Name: "pwd", Label: "📍 pwd", Line: "pwd"},
	{Name: "df", Label: "💾 df -h", Line: "df -h"},
	{Name: "ps", Label: "⚙ ps aux", Line: "ps aux | head -n 20"},
	{Name: "ip", Label: "🌐 ip addr", Line: "ip addr show"},
	{Name: "top", Label: "📊 top", Line: "top -bn1 | head -n 20"},
	{Name: "free", Label: "🧠 free -h", Line: "free -h"},
	{Name: "whoami", Label: "👤 whoami", Line: "whoami"},
	{Name: "services", Label: "🔧 services", Line: "systemctl list-units --type=service --state=running --no-pager | head -n 30"},
	{Name: "journal", Label: "📜 journal", Line: "journalctl -n 50 --no-pager"},
}

// QuickCommands returns the quick command catalogue in menu order.
func QuickCommands() []QuickCommand {
	return append([]QuickCommand(nil), quick...)
}

// Quick finds a quick command by name.
func Quick(name string) (QuickCommand, bool) {
	for _, q := range quick {
		if q.Name == name {
			return q, true
		}
	}
	return QuickCommand{}, false
}
