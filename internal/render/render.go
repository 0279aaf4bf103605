// Package render formats alerts for terminal display.
package render

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"mbtacal/internal/model"
)

const separator = "----------------------------------------"

var lineStyle = lipgloss.NewStyle().Bold(true)

// Alerts renders the full display-mode output: one banner per alert,
// each preceded by a fixed-width divider.
func Alerts(alerts []model.Alert) string {
	if len(alerts) == 0 {
		return "No active alerts.\n"
	}

	var b strings.Builder
	for _, a := range alerts {
		b.WriteString(separator)
		b.WriteByte('\n')
		b.WriteString(Banner(a))
		b.WriteByte('\n')
	}
	return b.String()
}

// Banner renders a single alert as a two-line banner: a bold line tag with
// the effect and active window, then the effect and header text.
func Banner(a model.Alert) string {
	head := lineStyle.Render("["+a.Line.DisplayName()+"]") + " " + string(a.Effect)

	switch {
	case a.Start != nil && a.End != nil:
		head += " - (" + formatTime(*a.Start) + " - " + formatTime(*a.End) + ")"
	case a.Start != nil:
		head += " - (" + formatTime(*a.Start) + ")"
	}

	return head + "\n" + string(a.Effect) + " " + a.Header
}

// formatTime renders an instant the way riders read it: "6/1/2024 9:00am".
func formatTime(t time.Time) string {
	return strings.ToLower(t.Format("1/2/2006 3:04PM"))
}
