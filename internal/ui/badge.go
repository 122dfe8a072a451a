package ui

import "github.com/charmbracelet/lipgloss"

// StateBadge renders a job state. Terminal states are colored by outcome,
// everything else is treated as in progress.
func StateBadge(state string) string {
	return stateStyle(state).Render(state)
}

func stateStyle(state string) lipgloss.Style {
	switch state {
	case "completed":
		return Green
	case "failed":
		return Red
	case "queued":
		return Dim
	default:
		return Yellow
	}
}

// ActionBadge renders the action available for a package.
func ActionBadge(action string) string {
	switch action {
	case "install":
		return Green.Render("Install")
	case "uninstall":
		return Red.Render("Uninstall")
	case "update":
		return Yellow.Render("Update")
	default:
		return Dim.Render("Unavailable")
	}
}

// KeyValue renders an aligned "label value" line.
func KeyValue(label, value string) string {
	return Cyan.Render(label) + " " + White.Render(value)
}
