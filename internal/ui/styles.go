package ui

import (
	"image/color"

	"github.com/charmbracelet/lipgloss"
)

// Colors used in the application.
var (
	colorPrimary   = lipgloss.Color("62")  // Purple
	colorSecondary = lipgloss.Color("241") // Gray
	colorMuted     = lipgloss.Color("240") // Darker gray
	colorHighlight = lipgloss.Color("212") // Pink
	colorSuccess   = lipgloss.Color("78")  // Green
)

// Canvas colors for the page strip.
var (
	canvasBackground = color.RGBA{R: 38, G: 38, B: 42, A: 255}
	pagePlaceholder  = color.RGBA{R: 222, G: 222, B: 222, A: 255}
	searchHighlight  = color.NRGBA{R: 255, G: 200, B: 0, A: 120}
)

// SelectedItem style for the highlighted outline or link entry.
var SelectedItem = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("255")).
	Background(colorPrimary).
	Padding(0, 1)

// NormalItem style for unselected entries.
var NormalItem = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Padding(0, 1)

// PanelTitle style for side panel headers.
var PanelTitle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight).
	Padding(0, 1)

// Panel frames the outline, link and recent document lists.
var Panel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorPrimary).
	Padding(0, 1)

// StatusBar style for the bottom status bar.
var StatusBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("236")).
	Padding(0, 1)

// StatusBarKey style for key hints in status bar.
var StatusBarKey = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// StatusBarText style for descriptive text in status bar.
var StatusBarText = lipgloss.NewStyle().
	Foreground(colorSecondary)

// SearchStatusStyle for search progress text.
var SearchStatusStyle = lipgloss.NewStyle().
	Foreground(colorSuccess)

// ErrorStyle for displaying errors.
var ErrorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("196")).
	Bold(true).
	Padding(0, 1)

// MessageStyle for transient notices.
var MessageStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(0, 1)

// InputBar style for the search and password prompts.
var InputBar = lipgloss.NewStyle().
	Foreground(lipgloss.Color("255")).
	Background(lipgloss.Color("240")).
	Padding(0, 1)

// InputPrompt style for the prompt glyph.
var InputPrompt = lipgloss.NewStyle().
	Foreground(colorHighlight).
	Bold(true)

// DebugPanel frames the debug overlay.
var DebugPanel = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(colorHighlight).
	Padding(1, 2)

// DebugHeaderStyle for debug overlay section headers.
var DebugHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorHighlight)

// HelpStyle for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(colorMuted).
	Padding(1, 2)
