package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/folio/internal/otel"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// debugOverlay renders the debug panel showing viewer stats and recent events.
// Pure function with no side effects. Returns empty string if ring is nil.
func debugOverlay(ring *otel.RingBuffer, width, height int) string {
	if ring == nil {
		return ""
	}

	stats := ring.Stats()
	recent := ring.Last(20)

	// --- Stats section (keyed lookups, not map iteration) ---
	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Viewer Stats"))
	lines = append(lines, fmt.Sprintf("  RPC:        %d calls, %d errors, %d protocol",
		stats[otel.KindRPCCall], stats[otel.KindRPCError], stats[otel.KindRPCProtocol]))
	lines = append(lines, fmt.Sprintf("  Pages:      %d loads, %d load errors",
		stats[otel.KindPageLoad], stats[otel.KindPageLoadError]))
	lines = append(lines, fmt.Sprintf("  Renders:    %d done, %d stale, %d errors",
		stats[otel.KindPageRender], stats[otel.KindPageStale], stats[otel.KindPageRenderError]))
	lines = append(lines, fmt.Sprintf("  Searches:   %d started, %d hits, %d misses, %d aborted",
		stats[otel.KindSearchStart], stats[otel.KindSearchHit], stats[otel.KindSearchMiss], stats[otel.KindSearchAbort]))
	lines = append(lines, fmt.Sprintf("  Refreshes:  %d", stats[otel.KindViewRefresh]))
	lines = append(lines, fmt.Sprintf("  Buffer:     %d / %d events", ring.Len(), ring.Cap()))
	lines = append(lines, "")

	// --- Recent events section ---
	lines = append(lines, DebugHeaderStyle.Render("Recent Events"))
	for _, e := range recent {
		line := fmt.Sprintf("  %6s  %-18s", formatAge(time.Since(e.Time)), string(e.Kind))
		if e.Page != nil {
			line += fmt.Sprintf("  p%d", *e.Page+1)
		}
		if e.Op != "" {
			line += "  " + e.Op
		}
		if e.Msg != "" {
			line += "  " + truncateRunes(e.Msg, 40)
		}
		if e.Err != "" {
			line += "  ERR:" + truncateRunes(e.Err, 30)
		}
		lines = append(lines, line)
	}

	// Truncate to fit terminal height (subtract chrome added by DebugPanel border/padding)
	maxHeight := max(height-debugPanelChrome, 1)
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := max(min(76, width-4), 20)

	content := strings.Join(lines, "\n")
	return DebugPanel.Width(panelWidth).Render(content)
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}

// debugStatusBar renders the status bar for the debug overlay.
func debugStatusBar(width int) string {
	keys := StatusBarKey.Render("~") + StatusBarText.Render(":close")
	return StatusBar.Width(width).Render("  [DEBUG]  " + keys)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
