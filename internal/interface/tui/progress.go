package tui

import (
	"fmt"
	"strings"

	"github.com/neilberkman/linkscout/internal/core/render"
)

// treeProgress counts settled nodes among the ones actually drawn, so nodes
// the tree cannot reach yet never skew the bar.
func treeProgress(dt render.DisplayTree) (settled, total int) {
	dt.Walk(func(n *render.DisplayNode) {
		total++
		if n.Status.Terminal() {
			settled++
		}
	})
	return settled, total
}

// renderProgressBar shows how many discovered nodes have settled
func renderProgressBar(current, total int, width int) string {
	if total <= 0 {
		return ""
	}
	current = min(max(current, 0), total)

	pct := float64(current) / float64(total) * 100

	// Progress bar (use available width, max 50)
	barWidth := width - 30 // Leave space for percentage and counts
	if barWidth > 50 {
		barWidth = 50
	}
	if barWidth < 20 {
		barWidth = 20
	}

	filled := int(float64(barWidth) * float64(current) / float64(total))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	return fmt.Sprintf("[%s] %3.0f%% (%d/%d)", bar, pct, current, total)
}
