// Package display fits text into fixed terminal columns.
//
// Widths are display columns as measured by go-runewidth, so wide runes
// (CJK, most emoji) count as two.
package display

import (
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
)

const ellipsis = "..."

// PadToWidth pads text with spaces, or truncates it with "...", so that it
// occupies exactly width columns. A width of zero or less returns text
// unchanged.
func PadToWidth(text string, width int) string {
	if width <= 0 {
		return text
	}

	current := runewidth.StringWidth(text)
	switch {
	case current == width:
		return text
	case current < width:
		return text + strings.Repeat(" ", width-current)
	}

	ellipsisWidth := runewidth.StringWidth(ellipsis)
	if width <= ellipsisWidth {
		return runewidth.Truncate(ellipsis, width, "")
	}

	// A wide rune at the cut can leave the result one column short.
	result := runewidth.Truncate(text, width-ellipsisWidth, "") + ellipsis
	return fill(result, width)
}

// Marquee returns a width-column window into text that scrolls speed
// columns per second, looping through text+separator. Text that already
// fits is padded and does not scroll.
//
// The window position depends only on at, so repeated calls from a status
// bar refresh advance the text without keeping state.
func Marquee(text string, width, speed int, separator string, at time.Time) string {
	if width <= 0 {
		return text
	}
	if runewidth.StringWidth(text) <= width {
		return PadToWidth(text, width)
	}

	loop := []rune(text + separator + text)
	start := int(at.Unix()*int64(speed)) % len(loop)
	if start < 0 {
		start += len(loop)
	}

	var b strings.Builder
	used := 0
	for i := 0; i < len(loop); i++ {
		r := loop[(start+i)%len(loop)]
		rw := runewidth.RuneWidth(r)
		if used+rw > width {
			break
		}
		b.WriteRune(r)
		used += rw
	}
	return fill(b.String(), width)
}

func fill(s string, width int) string {
	if w := runewidth.StringWidth(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}
