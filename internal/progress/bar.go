package progress

import (
	"fmt"
	"math"
	"strings"
)

const defaultTermWidth = 80

// Bar renders a single-line progress bar.
type Bar struct {
	message  string
	maxValue int
	current  int
}

func NewBar(message string, maxValue int) *Bar {
	return &Bar{message: message, maxValue: maxValue}
}

func (b *Bar) Set(v int) {
	if v > b.maxValue {
		v = b.maxValue
	}
	if v < 0 {
		v = 0
	}
	b.current = v
}

func (b *Bar) Add(delta int) { b.Set(b.current + delta) }

func (b *Bar) Current() int { return b.current }

func (b *Bar) percent() float64 {
	if b.maxValue > 0 {
		return float64(b.current) / float64(b.maxValue) * 100
	}
	return 0
}

// String renders the bar for a terminal of the given width.
func (b *Bar) String(width int) string {
	if width <= 0 {
		width = defaultTermWidth
	}
	var pre, mid, suf strings.Builder
	if b.message != "" {
		pre.WriteString(strings.TrimSpace(b.message))
		pre.WriteString(" ")
	}
	fmt.Fprintf(&pre, "%3.0f%% ", math.Floor(b.percent()))
	fmt.Fprintf(&suf, " %d/%d", b.current, b.maxValue)

	// 2 boundary characters
	f := width - pre.Len() - suf.Len() - 2
	if f > 0 {
		n := int(float64(f) * b.percent() / 100)
		mid.WriteString("[")
		mid.WriteString(strings.Repeat("=", n))
		mid.WriteString(strings.Repeat(" ", f-n))
		mid.WriteString("]")
	}
	return pre.String() + mid.String() + suf.String()
}

// HumanBytes formats a byte count with a decimal unit.
func HumanBytes(b int64) string {
	const (
		kb = 1000
		mb = kb * 1000
		gb = mb * 1000
		tb = gb * 1000
	)
	var v float64
	var unit string
	switch {
	case b >= tb:
		v, unit = float64(b)/tb, "TB"
	case b >= gb:
		v, unit = float64(b)/gb, "GB"
	case b >= mb:
		v, unit = float64(b)/mb, "MB"
	case b >= kb:
		v, unit = float64(b)/kb, "KB"
	default:
		return fmt.Sprintf("%d B", b)
	}
	switch {
	case v >= 100:
		return fmt.Sprintf("%.0f %s", v, unit)
	case v >= 10:
		return fmt.Sprintf("%.1f %s", v, unit)
	default:
		return fmt.Sprintf("%.2f %s", v, unit)
	}
}
