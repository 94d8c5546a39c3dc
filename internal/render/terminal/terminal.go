// Package terminal draws frames as styled text blocks for the TUI.
package terminal

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/shopspring/decimal"

	"finboard/internal/core"
	"finboard/internal/render"
)

var (
	colorText    lipgloss.Color = "#cdd6f4"
	colorMuted   lipgloss.Color = "#a6adc8"
	colorSurface lipgloss.Color = "#585b70"
	colorAccent  lipgloss.Color = "#89b4fa"
	colorAmount  lipgloss.Color = "#fab387"

	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	subtitleStyle = lipgloss.NewStyle().Foreground(colorMuted)
	mutedStyle    = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	amountStyle   = lipgloss.NewStyle().Foreground(colorAmount)
	headerStyle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	hintStyle     = lipgloss.NewStyle().Foreground(colorSurface)
	blockStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorSurface).Padding(0, 1)
)

const (
	minWidth  = 40
	labelW    = 18
	sparkRune = "▁▂▃▄▅▆▇█"
)

// Surface keeps the last rendered block for every canvas.
type Surface struct {
	mu     sync.Mutex
	width  int
	blocks map[render.Canvas]string
}

func New(width int) *Surface {
	return &Surface{width: clampWidth(width), blocks: make(map[render.Canvas]string)}
}

func clampWidth(w int) int {
	if w < minWidth {
		return minWidth
	}
	return w
}

// Resize sets the block width used by later draws.
func (s *Surface) Resize(width int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width = clampWidth(width)
}

type handle struct {
	s      *Surface
	canvas render.Canvas
	once   sync.Once
}

func (h *handle) Release() {
	h.once.Do(func() {
		h.s.mu.Lock()
		defer h.s.mu.Unlock()
		delete(h.s.blocks, h.canvas)
	})
}

func (s *Surface) Draw(ch render.Chart) (render.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[ch.Canvas] = s.box(chartBody(ch, s.inner()))
	return &handle{s: s, canvas: ch.Canvas}, nil
}

func (s *Surface) Blank(ch render.Chart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := heading(ch.Title, ch.Subtitle)
	empty := ch.Legend.Empty
	if empty == "" {
		empty = "Нет данных"
	}
	lines = append(lines, mutedStyle.Render(empty))
	if ch.BackVisible {
		lines = append(lines, hintStyle.Render("esc: назад"))
	}
	s.blocks[ch.Canvas] = s.box(strings.Join(lines, "\n"))
	return nil
}

func (s *Surface) Table(t render.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[t.Name] = s.box(tableBody(t, s.inner()))
	return nil
}

func (s *Surface) Text(t render.Text) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lines := heading(t.Title, "")
	for _, l := range t.Lines {
		if t.Muted {
			l = mutedStyle.Render(l)
		}
		lines = append(lines, truncate(l, s.inner()))
	}
	s.blocks[t.Name] = s.box(strings.Join(lines, "\n"))
	return nil
}

// View joins the blocks of the given canvases in order. Canvases never
// drawn are skipped.
func (s *Surface) View(canvases ...render.Canvas) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]string, 0, len(canvases))
	for _, c := range canvases {
		if b, ok := s.blocks[c]; ok {
			parts = append(parts, b)
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (s *Surface) inner() int {
	return s.width - 4
}

func (s *Surface) box(body string) string {
	return blockStyle.Width(s.width - 2).Render(body)
}

func heading(title, subtitle string) []string {
	var lines []string
	if title != "" {
		lines = append(lines, titleStyle.Render(title))
	}
	if subtitle != "" {
		lines = append(lines, subtitleStyle.Render(subtitle))
	}
	return lines
}

func chartBody(ch render.Chart, width int) string {
	lines := heading(ch.Title, ch.Subtitle)
	switch ch.Kind {
	case render.KindLine:
		lines = append(lines, lineRows(ch, width)...)
	default:
		lines = append(lines, barRows(ch, width)...)
	}
	if len(ch.Legend.Items) > 0 {
		lines = append(lines, legendRows(ch.Legend, width)...)
	}
	if ch.BackVisible {
		lines = append(lines, hintStyle.Render("esc: назад"))
	}
	return strings.Join(lines, "\n")
}

// barRows draws one horizontal bar per label, scaled to the largest
// magnitude. Doughnut charts also show each share of the total.
func barRows(ch render.Chart, width int) []string {
	if len(ch.Datasets) == 0 {
		return nil
	}
	ds := ch.Datasets[0]
	maxAbs := decimal.Zero
	total := decimal.Zero
	for _, v := range ds.Values {
		total = total.Add(v.Abs())
		if v.Abs().GreaterThan(maxAbs) {
			maxAbs = v.Abs()
		}
	}

	lines := make([]string, 0, len(ds.Values))
	for i, v := range ds.Values {
		amt := core.FormatAmount(v)
		pct := ""
		if ch.Kind == render.KindDoughnut {
			pct = fmt.Sprintf("%5s%%", core.Percent(v.Abs(), total))
		}
		barW := width - labelW - ansi.StringWidth(amt) - ansi.StringWidth(pct) - 3
		if barW < 1 {
			barW = 1
		}
		filled := 0
		if !maxAbs.IsZero() {
			filled = int(v.Abs().Div(maxAbs).Mul(decimal.NewFromInt(int64(barW))).Round(0).IntPart())
		}
		if filled < 1 && !v.IsZero() {
			filled = 1
		}
		if filled > barW {
			filled = barW
		}

		color := lipgloss.Color(render.Color(i))
		if i < len(ds.Colors) && ds.Colors[i] != "" {
			color = lipgloss.Color(ds.Colors[i])
		}
		label := ""
		if i < len(ch.Labels) {
			label = ch.Labels[i]
		}
		name := padRight(lipgloss.NewStyle().Foreground(color).Render(truncate(label, labelW-1)), labelW)
		bar := lipgloss.NewStyle().Foreground(color).Render(strings.Repeat("█", filled)) +
			lipgloss.NewStyle().Foreground(colorSurface).Render(strings.Repeat("░", barW-filled))
		line := name + bar + " " + subtitleStyle.Render(pct) + " " + amountStyle.Render(amt)
		lines = append(lines, strings.TrimRight(line, " "))
	}
	return lines
}

// lineRows draws each dataset as a sparkline with its first and last values.
func lineRows(ch render.Chart, width int) []string {
	var lines []string
	for _, ds := range ch.Datasets {
		if len(ds.Values) == 0 {
			continue
		}
		color := colorAccent
		if len(ds.Colors) > 0 {
			color = lipgloss.Color(ds.Colors[0])
		}
		spark := sparkline(ds.Values, width-labelW)
		name := padRight(truncate(ds.Label, labelW-1), labelW)
		lines = append(lines, name+lipgloss.NewStyle().Foreground(color).Render(spark))
	}
	if n := len(ch.Labels); n > 0 {
		first, last := ch.Labels[0], ch.Labels[n-1]
		lines = append(lines, hintStyle.Render(fmt.Sprintf("%s … %s", first, last)))
	}
	return lines
}

func sparkline(values []decimal.Decimal, width int) string {
	if width > 0 && len(values) > width {
		values = values[len(values)-width:]
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v.LessThan(lo) {
			lo = v
		}
		if v.GreaterThan(hi) {
			hi = v
		}
	}
	levels := []rune(sparkRune)
	span := hi.Sub(lo)
	var b strings.Builder
	for _, v := range values {
		idx := 0
		if !span.IsZero() {
			idx = int(v.Sub(lo).Div(span).Mul(decimal.NewFromInt(int64(len(levels) - 1))).Round(0).IntPart())
		}
		b.WriteRune(levels[idx])
	}
	return b.String()
}

// legendRows numbers the entries so they can be picked from the keyboard.
func legendRows(l render.Legend, width int) []string {
	var lines []string
	if l.Title != "" {
		lines = append(lines, headerStyle.Render(l.Title))
	}
	for i, it := range l.Items {
		dot := lipgloss.NewStyle().Foreground(lipgloss.Color(it.Color)).Render("●")
		lines = append(lines, truncate(fmt.Sprintf("%d %s %s", i+1, dot, it.Label), width))
	}
	return lines
}

func tableBody(t render.Table, width int) string {
	lines := heading(t.Title, "")
	if len(t.Rows) == 0 {
		empty := t.Empty
		if empty == "" {
			empty = "Нет данных"
		}
		return strings.Join(append(lines, mutedStyle.Render(empty)), "\n")
	}

	widths := make([]int, len(t.Columns))
	for i, c := range t.Columns {
		widths[i] = ansi.StringWidth(c)
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && ansi.StringWidth(cell) > widths[i] {
				widths[i] = ansi.StringWidth(cell)
			}
		}
	}

	header := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = padRight(c, widths[i])
	}
	lines = append(lines, truncate(headerStyle.Render(strings.Join(header, "  ")), width))
	for _, row := range t.Rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			w := 0
			if i < len(widths) {
				w = widths[i]
			}
			cells[i] = padRight(cell, w)
		}
		lines = append(lines, truncate(strings.Join(cells, "  "), width))
	}
	return strings.Join(lines, "\n")
}

func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	return ansi.Truncate(s, width, "…")
}

func padRight(s string, width int) string {
	w := ansi.StringWidth(s)
	if w >= width {
		return s
	}
	return s + strings.Repeat(" ", width-w)
}
