package preview

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	svg "github.com/ajstarks/svgo/float"
	"github.com/microcosm-cc/bluemonday"
)

// Options controls the slide card layout.
type Options struct {
	Width      float64
	Height     float64
	Title      string
	FontFamily string
	FontSize   float64
	Foreground string
	Background string
	Accent     string
	// WrapAt is the maximum number of runes per rendered line.
	WrapAt int
}

// DefaultOptions returns a 16:9 card sized for inline display.
func DefaultOptions() Options {
	return Options{
		Width:      960,
		Height:     540,
		FontFamily: "Helvetica, Arial, sans-serif",
		FontSize:   22,
		Foreground: "#1f2933",
		Background: "#ffffff",
		Accent:     "#0b5cad",
		WrapAt:     70,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Width <= 0 {
		o.Width = def.Width
	}
	if o.Height <= 0 {
		o.Height = def.Height
	}
	if o.FontFamily == "" {
		o.FontFamily = def.FontFamily
	}
	if o.FontSize <= 0 {
		o.FontSize = def.FontSize
	}
	if o.Foreground == "" {
		o.Foreground = def.Foreground
	}
	if o.Background == "" {
		o.Background = def.Background
	}
	if o.Accent == "" {
		o.Accent = def.Accent
	}
	if o.WrapAt <= 0 {
		o.WrapAt = def.WrapAt
	}
	return o
}

// SVG draws text as a slide card. Lines that do not fit vertically are
// dropped and an ellipsis line is drawn instead.
func SVG(w io.Writer, text string, opts Options) error {
	if w == nil {
		return errors.New("preview: writer is nil")
	}
	opts = opts.withDefaults()

	const (
		margin    = 36.0
		barHeight = 56.0
	)
	lineHeight := opts.FontSize * 1.4
	top := margin
	if opts.Title != "" {
		top = barHeight + margin
	}
	capacity := int((opts.Height - top - margin) / lineHeight)
	if capacity < 1 {
		capacity = 1
	}

	lines := Wrap(text, opts.WrapAt)
	if len(lines) > capacity {
		lines = append(lines[:capacity-1], "…")
	}

	doc := svg.New(w)
	doc.Start(opts.Width, opts.Height)
	doc.Rect(0, 0, opts.Width, opts.Height, attr("fill", opts.Background))
	if opts.Title != "" {
		doc.Rect(0, 0, opts.Width, barHeight, attr("fill", opts.Accent))
		doc.Text(margin, barHeight*0.65, opts.Title,
			attr("fill", opts.Background),
			attr("font-family", opts.FontFamily),
			attr("font-size", fmt.Sprintf("%.0f", opts.FontSize*1.1)),
		)
	}
	for i, line := range lines {
		y := top + opts.FontSize + float64(i)*lineHeight
		doc.Text(margin, y, line,
			attr("fill", opts.Foreground),
			attr("font-family", opts.FontFamily),
			attr("font-size", fmt.Sprintf("%.0f", opts.FontSize)),
			`xml:space="preserve"`,
		)
	}
	doc.End()
	return nil
}

// Wrap splits text into lines of at most width runes, breaking on spaces
// where possible. Blank lines are kept.
func Wrap(text string, width int) []string {
	if width <= 0 {
		width = DefaultOptions().WrapAt
	}
	var out []string
	for _, para := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}
		var line []rune
		for _, word := range words {
			wr := []rune(word)
			for len(wr) > width {
				if len(line) > 0 {
					out = append(out, string(line))
					line = nil
				}
				out = append(out, string(wr[:width]))
				wr = wr[width:]
			}
			switch {
			case len(line) == 0:
				line = append(line, wr...)
			case len(line)+1+len(wr) <= width:
				line = append(line, ' ')
				line = append(line, wr...)
			default:
				out = append(out, string(line))
				line = append([]rune(nil), wr...)
			}
		}
		if len(line) > 0 {
			out = append(out, string(line))
		}
	}
	return out
}

func attr(name, value string) string {
	return name + `="` + strings.NewReplacer(`"`, "&quot;", "<", "&lt;", "&", "&amp;").Replace(value) + `"`
}

var (
	svgPolicyOnce sync.Once
	svgPolicy     *bluemonday.Policy
)

// SanitizeSVG strips everything but basic drawing markup so the card can be
// embedded inline in an HTML page.
func SanitizeSVG(markup string) string {
	trimmed := strings.TrimSpace(markup)
	if trimmed == "" {
		return ""
	}
	return strings.TrimSpace(svgSanitizer().Sanitize(trimmed))
}

func svgSanitizer() *bluemonday.Policy {
	svgPolicyOnce.Do(func() {
		policy := bluemonday.StrictPolicy()
		policy.AllowElements("svg", "g", "rect", "text", "tspan", "title", "desc", "line")
		policy.AllowAttrs("xmlns", "xmlns:xlink", "width", "height", "viewBox").OnElements("svg")
		policy.AllowAttrs("x", "y", "width", "height", "rx", "ry", "fill", "stroke", "stroke-width").OnElements("rect")
		policy.AllowAttrs("x1", "y1", "x2", "y2", "stroke", "stroke-width").OnElements("line")
		policy.AllowAttrs("x", "y", "dx", "dy", "fill", "font-family", "font-size", "font-weight", "text-anchor", "xml:space").OnElements("text", "tspan")
		policy.AllowAttrs("fill", "font-family", "font-size").OnElements("g")
		svgPolicy = policy
	})
	return svgPolicy
}
