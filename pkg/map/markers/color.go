package markers

import (
	"fmt"
	"image/color"
	"strings"

	"github.com/mazznoer/csscolorparser"
)

// Theme carries the palette markers are drawn with.
type Theme struct {
	Dark bool
	// Vars resolves CSS custom properties such as "--interactive-accent".
	Vars map[string]string
	// MarkerColor is the fill used when a record has no color.
	MarkerColor string
	// IconColor strokes icons and the center dot.
	IconColor string
}

// LightTheme is the default light palette.
func LightTheme() Theme {
	return Theme{
		Vars: map[string]string{
			"--interactive-accent": "#7852ee",
			"--text-on-accent":     "#ffffff",
			"--color-red":          "#e93147",
			"--color-orange":       "#ec7500",
			"--color-yellow":       "#e0ac00",
			"--color-green":        "#08b94e",
			"--color-cyan":         "#00bfbc",
			"--color-blue":         "#086ddd",
			"--color-purple":       "#7852ee",
			"--color-pink":         "#d53984",
		},
		MarkerColor: "var(--interactive-accent)",
		IconColor:   "var(--text-on-accent)",
	}
}

// DarkTheme is the default dark palette.
func DarkTheme() Theme {
	return Theme{
		Dark: true,
		Vars: map[string]string{
			"--interactive-accent": "#8a5cf5",
			"--text-on-accent":     "#ffffff",
			"--color-red":          "#fb464c",
			"--color-orange":       "#e9973f",
			"--color-yellow":       "#e0de71",
			"--color-green":        "#44cf6e",
			"--color-cyan":         "#53dfdd",
			"--color-blue":         "#027aff",
			"--color-purple":       "#a882ff",
			"--color-pink":         "#fa99cd",
		},
		MarkerColor: "var(--interactive-accent)",
		IconColor:   "var(--text-on-accent)",
	}
}

const maxVarDepth = 8

// ResolveColor turns any CSS color, including var(--x) references, into a concrete color.
func (t Theme) ResolveColor(css string) (color.NRGBA, error) {
	s := strings.TrimSpace(css)
	for depth := 0; strings.HasPrefix(s, "var("); depth++ {
		if depth >= maxVarDepth {
			return color.NRGBA{}, fmt.Errorf("color variable cycle in %q", css)
		}
		name, fallback := splitVar(s)
		v, ok := t.Vars[name]
		switch {
		case ok:
			s = strings.TrimSpace(v)
		case fallback != "":
			s = fallback
		default:
			return color.NRGBA{}, fmt.Errorf("undefined color variable %s", name)
		}
	}

	c, err := csscolorparser.Parse(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", css, err)
	}
	r, g, b, a := c.RGBA255()
	return color.NRGBA{R: r, G: g, B: b, A: a}, nil
}

// splitVar parses "var(--name, fallback)".
func splitVar(s string) (name, fallback string) {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "var("), ")")
	name, fallback, _ = strings.Cut(inner, ",")
	return strings.TrimSpace(name), strings.TrimSpace(fallback)
}

// hexColor formats c as #rrggbbaa, the canonical form used in cache keys.
func hexColor(c color.NRGBA) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// markerColor resolves a record color, falling back to the theme marker color.
func (t Theme) markerColor(css string) color.NRGBA {
	if css != "" {
		if c, err := t.ResolveColor(css); err == nil {
			return c
		}
	}
	if c, err := t.ResolveColor(t.MarkerColor); err == nil {
		return c
	}
	return color.NRGBA{R: 0x78, G: 0x52, B: 0xee, A: 0xff}
}

func (t Theme) iconColor() color.NRGBA {
	if c, err := t.ResolveColor(t.IconColor); err == nil {
		return c
	}
	return color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
}
