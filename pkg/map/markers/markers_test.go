package markers

import (
	"context"
	"image/color"
	"testing"

	"github.com/beevik/etree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notemap/pkg/engine"
	"notemap/pkg/engine/memengine"
	"notemap/pkg/geo"
	"notemap/pkg/model"
)

var testConfig = &model.DisplayConfig{
	CoordinatesProp:  "note.location",
	IconProp:         "note.icon",
	ColorProp:        "note.color",
	VectorMarkupProp: "note.svg",
}

func marker(path string, props map[string]any) model.MarkerRecord {
	return model.MarkerRecord{
		Record:      &model.MapRecord{RecordPath: path, RecordName: path, Props: props},
		Coordinates: geo.Point{Lat: 1, Lon: 1},
	}
}

func TestRenderVector(t *testing.T) {
	tests := []struct {
		name      string
		markup    string
		fixed     bool
		width     int
		height    int
		wantError bool
	}{
		{
			name:   "Explicit Pixel Size",
			markup: `<svg width="32" height="18"><rect width="32" height="18" fill="red"/></svg>`,
			fixed:  true, width: 64, height: 36,
		},
		{
			name:   "Px Units",
			markup: `<svg xmlns="http://www.w3.org/2000/svg" width="20px" height="20px" viewBox="0 0 10 10"><circle cx="5" cy="5" r="4"/></svg>`,
			fixed:  true, width: 40, height: 40,
		},
		{
			name:   "ViewBox Only",
			markup: `<svg viewBox="0 0 100 50"><rect width="100" height="50"/></svg>`,
			fixed:  false, width: 96, height: 48,
		},
		{
			name:   "Tall ViewBox",
			markup: `<svg viewBox="0 0 10 20"><rect width="10" height="20"/></svg>`,
			fixed:  false, width: 48, height: 96,
		},
		{
			name:   "Single Dimension",
			markup: `<svg width="30"><circle cx="15" cy="15" r="10"/></svg>`,
			fixed:  false, width: 96, height: 96,
		},
		{
			name:      "Neither",
			markup:    `<svg><circle cx="5" cy="5" r="4"/></svg>`,
			wantError: true, width: 96, height: 96,
		},
		{
			name:      "Wrong Root",
			markup:    `<html><body/></html>`,
			wantError: true, width: 96, height: 96,
		},
		{
			name:      "Malformed",
			markup:    `<svg width="10" height="10"`,
			wantError: true, width: 96, height: 96,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := RenderVector(tt.markup)
			require.NoError(t, err)
			require.NotNil(t, r.Image)

			assert.Equal(t, tt.fixed, r.FixedSize)
			assert.Equal(t, tt.wantError, r.RenderError != "", "render error: %q", r.RenderError)
			assert.Equal(t, tt.width, r.Image.Bounds().Dx())
			assert.Equal(t, tt.height, r.Image.Bounds().Dy())
			if tt.fixed {
				assert.Equal(t, 1.0, r.PixelRatio)
			} else {
				assert.Equal(t, float64(Oversample), r.PixelRatio)
			}
		})
	}
}

func TestSizeVector_InjectsViewBox(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<svg width="32" height="18"/>`))

	w, h, fixed, err := sizeVector(doc.Root())
	require.NoError(t, err)
	assert.True(t, fixed)
	assert.Equal(t, 32.0, w)
	assert.Equal(t, 18.0, h)
	assert.Equal(t, "0 0 32 18", doc.Root().SelectAttrValue("viewBox", ""))
}

func TestSizeVector_LargeFixedMarkersKeepPixelSize(t *testing.T) {
	doc := etree.NewDocument()
	require.NoError(t, doc.ReadFromString(`<svg width="640" height="160"/>`))

	w, h, fixed, err := sizeVector(doc.Root())
	require.NoError(t, err)
	assert.True(t, fixed)
	assert.Equal(t, 640.0, w)
	assert.Equal(t, 160.0, h)
}

func TestRenderComposite(t *testing.T) {
	fill := color.NRGBA{R: 0xe9, G: 0x31, B: 0x47, A: 0xff}
	white := color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

	dot, err := RenderComposite("", fill, white)
	require.NoError(t, err)
	assert.Equal(t, 192, dot.Image.Bounds().Dx())
	assert.Equal(t, float64(compositeScale), dot.PixelRatio)
	assert.False(t, dot.FixedSize)

	r, g, b, a := dot.Image.At(96, 96-30).RGBA()
	assert.Equal(t, uint32(0xe9), r>>8, "circle body uses fill")
	assert.Equal(t, uint32(0x31), g>>8)
	assert.Equal(t, uint32(0x47), b>>8)
	assert.Equal(t, uint32(0xff), a>>8)

	r, _, _, _ = dot.Image.At(96, 96).RGBA()
	assert.Equal(t, uint32(0xff), r>>8, "center dot uses the foreground")

	_, _, _, a = dot.Image.At(2, 2).RGBA()
	assert.Zero(t, a, "corners stay transparent")

	icon, err := RenderComposite("lucide-star", fill, white)
	require.NoError(t, err)
	assert.Equal(t, 192, icon.Image.Bounds().Dy())
}

func TestTheme_ResolveColor(t *testing.T) {
	th := LightTheme()

	tests := []struct {
		in   string
		want color.NRGBA
		ok   bool
	}{
		{"#ff0000", color.NRGBA{R: 255, A: 255}, true},
		{"rgb(0, 128, 0)", color.NRGBA{G: 128, A: 255}, true},
		{"blue", color.NRGBA{B: 255, A: 255}, true},
		{"var(--color-red)", color.NRGBA{R: 0xe9, G: 0x31, B: 0x47, A: 255}, true},
		{"var(--missing, #000)", color.NRGBA{A: 255}, true},
		{"var(--missing)", color.NRGBA{}, false},
		{"not-a-color", color.NRGBA{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := th.ResolveColor(tt.in)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTheme_VariableCycle(t *testing.T) {
	th := Theme{Vars: map[string]string{"--a": "var(--b)", "--b": "var(--a)"}}
	_, err := th.ResolveColor("var(--a)")
	assert.Error(t, err)
}

func TestKey(t *testing.T) {
	th := LightTheme()

	a := Key(Glyph{Icon: "star", Color: "red"}, th)
	b := Key(Glyph{Icon: "star", Color: "#ff0000"}, th)
	c := Key(Glyph{Icon: "star", Color: "blue"}, th)
	assert.Equal(t, a, b, "colors are compared after resolution")
	assert.NotEqual(t, a, c)

	noColor := Key(Glyph{}, th)
	accent := Key(Glyph{Color: "var(--interactive-accent)"}, th)
	assert.Equal(t, noColor, accent, "missing color falls back to the theme color")

	svg := Key(Glyph{Icon: "star", Markup: "<svg/>"}, th)
	assert.Contains(t, svg, "svg-")
}

func TestCache_Dedupes(t *testing.T) {
	ctx := context.Background()
	m := memengine.New(engine.Options{})
	c := NewCache(0)

	markers := []model.MarkerRecord{
		marker("a.md", map[string]any{"note.icon": "star", "note.color": "red"}),
		marker("b.md", map[string]any{"note.icon": "star", "note.color": "red"}),
	}
	require.NoError(t, c.EnsureImages(ctx, m, markers, testConfig, LightTheme()))
	assert.Len(t, m.Images(), 1)
	assert.Equal(t, 1, m.Calls().AddImage)

	markers = append(markers, marker("c.md", map[string]any{"note.icon": "star", "note.color": "blue"}))
	require.NoError(t, c.EnsureImages(ctx, m, markers, testConfig, LightTheme()))
	assert.Len(t, m.Images(), 2)
	assert.Equal(t, 2, m.Calls().AddImage, "cached keys are skipped")
}

func TestCache_Describe(t *testing.T) {
	ctx := context.Background()
	m := memengine.New(engine.Options{})
	c := NewCache(0)

	fixed := marker("fixed.md", map[string]any{"note.svg": `<svg width="32" height="18"/>`})
	broken := marker("broken.md", map[string]any{"note.svg": `<svg/>`})
	plain := marker("plain.md", map[string]any{"note.color": "null"})

	d := c.Describe(fixed, testConfig, LightTheme())
	assert.False(t, d.Loaded)
	assert.NotEmpty(t, d.Key)

	require.NoError(t, c.EnsureImages(ctx, m, []model.MarkerRecord{fixed, broken, plain}, testConfig, LightTheme()))

	d = c.Describe(fixed, testConfig, LightTheme())
	assert.True(t, d.Loaded)
	assert.True(t, d.FixedSize)
	assert.Empty(t, d.RenderError)

	d = c.Describe(broken, testConfig, LightTheme())
	assert.True(t, d.Loaded)
	assert.NotEmpty(t, d.RenderError)

	d = c.Describe(plain, testConfig, LightTheme())
	assert.True(t, d.Loaded)
	assert.False(t, d.FixedSize)
	assert.Len(t, m.Images(), 3)
}

func TestCache_RepushAfterReset(t *testing.T) {
	ctx := context.Background()
	c := NewCache(0)
	markers := []model.MarkerRecord{marker("a.md", map[string]any{"note.icon": "flag"})}

	first := memengine.New(engine.Options{})
	require.NoError(t, c.EnsureImages(ctx, first, markers, testConfig, LightTheme()))

	// A style reload empties the engine image table while keys stay stable.
	second := memengine.New(engine.Options{})
	require.NoError(t, c.EnsureImages(ctx, second, markers, testConfig, LightTheme()))
	assert.Len(t, second.Images(), 1)

	c.Clear()
	assert.Zero(t, c.Len())
	require.NoError(t, c.EnsureImages(ctx, second, markers, testConfig, LightTheme()))
	assert.Equal(t, 1, second.Calls().RemoveImage, "stale registration is replaced")
	assert.Len(t, second.Images(), 1)
}

func TestCache_PropertyErrors(t *testing.T) {
	ctx := context.Background()
	m := memengine.New(engine.Options{})
	c := NewCache(0)

	markers := []model.MarkerRecord{
		marker("a.md", map[string]any{"note.color": model.ErrPropertyUnreadable}),
	}
	require.NoError(t, c.EnsureImages(ctx, m, markers, testConfig, LightTheme()))
	assert.Equal(t, Key(Glyph{}, LightTheme()), c.Describe(markers[0], testConfig, LightTheme()).Key)
}

func TestCache_LRULimit(t *testing.T) {
	ctx := context.Background()
	m := memengine.New(engine.Options{})
	c := NewCache(1)

	red := []model.MarkerRecord{marker("a.md", map[string]any{"note.color": "red"})}
	blue := []model.MarkerRecord{marker("b.md", map[string]any{"note.color": "blue"})}

	require.NoError(t, c.EnsureImages(ctx, m, red, testConfig, LightTheme()))
	require.NoError(t, c.EnsureImages(ctx, m, blue, testConfig, LightTheme()))

	assert.Equal(t, 1, c.Len())
	assert.Len(t, m.Images(), 1, "evicted images are unregistered")
	assert.False(t, c.Describe(red[0], testConfig, LightTheme()).Loaded)
}

func TestCache_LRUKeepsRecentlyUsed(t *testing.T) {
	ctx := context.Background()
	m := memengine.New(engine.Options{})
	c := NewCache(2)

	red := []model.MarkerRecord{marker("a.md", map[string]any{"note.color": "red"})}
	blue := []model.MarkerRecord{marker("b.md", map[string]any{"note.color": "blue"})}
	green := []model.MarkerRecord{marker("c.md", map[string]any{"note.color": "green"})}

	for _, batch := range [][]model.MarkerRecord{red, blue, red, green} {
		require.NoError(t, c.EnsureImages(ctx, m, batch, testConfig, LightTheme()))
	}

	assert.Equal(t, 2, c.Len())
	assert.True(t, c.Describe(red[0], testConfig, LightTheme()).Loaded, "red was used after blue")
	assert.False(t, c.Describe(blue[0], testConfig, LightTheme()).Loaded)
	assert.True(t, c.Describe(green[0], testConfig, LightTheme()).Loaded)
	assert.Len(t, m.Images(), 2)
}

func TestCache_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := memengine.New(engine.Options{})
	err := NewCache(0).EnsureImages(ctx, m, []model.MarkerRecord{marker("a.md", nil)}, testConfig, LightTheme())
	assert.ErrorIs(t, err, context.Canceled)
}
