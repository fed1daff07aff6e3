package markers

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/beevik/etree"
	"github.com/srwiley/rasterx"
	"golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"
)

const (
	// compositeScale oversamples the 48-unit marker box.
	compositeScale = 4
	boxUnits       = 48
	circleRadius   = 12
	dotRadius      = 4
	strokeUnits    = 1.5
	iconScale      = 1.2
)

var markerStroke = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0x99}

// drawable elements whose paint is rewritten when an icon is tinted.
var drawable = map[string]bool{
	"path": true, "circle": true, "ellipse": true, "line": true,
	"polyline": true, "polygon": true, "rect": true,
}

// RenderComposite draws the default marker: a filled circle with a centered icon,
// or a center dot when icon is empty or unknown.
func RenderComposite(icon string, fill, fg color.NRGBA) (Rendered, error) {
	size := boxUnits * compositeScale
	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	scanner := rasterx.NewScannerGV(size, size, canvas, canvas.Bounds())

	c := float64(size) / 2
	r := float64(circleRadius * compositeScale)

	filler := rasterx.NewFiller(size, size, scanner)
	rasterx.AddCircle(c, c, r, filler)
	filler.SetColor(fill)
	filler.Draw()
	filler.Clear()

	stroker := rasterx.NewStroker(size, size, scanner)
	sw := fixed.Int26_6(strokeUnits * compositeScale * 64)
	stroker.SetStroke(sw, 4<<6, rasterx.RoundCap, rasterx.RoundCap, rasterx.RoundGap, rasterx.Round)
	rasterx.AddCircle(c, c, r, stroker)
	stroker.SetColor(markerStroke)
	stroker.Draw()
	stroker.Clear()

	markup, ok := "", false
	if icon != "" {
		markup, ok = iconMarkup(icon)
	}
	if !ok {
		rasterx.AddCircle(c, c, float64(dotRadius*compositeScale), filler)
		filler.SetColor(fg)
		filler.Draw()
		return Rendered{Image: canvas, PixelRatio: compositeScale}, nil
	}

	tinted, err := tintIcon(markup, hexColor(fg))
	if err != nil {
		return Rendered{}, err
	}

	// Render at twice the target size and downscale for smoother strokes.
	target := iconScale * r
	hi, err := rasterize(tinted, target*2, target*2)
	if err != nil {
		return Rendered{}, err
	}
	half := int(math.Round(target / 2))
	ic := int(c)
	dst := image.Rect(ic-half, ic-half, ic+half, ic+half)
	draw.CatmullRom.Scale(canvas, dst, hi, hi.Bounds(), draw.Over, nil)

	return Rendered{Image: canvas, PixelRatio: compositeScale}, nil
}

// tintIcon forces every stroke to color and removes fills.
func tintIcon(markup, stroke string) (string, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(markup); err != nil {
		return "", fmt.Errorf("failed to parse icon: %w", err)
	}
	root := doc.Root()
	if root == nil {
		return "", errors.New("icon has no root element")
	}
	root.CreateAttr("stroke", stroke)
	root.CreateAttr("fill", "none")
	for _, el := range root.FindElements("//*") {
		if !drawable[el.Tag] {
			continue
		}
		el.CreateAttr("stroke", stroke)
		el.CreateAttr("fill", "none")
	}
	return doc.WriteToString()
}
