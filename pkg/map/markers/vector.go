package markers

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
)

const (
	// Oversample is the render multiplier applied to vector markers.
	Oversample = 2
	// ReferenceSize is the display size of the longer edge of a scaling marker.
	ReferenceSize = 48

	svgNamespace = "http://www.w3.org/2000/svg"
)

// Rendered is a synthesized marker bitmap.
type Rendered struct {
	Image image.Image
	// PixelRatio tells the engine how many bitmap pixels make one display pixel.
	PixelRatio  float64
	FixedSize   bool
	RenderError string
}

// errUnsizable is returned by sizeVector when the artwork has no usable dimensions.
var errUnsizable = errors.New("SVG has neither width/height nor viewBox, cannot determine size")

// RenderVector rasterizes custom SVG markup.
// Unusable markup yields the error glyph and a RenderError; the returned error is
// reserved for rasterization failures.
func RenderVector(markup string) (Rendered, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(markup); err != nil {
		return renderErrorGlyph(fmt.Sprintf("Invalid SVG markup: %v", err))
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return renderErrorGlyph("Markup root element is not <svg>")
	}

	w, h, fixed, err := sizeVector(root)
	if err != nil {
		return renderErrorGlyph(err.Error())
	}

	if root.SelectAttr("xmlns") == nil {
		root.CreateAttr("xmlns", svgNamespace)
	}

	out, err := doc.WriteToString()
	if err != nil {
		return Rendered{}, fmt.Errorf("failed to serialize svg: %w", err)
	}

	img, err := rasterize(out, w*Oversample, h*Oversample)
	if err != nil {
		return Rendered{}, err
	}

	ratio := float64(Oversample)
	if fixed {
		// Fixed markers are pinned to 1/Oversample by the layer instead.
		ratio = 1
	}
	return Rendered{Image: img, PixelRatio: ratio, FixedSize: fixed}, nil
}

// sizeVector derives the display size from width/height/viewBox, injecting a viewBox
// when only pixel dimensions are present.
func sizeVector(root *etree.Element) (w, h float64, fixed bool, err error) {
	pw, hasW := parsePx(root.SelectAttrValue("width", ""))
	ph, hasH := parsePx(root.SelectAttrValue("height", ""))
	vw, vh, hasVB := parseViewBox(root.SelectAttrValue("viewBox", ""))

	switch {
	case hasW && hasH:
		if !hasVB {
			root.CreateAttr("viewBox", fmt.Sprintf("0 0 %s %s", fmtNum(pw), fmtNum(ph)))
		}
		return pw, ph, true, nil

	case hasVB:
		w, h = scaleToReference(vw, vh)
		return w, h, false, nil

	case hasW || hasH:
		d := pw
		if hasH {
			d = ph
		}
		slog.Warn("Markers: SVG declares a single dimension, assuming square", "size", d)
		root.CreateAttr("width", fmtNum(d))
		root.CreateAttr("height", fmtNum(d))
		root.CreateAttr("viewBox", fmt.Sprintf("0 0 %s %s", fmtNum(d), fmtNum(d)))
		w, h = scaleToReference(d, d)
		return w, h, false, nil
	}

	return 0, 0, false, errUnsizable
}

// scaleToReference scales the longer edge to ReferenceSize.
func scaleToReference(w, h float64) (float64, float64) {
	if w >= h {
		return ReferenceSize, ReferenceSize * h / w
	}
	return ReferenceSize * w / h, ReferenceSize
}

// parsePx accepts unitless numbers and "px" values.
func parsePx(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, false
	}
	v = strings.TrimSpace(strings.TrimSuffix(v, "px"))
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func parseViewBox(v string) (w, h float64, ok bool) {
	fields := strings.FieldsFunc(v, func(r rune) bool { return r == ' ' || r == ',' || r == '\t' || r == '\n' })
	if len(fields) != 4 {
		return 0, 0, false
	}
	nums := make([]float64, 4)
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return 0, 0, false
		}
		nums[i] = n
	}
	if nums[2] <= 0 || nums[3] <= 0 {
		return 0, 0, false
	}
	return nums[2], nums[3], true
}

func fmtNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func renderErrorGlyph(msg string) (Rendered, error) {
	img, err := rasterize(errorGlyph, ReferenceSize*Oversample, ReferenceSize*Oversample)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Image: img, PixelRatio: Oversample, RenderError: msg}, nil
}

// rasterize draws SVG markup into a w x h bitmap.
func rasterize(markup string, w, h float64) (*image.RGBA, error) {
	iw, ih := int(math.Ceil(w)), int(math.Ceil(h))
	if iw <= 0 || ih <= 0 {
		return nil, fmt.Errorf("invalid raster size %dx%d", iw, ih)
	}

	icon, err := oksvg.ReadIconStream(strings.NewReader(markup), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, fmt.Errorf("failed to parse svg: %w", err)
	}
	icon.SetTarget(0, 0, float64(iw), float64(ih))

	img := image.NewRGBA(image.Rect(0, 0, iw, ih))
	scanner := rasterx.NewScannerGV(iw, ih, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(iw, ih, scanner), 1.0)
	return img, nil
}
