package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/code128"
	"github.com/boombuler/barcode/datamatrix"
	"github.com/boombuler/barcode/qr"
	"github.com/covxx/pelattahub-sub002/gs1"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Symbology names a barcode symbology the renderer can draw
type Symbology string

const (
	SymbologyGS1128     Symbology = "gs1-128"
	SymbologyQR         Symbology = "qr"
	SymbologyDataMatrix Symbology = "datamatrix"
)

var ErrUnsupportedSymbology = errors.New("unsupported symbology")

// SymbolRenderer draws a label payload as a PNG image: the symbol with its human
// readable interpretation underneath.
type SymbolRenderer interface {
	Render(ctx context.Context, payload gs1.Payload, symbology Symbology) ([]byte, error)
}

// SymbolRendererOptions sizes the rendered image, in pixels
type SymbolRendererOptions struct {
	ModuleWidth int
	BarHeight   int
	QuietZone   int
}

type SymbolRendererImpl struct {
	opts SymbolRendererOptions
}

func NewSymbolRenderer(opts SymbolRendererOptions) SymbolRenderer {
	if opts.ModuleWidth <= 0 {
		opts.ModuleWidth = 2
	}
	if opts.BarHeight <= 0 {
		opts.BarHeight = 80
	}
	if opts.QuietZone <= 0 {
		opts.QuietZone = 10 * opts.ModuleWidth
	}
	return &SymbolRendererImpl{opts: opts}
}

// ParseSymbology maps a request value to a Symbology; empty means GS1-128.
func ParseSymbology(s string) (Symbology, error) {
	switch Symbology(s) {
	case "", SymbologyGS1128:
		return SymbologyGS1128, nil
	case SymbologyQR, SymbologyDataMatrix:
		return Symbology(s), nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedSymbology, s)
}

func (r *SymbolRendererImpl) Render(ctx context.Context, payload gs1.Payload, symbology Symbology) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	symbol, err := r.encode(payload, symbology)
	if err != nil {
		return nil, err
	}

	face := basicfont.Face7x13
	textHeight := face.Metrics().Height.Ceil()
	drawer := &font.Drawer{Src: image.Black, Face: face}
	textWidth := drawer.MeasureString(payload.HumanReadable).Ceil()

	symbolBounds := symbol.Bounds()
	contentWidth := max(symbolBounds.Dx(), textWidth)
	width := contentWidth + 2*r.opts.QuietZone
	height := symbolBounds.Dy() + textHeight + 3*r.opts.QuietZone/2

	canvas := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	symbolX := (width - symbolBounds.Dx()) / 2
	symbolY := r.opts.QuietZone / 2
	target := image.Rect(symbolX, symbolY, symbolX+symbolBounds.Dx(), symbolY+symbolBounds.Dy())
	draw.Draw(canvas, target, symbol, symbolBounds.Min, draw.Over)

	drawer.Dst = canvas
	baseline := symbolY + symbolBounds.Dy() + r.opts.QuietZone/2 + face.Metrics().Ascent.Ceil()
	drawer.Dot = fixed.P((width-textWidth)/2, baseline)
	drawer.DrawString(payload.HumanReadable)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("failed to encode label image: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *SymbolRendererImpl) encode(payload gs1.Payload, symbology Symbology) (barcode.Barcode, error) {
	var (
		symbol barcode.Barcode
		err    error
	)
	switch symbology {
	case "", SymbologyGS1128:
		// gs1.FNC1 is the same rune code128 treats as function 1.
		symbol, err = code128.Encode(payload.ElementString)
		if err != nil {
			return nil, fmt.Errorf("failed to encode gs1-128 symbol: %w", err)
		}
		b := symbol.Bounds()
		return barcode.Scale(symbol, b.Dx()*r.opts.ModuleWidth, r.opts.BarHeight)
	case SymbologyQR:
		symbol, err = qr.Encode(payload.Encoded, qr.M, qr.Auto)
	case SymbologyDataMatrix:
		symbol, err = datamatrix.Encode(payload.Encoded)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSymbology, symbology)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s symbol: %w", symbology, err)
	}
	b := symbol.Bounds()
	scale := 2 * r.opts.ModuleWidth
	return barcode.Scale(symbol, b.Dx()*scale, b.Dy()*scale)
}
