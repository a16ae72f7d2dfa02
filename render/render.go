// Package render draws a layout as a raster image: the parcel, restricted
// areas and buildings, optionally over a background map.
package render

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	"image/png"
	"math"
	"os"

	"github.com/paulmach/orb"
	"golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

var (
	ParcelColor     = color.NRGBA{R: 0xd3, G: 0xd3, B: 0xd3, A: 0x80}
	RestrictedColor = color.NRGBA{R: 0xff, A: 0x4d}
	BuildingColor   = color.NRGBA{B: 0xff, A: 0xff}
	EdgeColor       = color.NRGBA{A: 0xff}
)

// Scene holds geometry in one planar reference. Y grows up.
type Scene struct {
	Parcel     orb.MultiPolygon
	Restricted []orb.Polygon
	Buildings  []orb.Point

	// Background is stretched over the whole canvas when set.
	Background image.Image
}

type Options struct {
	Width, Height int
	Padding       int
	PointRadius   float64
	// EdgeWidth outlines parcel and restricted rings in pixels, 0 skips it.
	EdgeWidth float64
}

func OptionsDefault() Options {
	return Options{
		Width:       1024,
		Height:      1024,
		Padding:     16,
		PointRadius: 3,
		EdgeWidth:   1,
	}
}

func Render(scene Scene, opts Options) *image.RGBA {
	canvas := image.NewRGBA(image.Rect(0, 0, opts.Width, opts.Height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	if scene.Background != nil {
		draw.BiLinear.Scale(canvas, canvas.Bounds(), scene.Background, scene.Background.Bounds(), draw.Over, nil)
	}

	fit := newViewport(scene, opts)

	fillPolygons(canvas, fit, []orb.Polygon(scene.Parcel), ParcelColor)
	fillPolygons(canvas, fit, scene.Restricted, RestrictedColor)
	if opts.EdgeWidth > 0 {
		strokeRings(canvas, fit, []orb.Polygon(scene.Parcel), opts.EdgeWidth, EdgeColor)
		strokeRings(canvas, fit, scene.Restricted, opts.EdgeWidth, EdgeColor)
	}
	fillDots(canvas, fit, scene.Buildings, opts.PointRadius, BuildingColor)

	return canvas
}

func fillPolygons(dst *image.RGBA, fit viewport, polys []orb.Polygon, c color.Color) {
	if len(polys) == 0 {
		return
	}

	z := vector.NewRasterizer(dst.Bounds().Dx(), dst.Bounds().Dy())
	z.DrawOp = draw.Over
	for _, poly := range polys {
		for _, ring := range poly {
			for i, p := range ring {
				x, y := fit.pixel(p)
				if i == 0 {
					z.MoveTo(x, y)
				} else {
					z.LineTo(x, y)
				}
			}
			z.ClosePath()
		}
	}
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// strokeRings outlines every ring with one quad per edge.
func strokeRings(dst *image.RGBA, fit viewport, polys []orb.Polygon, width float64, c color.Color) {
	if len(polys) == 0 {
		return
	}

	z := vector.NewRasterizer(dst.Bounds().Dx(), dst.Bounds().Dy())
	z.DrawOp = draw.Over
	h := float32(width / 2)
	for _, poly := range polys {
		for _, ring := range poly {
			for i := 0; i+1 < len(ring); i++ {
				ax, ay := fit.pixel(ring[i])
				bx, by := fit.pixel(ring[i+1])

				dx, dy := bx-ax, by-ay
				l := float32(math.Hypot(float64(dx), float64(dy)))
				if l == 0 {
					continue
				}
				nx, ny := -dy/l*h, dx/l*h

				z.MoveTo(ax+nx, ay+ny)
				z.LineTo(bx+nx, by+ny)
				z.LineTo(bx-nx, by-ny)
				z.LineTo(ax-nx, ay-ny)
				z.ClosePath()
			}
		}
	}
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// Segments per building dot.
const dotSegments = 12

func fillDots(dst *image.RGBA, fit viewport, points []orb.Point, radius float64, c color.Color) {
	if len(points) == 0 {
		return
	}

	z := vector.NewRasterizer(dst.Bounds().Dx(), dst.Bounds().Dy())
	z.DrawOp = draw.Over
	r := float32(radius)
	for _, p := range points {
		x, y := fit.pixel(p)
		z.MoveTo(x+r, y)
		for i := 1; i < dotSegments; i++ {
			a := 2 * math.Pi * float64(i) / dotSegments
			z.LineTo(x+r*float32(math.Cos(a)), y+r*float32(math.Sin(a)))
		}
		z.ClosePath()
	}
	z.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{})
}

// viewport maps scene coordinates to pixels keeping the aspect ratio.
type viewport struct {
	bound      orb.Bound
	scale      float64
	offX, offY float64
	height     float64
}

func newViewport(scene Scene, opts Options) viewport {
	bound := scene.Parcel.Bound()
	for _, p := range scene.Buildings {
		bound = bound.Extend(p)
	}

	w, h := float64(opts.Width-2*opts.Padding), float64(opts.Height-2*opts.Padding)
	bw, bh := bound.Right()-bound.Left(), bound.Top()-bound.Bottom()

	scale := 1.0
	if bw > 0 && bh > 0 {
		scale = math.Min(w/bw, h/bh)
	}

	return viewport{
		bound:  bound,
		scale:  scale,
		offX:   float64(opts.Padding) + (w-bw*scale)/2,
		offY:   float64(opts.Padding) + (h-bh*scale)/2,
		height: float64(opts.Height),
	}
}

func (v viewport) pixel(p orb.Point) (float32, float32) {
	x := v.offX + (p[0]-v.bound.Min[0])*v.scale
	y := v.height - (v.offY + (p[1]-v.bound.Min[1])*v.scale)
	return float32(x), float32(y)
}

func LoadImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can`t open image %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("error decoding image %s: %w", path, err)
	}
	return img, nil
}

func SavePNG(path string, img image.Image) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("can`t create file %s: %w", path, err)
	}
	defer file.Close()

	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("error encoding png: %w", err)
	}
	return file.Close()
}
