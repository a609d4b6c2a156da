// Package crop locates the content region of a letterboxed frame.
package crop

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"
)

// DefaultThreshold is the summed per-channel distance a pixel must exceed
// to count as content.
const DefaultThreshold = 30

// DefaultLetterbox is the dark gray most letterboxed sources pad with.
var DefaultLetterbox = Color{R: 24, G: 24, B: 24}

// ErrNoContent is returned when every pixel is within the threshold of the
// letterbox color.
var ErrNoContent = errors.New("no content found")

// Color is an 8-bit RGB reference color.
type Color struct {
	R, G, B uint8
}

// scalar returns c in OpenCV's BGR channel order.
func (c Color) scalar() gocv.Scalar {
	return gocv.NewScalar(float64(c.B), float64(c.G), float64(c.R), 0)
}

// Rect is a crop rectangle in pixel coordinates.
//
// W and H are last-minus-first index spans, so a content region covering
// columns 10 through 19 yields W == 9.
type Rect struct {
	X, Y, W, H int
}

// String renders the rectangle as "x y w h".
func (r Rect) String() string {
	return fmt.Sprintf("%d %d %d %d", r.X, r.Y, r.W, r.H)
}

// Finder computes crop rectangles against a fixed letterbox color.
type Finder struct {
	Letterbox Color
	Threshold int
}

// NewFinder returns a Finder for the given letterbox color and threshold.
func NewFinder(letterbox Color, threshold int) *Finder {
	return &Finder{Letterbox: letterbox, Threshold: threshold}
}

// DefaultFinder uses DefaultLetterbox and DefaultThreshold.
func DefaultFinder() *Finder {
	return NewFinder(DefaultLetterbox, DefaultThreshold)
}

// Find returns the bounding rectangle of all content pixels in img.
// Coordinates are relative to img.Bounds().Min.
func (f *Finder) Find(img image.Image) (Rect, error) {
	mat, err := toBGR(img)
	if err != nil {
		return Rect{}, err
	}
	defer mat.Close()
	return f.FindMat(mat)
}

// FindMat returns the bounding rectangle of all content pixels in a
// BGR 8-bit 3-channel Mat, as produced by gocv.IMRead with IMReadColor.
func (f *Finder) FindMat(src gocv.Mat) (Rect, error) {
	if src.Empty() {
		return Rect{}, fmt.Errorf("%w: empty frame", ErrDecode)
	}
	if src.Type() != gocv.MatTypeCV8UC3 {
		return Rect{}, fmt.Errorf("%w: want 8-bit BGR frame, got type %v", ErrDecode, src.Type())
	}

	mask := f.contentMask(src)
	defer mask.Close()

	if gocv.CountNonZero(mask) == 0 {
		return Rect{}, fmt.Errorf("%w: every pixel within %d of letterbox %v", ErrNoContent, f.Threshold, f.Letterbox)
	}

	// A row or column holds content iff its max over the mask is non-zero
	rowMax := gocv.NewMat()
	defer rowMax.Close()
	gocv.Reduce(mask, &rowMax, 1, gocv.ReduceMax, -1)

	colMax := gocv.NewMat()
	defer colMax.Close()
	gocv.Reduce(mask, &colMax, 0, gocv.ReduceMax, -1)

	rows := make([]bool, mask.Rows())
	for y := range rows {
		rows[y] = rowMax.GetUCharAt(y, 0) != 0
	}
	cols := make([]bool, mask.Cols())
	for x := range cols {
		cols[x] = colMax.GetUCharAt(0, x) != 0
	}

	top, bottom := span(rows)
	left, right := span(cols)

	return Rect{
		X: left,
		Y: top,
		W: right - left,
		H: bottom - top,
	}, nil
}

// contentMask returns an 8-bit single-channel Mat that is 255 where the
// summed absolute channel difference from the letterbox exceeds the threshold.
func (f *Finder) contentMask(src gocv.Mat) gocv.Mat {
	ref := gocv.NewMatWithSizeFromScalar(f.Letterbox.scalar(), src.Rows(), src.Cols(), gocv.MatTypeCV8UC3)
	defer ref.Close()

	diff := gocv.NewMat()
	defer diff.Close()
	gocv.AbsDiff(src, ref, &diff)

	channels := gocv.Split(diff)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	// Sum in float so 3*255 cannot saturate
	dist := gocv.NewMat()
	defer dist.Close()
	channels[0].ConvertTo(&dist, gocv.MatTypeCV32F)
	for _, ch := range channels[1:] {
		wide := gocv.NewMat()
		ch.ConvertTo(&wide, gocv.MatTypeCV32F)
		gocv.Add(dist, wide, &dist)
		wide.Close()
	}

	// ThresholdBinary keeps values strictly greater than thresh
	binary := gocv.NewMat()
	defer binary.Close()
	gocv.Threshold(dist, &binary, float32(f.Threshold), 255, gocv.ThresholdBinary)

	mask := gocv.NewMat()
	binary.ConvertTo(&mask, gocv.MatTypeCV8U)
	return mask
}

// toBGR copies img into an 8-bit BGR Mat.
func toBGR(img image.Image) (gocv.Mat, error) {
	b := img.Bounds()
	if b.Empty() {
		return gocv.NewMat(), nil
	}

	data := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			data = append(data, c.B, c.G, c.R)
		}
	}

	mat, err := gocv.NewMatFromBytes(b.Dy(), b.Dx(), gocv.MatTypeCV8UC3, data)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return mat, nil
}

// span returns the first and last true index; callers guarantee one exists.
func span(marks []bool) (first, last int) {
	first, last = -1, -1
	for i, m := range marks {
		if !m {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}
	return first, last
}
