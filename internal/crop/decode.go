package crop

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// Fallback decoders for formats the local OpenCV build lacks
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/spf13/afero"
	"gocv.io/x/gocv"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when a frame cannot be opened or decoded.
var ErrDecode = errors.New("cannot decode frame")

// decodeFrame reads path from fs and decodes it into a BGR Mat, the same
// way cv2.imread does. Formats OpenCV rejects go through image.Decode.
func decodeFrame(fs afero.Fs, path string) (gocv.Mat, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err == nil && !mat.Empty() {
		return mat, nil
	}
	if err == nil {
		mat.Close()
	}

	img, _, decErr := image.Decode(bytes.NewReader(data))
	if decErr != nil {
		return gocv.Mat{}, fmt.Errorf("%w: %s: %v", ErrDecode, path, decErr)
	}
	return toBGR(img)
}

// FindFile decodes the frame at path and returns its content rectangle
// along with the frame size.
func (f *Finder) FindFile(fs afero.Fs, path string) (Rect, image.Rectangle, error) {
	mat, err := decodeFrame(fs, path)
	if err != nil {
		return Rect{}, image.Rectangle{}, err
	}
	defer mat.Close()

	bounds := image.Rect(0, 0, mat.Cols(), mat.Rows())
	r, err := f.FindMat(mat)
	return r, bounds, err
}
