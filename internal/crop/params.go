package crop

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// DefaultParamsFile is where crop parameters are written for downstream tools.
const DefaultParamsFile = "crop_params.txt"

// WriteParams writes r to path as a single "x y w h" line, replacing any
// existing file.
func WriteParams(fs afero.Fs, path string, r Rect) error {
	if err := afero.WriteFile(fs, path, []byte(r.String()+"\n"), 0644); err != nil {
		return fmt.Errorf("write crop params: %w", err)
	}
	return nil
}

// ReadParams parses a file written by WriteParams.
func ReadParams(fs afero.Fs, path string) (Rect, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return Rect{}, fmt.Errorf("read crop params: %w", err)
	}
	return ParseParams(string(data))
}

// ParseParams parses an "x y w h" line.
func ParseParams(s string) (Rect, error) {
	fields := strings.Fields(s)
	if len(fields) != 4 {
		return Rect{}, fmt.Errorf("crop params: want 4 fields, got %d", len(fields))
	}

	var vals [4]int
	for i, field := range fields {
		v, err := strconv.Atoi(field)
		if err != nil {
			return Rect{}, fmt.Errorf("crop params: field %d: %w", i, err)
		}
		if v < 0 {
			return Rect{}, fmt.Errorf("crop params: field %d is negative", i)
		}
		vals[i] = v
	}
	return Rect{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, nil
}
