package dsp

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ResizeBilinear rescales a 2-D spectrogram to exactly (targetH x targetW)
// using order-1 (bilinear) interpolation, then crops to eliminate any rounding
// overshoot. Fails on empty input or non-positive scale factors.
func ResizeBilinear(src *mat.Dense, targetH, targetW int) (*mat.Dense, error) {
	if src == nil {
		return nil, errors.New("nil spectrogram")
	}
	srcH, srcW := src.Dims()
	if srcH == 0 || srcW == 0 {
		return nil, errors.New("spectrogram cannot be empty")
	}

	heightScale := float64(targetH) / float64(srcH)
	widthScale := float64(targetW) / float64(srcW)
	if heightScale <= 0 || widthScale <= 0 {
		return nil, fmt.Errorf("invalid scaling factors: height=%f, width=%f", heightScale, widthScale)
	}

	out := mat.NewDense(targetH, targetW, nil)
	for r := 0; r < targetH; r++ {
		srcY := sourcePosition(r, targetH, srcH)
		y0 := int(srcY)
		y1 := y0 + 1
		if y1 >= srcH {
			y1 = srcH - 1
		}
		fy := srcY - float64(y0)

		for c := 0; c < targetW; c++ {
			srcX := sourcePosition(c, targetW, srcW)
			x0 := int(srcX)
			x1 := x0 + 1
			if x1 >= srcW {
				x1 = srcW - 1
			}
			fx := srcX - float64(x0)

			top := src.At(y0, x0)*(1-fx) + src.At(y0, x1)*fx
			bottom := src.At(y1, x0)*(1-fx) + src.At(y1, x1)*fx
			out.Set(r, c, top*(1-fy)+bottom*fy)
		}
	}

	// interpolation already lands on the target grid; the slice below is the
	// crop step guarding against overshoot if the kernel ever changes
	return out.Slice(0, targetH, 0, targetW).(*mat.Dense), nil
}

func sourcePosition(dst, dstSize, srcSize int) float64 {
	if dstSize <= 1 || srcSize <= 1 {
		return 0
	}
	return float64(dst) * float64(srcSize-1) / float64(dstSize-1)
}

// NormalizeUnit rescales matrix values into [0, 1] by min-max normalization.
// A constant matrix maps to all zeros.
func NormalizeUnit(spec *mat.Dense) *mat.Dense {
	rows, cols := spec.Dims()
	minV := spec.At(0, 0)
	maxV := minV
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := spec.At(r, c)
			if v < minV {
				minV = v
			}
			if v > maxV {
				maxV = v
			}
		}
	}

	out := mat.NewDense(rows, cols, nil)
	span := maxV - minV
	if span == 0 {
		return out
	}
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			out.Set(r, c, (spec.At(r, c)-minV)/span)
		}
	}
	return out
}
