package imageprocessor

import (
	"fmt"
	"image"
	"sort"

	"perceptive/logging"
	"perceptive/types"

	"gocv.io/x/gocv"
)

// GocvHasher computes a DCT perceptual hash with OpenCV
type GocvHasher struct {
	registry *ImageLoaderRegistry
}

// NewGocvHasher creates a hasher using the default loader registry
func NewGocvHasher() *GocvHasher {
	return &GocvHasher{registry: NewImageLoaderRegistry()}
}

// Hash loads the image at path and computes its perceptual hash
func (h *GocvHasher) Hash(path string) (types.Hash, error) {
	img, err := h.registry.LoadImage(path)
	if err != nil {
		return 0, hashingFailure(path, err)
	}
	defer img.Close()

	hash, err := ComputePerceptualHash(img)
	if err != nil {
		return 0, hashingFailure(path, err)
	}

	logging.DebugLog("Hashed %s with gocv: %s", path, hash)
	return hash, nil
}

// ComputePerceptualHash computes a 64-bit DCT hash: grayscale, 7x7 mean
// filter, 32x32 resize, DCT, then the 8x8 block of coefficients just past the
// DC row and column thresholded at its median. Bit i (LSB first) is
// coefficient i of that block in row-major order.
func ComputePerceptualHash(img gocv.Mat) (types.Hash, error) {
	if img.Empty() {
		return 0, fmt.Errorf("cannot compute hash for empty image")
	}

	// Convert to grayscale if not already
	gray := gocv.NewMat()
	defer gray.Close()

	if img.Channels() != 1 {
		gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)
	} else {
		img.CopyTo(&gray)
	}

	blurred := gocv.NewMat()
	defer blurred.Close()
	gocv.Blur(gray, &blurred, image.Point{X: 7, Y: 7})

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(blurred, &resized, image.Point{X: 32, Y: 32}, 0, 0, gocv.InterpolationLinear)

	// Convert to float for DCT
	floatImg := gocv.NewMat()
	defer floatImg.Close()
	resized.ConvertTo(&floatImg, gocv.MatTypeCV32F)

	dct := gocv.NewMat()
	defer dct.Close()

	gocv.DCT(floatImg, &dct, 0)
	if dct.Empty() || dct.Rows() < 9 || dct.Cols() < 9 {
		return 0, fmt.Errorf("DCT produced no coefficients")
	}

	lowFreq := dct.Region(image.Rect(1, 1, 9, 9))
	defer lowFreq.Close()

	values := make([]float32, 0, 64)
	for y := 0; y < lowFreq.Rows(); y++ {
		for x := 0; x < lowFreq.Cols(); x++ {
			values = append(values, lowFreq.GetFloatAt(y, x))
		}
	}

	return packBits(values, calculateMedian(values)), nil
}

// packBits sets bit i when values[i] is strictly above the threshold
func packBits(values []float32, threshold float32) types.Hash {
	var hash uint64
	for i, v := range values {
		if i >= 64 {
			break
		}
		if v > threshold {
			hash |= 1 << uint(i)
		}
	}
	return types.Hash(hash)
}

// calculateMedian calculates the median value of a float32 array
func calculateMedian(values []float32) float32 {
	// Make a copy to avoid modifying the original slice
	valuesCopy := make([]float32, len(values))
	copy(valuesCopy, values)

	sort.Slice(valuesCopy, func(i, j int) bool {
		return valuesCopy[i] < valuesCopy[j]
	})

	length := len(valuesCopy)
	if length == 0 {
		return 0
	} else if length%2 == 0 {
		return (valuesCopy[length/2-1] + valuesCopy[length/2]) / 2
	} else {
		return valuesCopy[length/2]
	}
}
