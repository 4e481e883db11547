package imageprocessor

import (
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"perceptive/logging"
	"perceptive/types"
)

// GoImageHasher computes the perceptual hash in pure Go, for hosts without OpenCV
type GoImageHasher struct{}

// Hash decodes the image at path, discards alpha and computes its pHash
func (h *GoImageHasher) Hash(path string) (types.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, hashingFailure(path, err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return 0, hashingFailure(path, fmt.Errorf("cannot decode image: %w", err))
	}

	hash, err := goimagehash.PerceptionHash(stripAlpha(img))
	if err != nil {
		return 0, hashingFailure(path, err)
	}

	result := types.Hash(hash.GetHash())
	logging.DebugLog("Hashed %s (%s) with goimagehash: %s", path, format, result)
	return result, nil
}

type opaqueImage interface {
	Opaque() bool
}

// stripAlpha turns the alpha channel off, keeping the stored colour of each pixel
func stripAlpha(img image.Image) image.Image {
	if o, ok := img.(opaqueImage); ok && o.Opaque() {
		return img
	}

	bounds := img.Bounds()
	out := image.NewNRGBA(bounds)
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			c.A = 0xff
			out.SetNRGBA(x, y, c)
		}
	}
	return out
}
