// Package imageprocessor turns an image file or URL into a 64-bit perceptual hash.
package imageprocessor

import "gocv.io/x/gocv"

// ImageLoader is the interface that all image loaders must implement
type ImageLoader interface {
	// CanLoad checks if the loader can handle the given file
	CanLoad(path string) bool

	// LoadImage loads the image as a 3-channel BGR matrix. Alpha is discarded.
	LoadImage(path string) (gocv.Mat, error)
}
