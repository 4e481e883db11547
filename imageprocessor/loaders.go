package imageprocessor

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"perceptive/logging"

	"gocv.io/x/gocv"
)

// StandardImageLoader reads formats OpenCV decodes natively
type StandardImageLoader struct{}

func (l *StandardImageLoader) CanLoad(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg", ".png", ".bmp", ".webp", ".tif", ".tiff":
		return true
	}
	return false
}

// LoadImage reads the file as BGR, which drops any alpha channel
func (l *StandardImageLoader) LoadImage(path string) (gocv.Mat, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return img, fmt.Errorf("failed to load image: %s", path)
	}
	return img, nil
}

// RawImageLoader converts RAW camera files with dcraw before loading
type RawImageLoader struct {
	TempDir string
}

// NewRawImageLoader creates a RAW loader that converts in the system temp dir
func NewRawImageLoader() *RawImageLoader {
	return &RawImageLoader{TempDir: os.TempDir()}
}

func (l *RawImageLoader) CanLoad(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".dng", ".raf", ".arw", ".nef", ".cr2", ".nrw", ".srf", ".orf", ".rw2", ".pef":
		return true
	}
	return false
}

func (l *RawImageLoader) LoadImage(path string) (gocv.Mat, error) {
	outFile, err := os.CreateTemp(l.TempDir, "raw_conv_*.tiff")
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("cannot create temp file for RAW conversion: %w", err)
	}
	tempFilename := outFile.Name()
	defer os.Remove(tempFilename)

	// -T = output TIFF, -c = write to stdout, -w = camera white balance
	cmd := exec.Command("dcraw", "-T", "-c", "-w", path)
	cmd.Stdout = outFile

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err = cmd.Run()
	outFile.Close()
	if err != nil {
		logging.LogWarning("dcraw conversion failed: %v, stderr: %s", err, stderr.String())
		return gocv.NewMat(), fmt.Errorf("cannot convert RAW image %s: %w", path, err)
	}

	img := gocv.IMRead(tempFilename, gocv.IMReadColor)
	if img.Empty() {
		return img, fmt.Errorf("failed to load converted RAW image: %s", path)
	}
	return img, nil
}

// ImageLoaderRegistry picks a loader by file extension
type ImageLoaderRegistry struct {
	loaders       []ImageLoader
	defaultLoader ImageLoader
}

// NewImageLoaderRegistry creates a registry with the standard and RAW loaders
func NewImageLoaderRegistry() *ImageLoaderRegistry {
	standard := &StandardImageLoader{}
	return &ImageLoaderRegistry{
		loaders:       []ImageLoader{standard, NewRawImageLoader()},
		defaultLoader: standard,
	}
}

// LoadImage loads path with the first loader that claims it. Files with an
// unknown or missing extension, such as downloads, go to the default loader
// and OpenCV sniffs the content.
func (r *ImageLoaderRegistry) LoadImage(path string) (gocv.Mat, error) {
	for _, loader := range r.loaders {
		if loader.CanLoad(path) {
			return loader.LoadImage(path)
		}
	}
	return r.defaultLoader.LoadImage(path)
}
