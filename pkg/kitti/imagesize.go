package kitti

import (
	"bufio"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageSizer returns the dimensions of an image file
type ImageSizer func(filename string) (width, height int, err error)

// ReadImageSize decodes only the header of an image file
func ReadImageSize(filename string) (width, height int, err error) {
	f, err := os.Open(filename)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(bufio.NewReader(f))
	if err != nil {
		return 0, 0, fmt.Errorf("Failed to read image size of %v: %w", filename, err)
	}
	return cfg.Width, cfg.Height, nil
}
