// Package preprocess turns uploaded image bytes into classifier input tensors.
package preprocess

import (
	"bytes"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/oncoderma/oncoderma-go/internal/errors"
	"github.com/oncoderma/oncoderma-go/internal/logger"
)

// DefaultSize is the input dimension of the deployed skin lesion model.
const DefaultSize = 28

// Channels is the number of colour channels in every tensor.
const Channels = 3

// Options controls how an image is converted to a tensor.
type Options struct {
	Size      int  // target square dimension in pixels
	Normalize bool // scale values from [0,255] to [0,1]
}

// Batch is a single image laid out as a float32 NHWC tensor with batch size 1.
type Batch struct {
	Data   []float32
	Size   int
	Format string // decoder name, e.g. "png" or "jpeg"
}

// Shape returns the tensor dimensions as [batch, height, width, channels].
func (b *Batch) Shape() [4]int {
	return [4]int{1, b.Size, b.Size, Channels}
}

// Len returns the number of elements in the tensor.
func (b *Batch) Len() int {
	return b.Size * b.Size * Channels
}

// Tensor decodes data, resizes it to opts.Size and returns it as a batch of one.
// Decode failures are returned as invalid-image errors.
func Tensor(data []byte, opts Options) (*Batch, error) {
	if opts.Size <= 0 {
		opts.Size = DefaultSize
	}

	if len(data) == 0 {
		return nil, errors.NewInvalidImageError(errors.NewStd("empty upload"))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.NewInvalidImageError(err)
	}

	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, errors.NewInvalidImageError(errors.NewStd("image has no pixels"))
	}

	resized := imaging.Resize(img, opts.Size, opts.Size, imaging.Lanczos)

	batch := &Batch{
		Data:   pixelsToFloat32(resized, opts.Normalize),
		Size:   opts.Size,
		Format: format,
	}

	GetLogger().Trace("image preprocessed",
		logger.String("format", format),
		logger.Int("source_width", bounds.Dx()),
		logger.Int("source_height", bounds.Dy()),
		logger.Int("size", opts.Size))

	return batch, nil
}

// pixelsToFloat32 flattens an NRGBA image into HWC order. Alpha is dropped.
func pixelsToFloat32(img *image.NRGBA, normalize bool) []float32 {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	out := make([]float32, w*h*Channels)

	scale := float32(1)
	if normalize {
		scale = 1.0 / 255.0
	}

	i := 0
	for y := range h {
		for x := range w {
			c := img.NRGBAAt(x, y)
			out[i] = float32(c.R) * scale
			out[i+1] = float32(c.G) * scale
			out[i+2] = float32(c.B) * scale
			i += Channels
		}
	}
	return out
}

// Decode returns the decoded image and its format without resizing.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", errors.NewInvalidImageError(err)
	}
	return img, format, nil
}

// Extension returns a file extension for a decoder format name.
func Extension(format string) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "png", "gif", "bmp", "tiff", "webp":
		return "." + format
	default:
		return ".img"
	}
}
