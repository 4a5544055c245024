package damage

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/nfnt/resize"
)

// InputSize is the square edge the detector was exported with.
const InputSize = 640

// InputShape is the NCHW shape of the model input.
var InputShape = []int64{1, 3, InputSize, InputSize}

// MaxPixels caps width×height of an accepted image. Larger images are
// refused from their header, before any pixel buffer is allocated.
const MaxPixels = 178956970

// Preprocess decodes an image and converts it into the model input tensor:
// RGB, resized to InputSize×InputSize without keeping the aspect ratio,
// channel-first, scaled to [0,1].
func Preprocess(raw []byte) (Tensor, error) {
	if len(raw) == 0 {
		return Tensor{}, &ImageDecodeError{Err: errors.New("empty image")}
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return Tensor{}, &ImageDecodeError{Err: err}
	}
	if pixels := int64(cfg.Width) * int64(cfg.Height); pixels > MaxPixels {
		return Tensor{}, &ImageDecodeError{Err: fmt.Errorf("image is %dx%d, over the %d pixel limit", cfg.Width, cfg.Height, MaxPixels)}
	}

	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return Tensor{}, &ImageDecodeError{Err: err}
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return Tensor{}, &ImageDecodeError{Err: errors.New("image has no pixels")}
	}

	resized := resize.Resize(InputSize, InputSize, toRGB(img), resize.Bilinear)
	return toTensor(resized), nil
}

// toRGB drops alpha without compositing and expands grayscale and paletted
// sources, leaving an opaque 8-bit RGB image.
func toRGB(img image.Image) *image.RGBA {
	bounds := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			c := color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
			out.SetRGBA(x-bounds.Min.X, y-bounds.Min.Y, color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff})
		}
	}
	return out
}

func toTensor(img image.Image) Tensor {
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	plane := width * height
	data := make([]float32, 3*plane)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()

			i := y*width + x
			data[i] = float32(r>>8) / 255.0
			data[plane+i] = float32(g>>8) / 255.0
			data[2*plane+i] = float32(b>>8) / 255.0
		}
	}

	return Tensor{
		Shape: []int64{1, 3, int64(height), int64(width)},
		Data:  data,
	}
}
