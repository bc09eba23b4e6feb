// Package preprocess turns decoded images into the normalised NHWC float32
// tensor the EfficientNet-Lite4 classifier consumes.
package preprocess

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
)

const (
	ResizeSize = 256
	CropSize   = 224
	Channels   = 3
)

// ImageNet channel statistics, R, G, B.
var (
	Mean = [Channels]float32{0.485, 0.456, 0.406}
	Std  = [Channels]float32{0.229, 0.224, 0.225}
)

// Tensor is a dense float32 tensor in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// InputShape is the batch, height, width, channel shape every Tensor produced
// here has.
func InputShape() []int64 {
	return []int64{1, CropSize, CropSize, Channels}
}

// Len returns the number of elements the shape describes.
func (t Tensor) Len() int {
	if len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= int(d)
	}
	return n
}

// At returns the value at batch 0, row y, column x, channel c.
func (t Tensor) At(y, x, c int) float32 {
	return t.Data[(y*CropSize+x)*Channels+c]
}

type Filter string

const (
	Nearest  Filter = "nearest"
	Bilinear Filter = "bilinear"
	Bicubic  Filter = "bicubic"
	Lanczos  Filter = "lanczos"

	// DefaultFilter matches the bicubic resize the reference model was
	// validated with.
	DefaultFilter = Bicubic
)

func ParseFilter(name string) (Filter, error) {
	switch f := Filter(name); f {
	case Nearest, Bilinear, Bicubic, Lanczos:
		return f, nil
	case "":
		return DefaultFilter, nil
	}
	return "", fmt.Errorf("unknown resample filter %q", name)
}

func (f Filter) interpolation() resize.InterpolationFunction {
	switch f {
	case Nearest:
		return resize.NearestNeighbor
	case Bilinear:
		return resize.Bilinear
	case Lanczos:
		return resize.Lanczos3
	default:
		return resize.Bicubic
	}
}

// Image preprocesses img with DefaultFilter.
func Image(img image.Image) Tensor {
	return ImageWith(img, DefaultFilter)
}

// ImageWith converts img to opaque RGB, resizes it to 256x256 with filter,
// center-crops 224x224 and normalises every channel with Mean and Std.
func ImageWith(img image.Image, filter Filter) Tensor {
	rgb := ToRGB(img)
	resized := resize.Resize(ResizeSize, ResizeSize, rgb, filter.interpolation())

	offset := (ResizeSize - CropSize) / 2
	cropped := imaging.Crop(resized, image.Rect(offset, offset, offset+CropSize, offset+CropSize))

	data := make([]float32, CropSize*CropSize*Channels)
	for y := 0; y < CropSize; y++ {
		row := cropped.Pix[y*cropped.Stride : y*cropped.Stride+CropSize*4]
		for x := 0; x < CropSize; x++ {
			px := row[x*4 : x*4+Channels]
			base := (y*CropSize + x) * Channels
			for c := 0; c < Channels; c++ {
				v := float32(px[c]) / 255.0
				data[base+c] = (v - Mean[c]) / Std[c]
			}
		}
	}

	return Tensor{Shape: InputShape(), Data: data}
}

// ToRGB returns an opaque copy of img. Colour values are kept as stored and
// the alpha channel is discarded rather than composited.
func ToRGB(img image.Image) *image.NRGBA {
	dst := imaging.Clone(img)
	for i := 3; i < len(dst.Pix); i += 4 {
		dst.Pix[i] = 0xff
	}
	return dst
}
