package damage

import (
	"fmt"
	"math"
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Elements returns the number of values the shape describes, or -1 when a
// dimension is negative or the product does not fit in an int64.
func (t Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	for _, dim := range t.Shape {
		if dim < 0 {
			return -1
		}
		if dim == 0 {
			return 0
		}
	}
	n := int64(1)
	for _, dim := range t.Shape {
		if n > math.MaxInt64/dim {
			return -1
		}
		n *= dim
	}
	return n
}

// detections views a model output as [batch][detection][channel].
type detections struct {
	count    int
	channels int
	data     []float32
}

func viewDetections(out Tensor) (detections, error) {
	if len(out.Shape) != 3 {
		return detections{}, fmt.Errorf("expected rank 3 output [batch, detections, channels], got shape %v", out.Shape)
	}
	for _, dim := range out.Shape {
		if dim < 0 {
			return detections{}, fmt.Errorf("negative dimension in output shape %v", out.Shape)
		}
	}
	if out.Shape[0] < 1 {
		return detections{}, fmt.Errorf("output has an empty batch, shape %v", out.Shape)
	}
	n := out.Elements()
	if n < 0 {
		return detections{}, fmt.Errorf("output shape %v overflows", out.Shape)
	}
	if int64(len(out.Data)) != n {
		return detections{}, fmt.Errorf("output shape %v needs %d values, got %d", out.Shape, n, len(out.Data))
	}
	return detections{
		count:    int(out.Shape[1]),
		channels: int(out.Shape[2]),
		data:     out.Data,
	}, nil
}

// at returns channel c of detection d in the first batch element.
func (d detections) at(detection, channel int) float32 {
	return d.data[detection*d.channels+channel]
}
