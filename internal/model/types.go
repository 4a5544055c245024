package model

import "fmt"

// Metadata describes the exported detector so tensors can be allocated up front.
type Metadata struct {
	InputName   string  `json:"input_name"`
	OutputName  string  `json:"output_name"`
	InputShape  []int64 `json:"input_shape"`
	OutputShape []int64 `json:"output_shape"`
	Version     string  `json:"version"`
}

func (m *Metadata) applyDefaults() {
	if m.InputName == "" {
		m.InputName = "images"
	}
	if m.OutputName == "" {
		m.OutputName = "output0"
	}
}

func (m Metadata) validate(expectedInput []int64) error {
	if !sameShape(m.InputShape, expectedInput) {
		return fmt.Errorf("model input shape %v, scorer produces %v", m.InputShape, expectedInput)
	}
	if len(m.OutputShape) != 3 {
		return fmt.Errorf("model output shape %v is not [batch, detections, channels]", m.OutputShape)
	}
	for _, dim := range m.OutputShape {
		if dim < 0 {
			return fmt.Errorf("model output shape %v has a dynamic dimension", m.OutputShape)
		}
	}
	return nil
}

func sameShape(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
