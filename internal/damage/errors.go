package damage

import "fmt"

// ImageDecodeError reports bytes that could not be decoded as an image.
type ImageDecodeError struct {
	Err error
}

func (e *ImageDecodeError) Error() string {
	return fmt.Sprintf("image decode failed: %v", e.Err)
}

func (e *ImageDecodeError) Unwrap() error {
	return e.Err
}

// InferenceError reports a failed model call or an output the scorer cannot read.
type InferenceError struct {
	Err error
}

func (e *InferenceError) Error() string {
	return fmt.Sprintf("inference failed: %v", e.Err)
}

func (e *InferenceError) Unwrap() error {
	return e.Err
}
