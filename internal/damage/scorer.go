package damage

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
)

const (
	// InputName is the model input slot the tensor is bound to.
	InputName = "images"
	// ConfidenceChannel is the per-detection channel holding the damage confidence.
	ConfidenceChannel = 4
)

// Inferer runs the damage detection model on a single named input.
type Inferer interface {
	Infer(ctx context.Context, inputName string, input Tensor) (Tensor, error)
}

// InferFunc adapts a plain function to Inferer.
type InferFunc func(ctx context.Context, inputName string, input Tensor) (Tensor, error)

func (f InferFunc) Infer(ctx context.Context, inputName string, input Tensor) (Tensor, error) {
	return f(ctx, inputName, input)
}

// Observer receives the latency and outcome of every model call.
type Observer interface {
	ObserveInference(elapsed time.Duration, err error)
}

// Scorer turns a vehicle photo into a damage fraction in [0,1].
type Scorer struct {
	inferer  Inferer
	logger   *zap.Logger
	observer Observer
}

type Option func(*Scorer)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Scorer) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(s *Scorer) {
		s.observer = observer
	}
}

func NewScorer(inferer Inferer, opts ...Option) *Scorer {
	s := &Scorer{
		inferer: inferer,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("damage_scorer")
	return s
}

// Score preprocesses the image, runs the model once and returns the highest
// detection confidence. It returns 0 when the model reports no detections.
func (s *Scorer) Score(ctx context.Context, image []byte) (float64, error) {
	input, err := Preprocess(image)
	if err != nil {
		s.logger.Debug("image rejected", zap.Error(err), zap.Int("bytes", len(image)))
		return 0, err
	}

	start := time.Now()
	out, err := s.inferer.Infer(ctx, InputName, input)
	elapsed := time.Since(start)
	if err != nil {
		err = &InferenceError{Err: err}
	}
	if s.observer != nil {
		s.observer.ObserveInference(elapsed, err)
	}
	if err != nil {
		s.logger.Error("model call failed", zap.Error(err), zap.Duration("elapsed", elapsed))
		return 0, err
	}

	score, err := MaxConfidence(out)
	if err != nil {
		s.logger.Error("unusable model output", zap.Error(err), zap.Int64s("shape", out.Shape))
		return 0, err
	}

	s.logger.Debug("image scored",
		zap.Float64("damage", score),
		zap.Int64s("output_shape", out.Shape),
		zap.Duration("elapsed", elapsed),
	)
	return score, nil
}

// MaxConfidence reduces a [batch][detection][channel] output to the peak
// confidence over the first batch element. The worst detected defect wins.
func MaxConfidence(out Tensor) (float64, error) {
	view, err := viewDetections(out)
	if err != nil {
		return 0, &InferenceError{Err: err}
	}
	if view.count == 0 {
		return 0, nil
	}
	if view.channels <= ConfidenceChannel {
		return 0, &InferenceError{Err: fmt.Errorf("output has %d channels, confidence is channel %d", view.channels, ConfidenceChannel)}
	}

	peak := math.Inf(-1)
	for d := 0; d < view.count; d++ {
		conf := float64(view.at(d, ConfidenceChannel))
		if math.IsNaN(conf) {
			return 0, &InferenceError{Err: errors.New("model produced a NaN confidence")}
		}
		if conf > peak {
			peak = conf
		}
	}
	return math.Min(math.Max(peak, 0), 1), nil
}
