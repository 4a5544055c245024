package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"

	"github.com/Brownie44l1/car-valuation-api/internal/damage"
)

// Session runs the damage detector through onnxruntime. Input and output
// tensors are allocated once and reused, so calls are serialized.
type Session struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	Metadata     Metadata
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	logger       *zap.Logger
}

// NewSession initializes the onnxruntime environment and loads the model.
// libraryPath may be empty to use the platform default shared library.
func NewSession(modelPath, metadataPath, libraryPath string, logger *zap.Logger) (*Session, error) {
	metadata, err := LoadMetadata(metadataPath)
	if err != nil {
		return nil, err
	}
	if err := metadata.validate(damage.InputShape); err != nil {
		return nil, err
	}

	if libraryPath != "" {
		ort.SetSharedLibraryPath(libraryPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		inputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		nil)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		ort.DestroyEnvironment()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("damage model loaded",
		zap.String("model_path", modelPath),
		zap.String("version", metadata.Version),
		zap.Int64s("input_shape", metadata.InputShape),
		zap.Int64s("output_shape", metadata.OutputShape),
	)

	return &Session{
		session:      session,
		Metadata:     metadata,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		logger:       logger.Named("onnx_session"),
	}, nil
}

// LoadMetadata reads and defaults the model metadata file.
func LoadMetadata(path string) (Metadata, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read metadata: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(raw, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("failed to parse metadata: %w", err)
	}
	metadata.applyDefaults()
	return metadata, nil
}

// Infer implements damage.Inferer. The returned tensor owns a copy of the output.
func (s *Session) Infer(ctx context.Context, inputName string, input damage.Tensor) (damage.Tensor, error) {
	if inputName != s.Metadata.InputName {
		return damage.Tensor{}, fmt.Errorf("model has no input %q (expects %q)", inputName, s.Metadata.InputName)
	}
	if !sameShape(input.Shape, s.Metadata.InputShape) || int64(len(input.Data)) != input.Elements() {
		return damage.Tensor{}, fmt.Errorf("input shape %v does not match model input %v", input.Shape, s.Metadata.InputShape)
	}
	if err := ctx.Err(); err != nil {
		return damage.Tensor{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	copy(s.inputTensor.GetData(), input.Data)
	if err := s.session.Run(); err != nil {
		return damage.Tensor{}, fmt.Errorf("inference failed: %w", err)
	}

	out := s.outputTensor.GetData()
	data := make([]float32, len(out))
	copy(data, out)
	shape := make([]int64, len(s.Metadata.OutputShape))
	copy(shape, s.Metadata.OutputShape)

	return damage.Tensor{Shape: shape, Data: data}, nil
}

func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.inputTensor != nil {
		s.inputTensor.Destroy()
	}
	if s.outputTensor != nil {
		s.outputTensor.Destroy()
	}
	if s.session != nil {
		s.session.Destroy()
	}
	ort.DestroyEnvironment()
}
