package valuation

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Brownie44l1/car-valuation-api/internal/damage"
	"github.com/Brownie44l1/car-valuation-api/internal/logging"
	"github.com/Brownie44l1/car-valuation-api/internal/pricing"
)

// DamageScorer turns an image into a damage fraction.
type DamageScorer interface {
	Score(ctx context.Context, image []byte) (float64, error)
}

// PriceEstimator prices a vehicle for a given damage fraction.
type PriceEstimator interface {
	Estimate(attrs pricing.Attributes, damage float64) (pricing.Estimate, error)
}

// Recorder receives valuation outcomes for metrics.
type Recorder interface {
	ObserveDamage(fraction float64)
	ObservePrice(price float64)
	ObserveFailure(kind string)
	ObserveCache(hit bool)
}

type noopRecorder struct{}

func (noopRecorder) ObserveDamage(float64) {}
func (noopRecorder) ObservePrice(float64)  {}
func (noopRecorder) ObserveFailure(string) {}
func (noopRecorder) ObserveCache(bool)     {}

// Request is a single valuation: vehicle attributes plus the uploaded photo.
type Request struct {
	Attributes pricing.Attributes
	Image      []byte
}

// DamageResult is the outcome of scoring a photo alone.
type DamageResult struct {
	RequestID string  `json:"request_id"`
	Damage    float64 `json:"damage"`
	Label     string  `json:"damage_label"`
	Cached    bool    `json:"cached"`
}

// Result is a priced valuation.
type Result struct {
	RequestID   string           `json:"request_id"`
	Price       float64          `json:"price"`
	Damage      float64          `json:"damage"`
	DamageLabel string           `json:"damage_label"`
	Brand       string           `json:"brand"`
	Estimate    pricing.Estimate `json:"estimate"`
	Cached      bool             `json:"cached"`
}

// Service composes the damage scorer and the price estimator per request.
type Service struct {
	scorer       DamageScorer
	estimator    PriceEstimator
	cache        DamageCache
	recorder     Recorder
	logger       *zap.Logger
	cacheTTL     time.Duration
	modelVersion string
}

type Option func(*Service)

// WithCache enables the damage score cache. A nil cache disables it.
func WithCache(cache DamageCache, ttl time.Duration) Option {
	return func(s *Service) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(s *Service) {
		if recorder != nil {
			s.recorder = recorder
		}
	}
}

// WithModelVersion namespaces cache keys so a new model never reads old scores.
func WithModelVersion(version string) Option {
	return func(s *Service) {
		s.modelVersion = version
	}
}

func NewService(scorer DamageScorer, estimator PriceEstimator, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		scorer:    scorer,
		estimator: estimator,
		recorder:  noopRecorder{},
		logger:    logger.Named("valuation_service"),
		cacheTTL:  10 * time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Valuate scores the photo and prices the vehicle. Attributes are validated
// before the model runs.
func (s *Service) Valuate(ctx context.Context, req Request) (*Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "valuation.valuate", requestID)

	if err := pricing.ValidateAttributes(req.Attributes); err != nil {
		return nil, s.fail("valuation.validate", requestID, err)
	}

	fraction, cached, err := s.scoreDamage(ctx, requestID, req.Image)
	if err != nil {
		return nil, s.fail("valuation.score_damage", requestID, err)
	}

	result, err := s.price(requestID, req.Attributes, fraction)
	if err != nil {
		return nil, s.fail("valuation.estimate_price", requestID, err)
	}
	result.Cached = cached

	opLogger.Info("vehicle valued",
		zap.String("brand", result.Brand),
		zap.Float64("damage", fraction),
		zap.Bool("cached", cached),
		zap.Float64("total_penalty", result.Estimate.TotalPenalty),
		zap.Float64("price", result.Price),
	)
	return result, nil
}

// Score returns the damage fraction for a photo without pricing it.
func (s *Service) Score(ctx context.Context, image []byte) (*DamageResult, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "valuation.score", requestID)

	fraction, cached, err := s.scoreDamage(ctx, requestID, image)
	if err != nil {
		return nil, s.fail("valuation.score_damage", requestID, err)
	}

	opLogger.Info("photo scored", zap.Float64("damage", fraction), zap.Bool("cached", cached))
	return &DamageResult{
		RequestID: requestID,
		Damage:    fraction,
		Label:     DamageLabel(fraction),
		Cached:    cached,
	}, nil
}

// Quote prices a vehicle for an already known damage fraction.
func (s *Service) Quote(ctx context.Context, attrs pricing.Attributes, fraction float64) (*Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(s.logger, "valuation.quote", requestID)

	result, err := s.price(requestID, attrs, fraction)
	if err != nil {
		return nil, s.fail("valuation.estimate_price", requestID, err)
	}

	opLogger.Info("vehicle quoted", zap.String("brand", result.Brand), zap.Float64("price", result.Price))
	return result, nil
}

func (s *Service) price(requestID string, attrs pricing.Attributes, fraction float64) (*Result, error) {
	estimate, err := s.estimator.Estimate(attrs, fraction)
	if err != nil {
		return nil, err
	}
	s.recorder.ObservePrice(estimate.Price)

	return &Result{
		RequestID:   requestID,
		Price:       estimate.Price,
		Damage:      fraction,
		DamageLabel: DamageLabel(fraction),
		Brand:       titleBrand(attrs.Brand),
		Estimate:    estimate,
	}, nil
}

func (s *Service) scoreDamage(ctx context.Context, requestID string, image []byte) (float64, bool, error) {
	key := s.cacheKey(image)
	if fraction, ok := s.cachedDamage(ctx, requestID, key); ok {
		s.recorder.ObserveDamage(fraction)
		return fraction, true, nil
	}

	fraction, err := s.scorer.Score(ctx, image)
	if err != nil {
		return 0, false, err
	}
	s.recorder.ObserveDamage(fraction)

	if s.cache != nil && key != "" {
		if err := s.cache.StoreDamage(ctx, key, fraction, s.cacheTTL); err != nil {
			logging.WithOperation(s.logger, "cache.set.damage", requestID).Warn("failed to cache damage score", zap.Error(err))
		}
	}
	return fraction, false, nil
}

func (s *Service) cachedDamage(ctx context.Context, requestID, key string) (float64, bool) {
	if s.cache == nil || key == "" {
		return 0, false
	}

	fraction, found, err := s.cache.LookupDamage(ctx, key)
	if err != nil {
		logging.WithOperation(s.logger, "cache.get.damage", requestID).Warn("failed to read cache", zap.Error(err))
		s.recorder.ObserveCache(false)
		return 0, false
	}
	if !found {
		s.recorder.ObserveCache(false)
		return 0, false
	}
	if math.IsNaN(fraction) || fraction < 0 || fraction > 1 {
		logging.WithOperation(s.logger, "cache.get.damage", requestID).Warn("discarding out of range cached score", zap.Float64("value", fraction))
		s.recorder.ObserveCache(false)
		return 0, false
	}
	s.recorder.ObserveCache(true)
	return fraction, true
}

func (s *Service) cacheKey(image []byte) string {
	if len(image) == 0 {
		return ""
	}
	hash := sha1.Sum(image)
	if s.modelVersion == "" {
		return fmt.Sprintf("damage:%s", hex.EncodeToString(hash[:]))
	}
	return fmt.Sprintf("damage:%s:%s", s.modelVersion, hex.EncodeToString(hash[:]))
}

func (s *Service) fail(operation, requestID string, err error) error {
	kind := Kind(err)
	s.recorder.ObserveFailure(kind)

	opErr := &logging.OperationError{Operation: operation, RequestID: requestID, Kind: kind, Err: err}
	if kind == KindInternal || kind == KindInference {
		s.logger.Error("valuation failed", opErr.Fields()...)
	} else {
		s.logger.Warn("valuation rejected", opErr.Fields()...)
	}
	return opErr
}

// titleBrand formats a brand for display. Casers are not safe to share.
func titleBrand(brand string) string {
	return cases.Title(language.Und).String(brand)
}

// DamageLabel renders a fraction as a whole percentage, e.g. 0.2 → "20%".
func DamageLabel(fraction float64) string {
	return strconv.FormatFloat(fraction*100, 'f', 0, 64) + "%"
}

const (
	KindImageDecode      = "image_decode_error"
	KindInference        = "inference_error"
	KindInvalidAttribute = "invalid_attribute"
	KindInternal         = "internal"
)

// Kind classifies err into one of the valuation failure kinds.
func Kind(err error) string {
	var (
		decodeErr *damage.ImageDecodeError
		inferErr  *damage.InferenceError
		attrErr   *pricing.InvalidAttributeError
	)
	switch {
	case errors.As(err, &decodeErr):
		return KindImageDecode
	case errors.As(err, &inferErr):
		return KindInference
	case errors.As(err, &attrErr):
		return KindInvalidAttribute
	default:
		return KindInternal
	}
}
