package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Brownie44l1/car-valuation-api/internal/logging"
	"github.com/Brownie44l1/car-valuation-api/internal/pricing"
	"github.com/Brownie44l1/car-valuation-api/internal/valuation"
)

// DefaultMaxUploadSize bounds a whole multipart request.
const DefaultMaxUploadSize = 10 << 20

// imageFields are the accepted form field names for the vehicle photo.
var imageFields = []string{"car_image", "image"}

// Valuator is the subset of the valuation service the HTTP layer calls.
type Valuator interface {
	Valuate(ctx context.Context, req valuation.Request) (*valuation.Result, error)
	Score(ctx context.Context, image []byte) (*valuation.DamageResult, error)
	Quote(ctx context.Context, attrs pricing.Attributes, damage float64) (*valuation.Result, error)
}

type Handler struct {
	valuator      Valuator
	brands        pricing.BrandTable
	logger        *zap.Logger
	maxUploadSize int64
}

func NewHandler(valuator Valuator, brands pricing.BrandTable, logger *zap.Logger, maxUploadSize int64) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxUploadSize <= 0 {
		maxUploadSize = DefaultMaxUploadSize
	}
	return &Handler{
		valuator:      valuator,
		brands:        brands,
		logger:        logger.Named("http"),
		maxUploadSize: maxUploadSize,
	}
}

// RegisterRoutes wires the handlers to the Gin router. metrics may be nil.
func RegisterRoutes(router *gin.Engine, h *Handler, metrics http.Handler) {
	router.GET("/health", h.Health)
	router.GET("/brands", h.Brands)
	router.POST("/valuate", h.limitBody(), h.Valuate)
	router.POST("/damage", h.limitBody(), h.Damage)
	router.POST("/estimate", h.Estimate)
	if metrics != nil {
		router.GET("/metrics", gin.WrapH(metrics))
	}
}

type valuationForm struct {
	BasePrice string `form:"base_price" binding:"required"`
	Mileage   string `form:"mileage" binding:"required"`
	Age       string `form:"age" binding:"required"`
	Brand     string `form:"brand"`
}

// attributes parses the numeric form fields. Mileage and age are whole numbers.
func (f valuationForm) attributes() (pricing.Attributes, error) {
	basePrice, err := strconv.ParseFloat(strings.TrimSpace(f.BasePrice), 64)
	if err != nil {
		return pricing.Attributes{}, pricing.NotANumber("base_price", f.BasePrice)
	}
	mileage, err := strconv.Atoi(strings.TrimSpace(f.Mileage))
	if err != nil {
		return pricing.Attributes{}, pricing.NotANumber("mileage", f.Mileage)
	}
	age, err := strconv.Atoi(strings.TrimSpace(f.Age))
	if err != nil {
		return pricing.Attributes{}, pricing.NotANumber("age", f.Age)
	}
	return pricing.Attributes{BasePrice: basePrice, Mileage: mileage, Age: age, Brand: f.Brand}, nil
}

type estimateRequest struct {
	BasePrice *float64 `json:"base_price" binding:"required"`
	Mileage   *int     `json:"mileage" binding:"required"`
	Age       *int     `json:"age" binding:"required"`
	Brand     string   `json:"brand"`
	Damage    *float64 `json:"damage" binding:"required"`
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

func (h *Handler) Brands(c *gin.Context) {
	factors := make(map[string]float64)
	for _, brand := range h.brands.Brands() {
		factors[brand] = h.brands.Factor(brand)
	}
	c.JSON(http.StatusOK, gin.H{
		"brands":  factors,
		"default": h.brands.Factor(pricing.DefaultBrand),
	})
}

// Valuate prices a vehicle from form attributes and an uploaded photo.
func (h *Handler) Valuate(c *gin.Context) {
	if !h.parseMultipart(c) {
		return
	}

	var form valuationForm
	if err := c.ShouldBind(&form); err != nil {
		h.badRequest(c, "INVALID_FORM", "base_price, mileage and age are required fields")
		return
	}
	attrs, err := form.attributes()
	if err != nil {
		h.fail(c, err)
		return
	}

	image, ok := h.readImage(c)
	if !ok {
		return
	}

	result, err := h.valuator.Valuate(c.Request.Context(), valuation.Request{
		Attributes: attrs,
		Image:      image,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"request_id":      result.RequestID,
		"price":           result.Price,
		"damage":          result.DamageLabel,
		"damage_fraction": result.Damage,
		"brand":           result.Brand,
		"estimate":        result.Estimate,
		"cached":          result.Cached,
	})
}

// Damage scores an uploaded photo without pricing it.
func (h *Handler) Damage(c *gin.Context) {
	if !h.parseMultipart(c) {
		return
	}

	image, ok := h.readImage(c)
	if !ok {
		return
	}

	result, err := h.valuator.Score(c.Request.Context(), image)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":         true,
		"request_id":      result.RequestID,
		"damage":          result.Label,
		"damage_fraction": result.Damage,
		"cached":          result.Cached,
	})
}

// Estimate prices a vehicle for a caller-supplied damage fraction.
func (h *Handler) Estimate(c *gin.Context) {
	var req estimateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			h.fail(c, pricing.NotANumber(typeErr.Field, typeErr.Value))
			return
		}
		h.badRequest(c, "INVALID_BODY", "base_price, mileage, age and damage are required numeric fields")
		return
	}

	result, err := h.valuator.Quote(c.Request.Context(), pricing.Attributes{
		BasePrice: *req.BasePrice,
		Mileage:   *req.Mileage,
		Age:       *req.Age,
		Brand:     req.Brand,
	}, *req.Damage)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"request_id": result.RequestID,
		"price":      result.Price,
		"damage":     result.DamageLabel,
		"brand":      result.Brand,
		"estimate":   result.Estimate,
	})
}

func (h *Handler) limitBody() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
		c.Next()
	}
}

func (h *Handler) parseMultipart(c *gin.Context) bool {
	err := c.Request.ParseMultipartForm(h.maxUploadSize)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || strings.Contains(err.Error(), "request body too large") {
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"error":   "upload exceeds the size limit",
			"code":    "UPLOAD_TOO_LARGE",
		})
		return false
	}
	h.badRequest(c, "INVALID_FORM", "expected a multipart/form-data body")
	return false
}

func (h *Handler) readImage(c *gin.Context) ([]byte, bool) {
	var (
		file *multipart.FileHeader
		err  error
	)
	for _, field := range imageFields {
		if file, err = c.FormFile(field); err == nil {
			break
		}
	}
	if file == nil {
		h.badRequest(c, "MISSING_IMAGE", "no image provided, use 'car_image' as the form field name")
		return nil, false
	}

	contentType := file.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") && contentType != "application/octet-stream" {
		c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
			"success": false,
			"error":   "unsupported content type " + contentType,
			"code":    "UNSUPPORTED_MEDIA_TYPE",
		})
		return nil, false
	}

	src, err := file.Open()
	if err != nil {
		h.badRequest(c, "MISSING_IMAGE", "unable to open image")
		return nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to read image"})
		return nil, false
	}

	h.logger.Debug("image received",
		zap.String("filename", file.Filename),
		zap.Int64("size", file.Size),
		zap.String("content_type", contentType),
	)
	return data, true
}

func (h *Handler) badRequest(c *gin.Context, code, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   message,
		"code":    code,
	})
}

// fail renders one of the valuation failure kinds.
func (h *Handler) fail(c *gin.Context, err error) {
	body := gin.H{"success": false}

	kind := valuation.Kind(err)
	var opErr *logging.OperationError
	if errors.As(err, &opErr) {
		if opErr.RequestID != "" {
			body["request_id"] = opErr.RequestID
		}
		if opErr.Kind != "" {
			kind = opErr.Kind
		}
	}

	status := http.StatusInternalServerError
	switch kind {
	case valuation.KindImageDecode:
		status = http.StatusBadRequest
		body["code"] = "IMAGE_DECODE_ERROR"
		body["error"] = "the uploaded file is not a readable image"
	case valuation.KindInvalidAttribute:
		status = http.StatusUnprocessableEntity
		body["code"] = "INVALID_ATTRIBUTE"
		var attrErr *pricing.InvalidAttributeError
		if errors.As(err, &attrErr) {
			body["error"] = attrErr.Error()
			body["field"] = attrErr.Field
		}
	case valuation.KindInference:
		body["code"] = "INFERENCE_ERROR"
		body["error"] = "damage detection failed"
	default:
		body["code"] = "INTERNAL_ERROR"
		body["error"] = "an unexpected error occurred"
	}

	c.AbortWithStatusJSON(status, body)
}
