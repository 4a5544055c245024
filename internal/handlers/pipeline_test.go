package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"testing"

	"github.com/Brownie44l1/car-valuation-api/internal/damage"
)

func carPhoto(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	return buf.Bytes()
}

func TestValuateThroughDamageScorer(t *testing.T) {
	var (
		calls     int
		inputName string
		input     damage.Tensor
	)
	detector := damage.InferFunc(func(ctx context.Context, name string, in damage.Tensor) (damage.Tensor, error) {
		calls++
		inputName, input = name, in
		// two detections: [x, y, w, h, confidence, class]
		return damage.Tensor{
			Shape: []int64{1, 2, 6},
			Data:  []float32{10, 10, 5, 5, 0.1, 0, 20, 20, 5, 5, 0.2, 0},
		}, nil
	})
	router := newTestRouter(t, damage.NewScorer(detector), 0)

	file := &formFile{field: "car_image", contentType: "image/png", payload: carPhoto(t)}
	resp, body := postMultipart(t, router, "/valuate", validFields(), file)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if calls != 1 {
		t.Fatalf("expected one model call, got %d", calls)
	}
	if inputName != damage.InputName {
		t.Fatalf("input name: got %q want %q", inputName, damage.InputName)
	}
	if len(input.Data) != 3*damage.InputSize*damage.InputSize {
		t.Fatalf("input tensor has %d values", len(input.Data))
	}
	if body["price"] != 3.33 {
		t.Errorf("price: got %v want 3.33", body["price"])
	}
	if body["damage"] != "20%" {
		t.Errorf("damage: got %v want 20%%", body["damage"])
	}
	if body["brand"] != "Tata" {
		t.Errorf("brand: got %v want Tata", body["brand"])
	}
}

func TestValuateRejectsNonImageThroughDamageScorer(t *testing.T) {
	calls := 0
	detector := damage.InferFunc(func(context.Context, string, damage.Tensor) (damage.Tensor, error) {
		calls++
		return damage.Tensor{}, nil
	})
	router := newTestRouter(t, damage.NewScorer(detector), 0)

	file := &formFile{field: "car_image", contentType: "image/png", payload: []byte("not a png")}
	resp, body := postMultipart(t, router, "/valuate", validFields(), file)

	if resp.Code != http.StatusBadRequest || body["code"] != "IMAGE_DECODE_ERROR" {
		t.Fatalf("expected 400 IMAGE_DECODE_ERROR, got %d %v", resp.Code, body["code"])
	}
	if calls != 0 {
		t.Fatalf("model should not run for an undecodable upload, got %d calls", calls)
	}
}
