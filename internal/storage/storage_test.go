package storage

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"studio-booking-api/internal/apperr"
)

func TestPhotoKey(t *testing.T) {
	key, err := PhotoKey("u1", "m1", "image/PNG")
	if err != nil {
		t.Fatal(err)
	}
	if key != "measurements/u1/m1.png" {
		t.Errorf("key %q", key)
	}
	if _, err := PhotoKey("u1", "m1", "application/pdf"); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestDisabled(t *testing.T) {
	_, err := Disabled{}.UploadURL(context.Background(), "k", "image/png")
	if !errors.Is(err, apperr.ErrUnavailable) {
		t.Errorf("expected unavailable, got %v", err)
	}
}

// Presigning is local signing only, no request leaves the process.
func TestPresignedUploadURL(t *testing.T) {
	s, err := NewS3(context.Background(), Config{
		Endpoint:        "http://localhost:9000",
		Region:          "us-east-1",
		AccessKeyID:     "minio",
		SecretAccessKey: "minio123",
		Bucket:          "photos",
		Expiry:          5 * time.Minute,
	})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := s.UploadURL(context.Background(), "measurements/u1/m1.png", "image/png")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Host != "localhost:9000" || !strings.HasPrefix(u.Path, "/photos/measurements/u1/") {
		t.Errorf("unexpected url %s", raw)
	}
	if u.Query().Get("X-Amz-Expires") != "300" {
		t.Errorf("expiry %q", u.Query().Get("X-Amz-Expires"))
	}
}
