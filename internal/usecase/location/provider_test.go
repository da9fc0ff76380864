package location

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"testing"

	"github.com/google/uuid"

	appErrors "comm-terminal/pkg/errors"
)

type fakeRest struct {
	body []byte
	err  error
}

func (f *fakeRest) Get(context.Context, string, url.Values) ([]byte, error) {
	return f.body, f.err
}

func TestLastKnownLocationReturnsMostRecent(t *testing.T) {
	userID := uuid.New()
	body := fmt.Sprintf(`[{"user_id":%q,"latitude":31.23,"longitude":121.47,"recorded_at":"2026-08-01T12:00:00Z"}]`, userID)

	p := NewProvider(&fakeRest{body: []byte(body)})
	point, seenAt, err := p.LastKnownLocation(context.Background(), userID)
	if err != nil {
		t.Fatalf("LastKnownLocation: %v", err)
	}
	if point.Latitude != 31.23 || point.Longitude != 121.47 {
		t.Fatalf("wrong point: %+v", point)
	}
	if seenAt.IsZero() {
		t.Fatal("recorded_at not parsed")
	}
}

func TestLastKnownLocationNoRows(t *testing.T) {
	p := NewProvider(&fakeRest{body: []byte(`[]`)})
	_, _, err := p.LastKnownLocation(context.Background(), uuid.New())

	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) || appErr.Code != appErrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestLastKnownLocationTransportError(t *testing.T) {
	p := NewProvider(&fakeRest{err: fmt.Errorf("backend down")})
	_, _, err := p.LastKnownLocation(context.Background(), uuid.New())
	if err == nil {
		t.Fatal("expected error")
	}
}
