package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResourceExhausted(t *testing.T) {
	err := ResourceExhausted("queue %s is full", "tasks")

	if !IsResourceExhausted(err) {
		t.Errorf("expected resource exhausted, got: %s", AsCode(err))
	}
	if err.Http() != http.StatusTooManyRequests {
		t.Errorf("expected http status 429, got: %d", err.Http())
	}
	if err.Error() != "queue tasks is full" {
		t.Errorf("unexpected message: %s", err.Error())
	}
}

func TestWrappedStatus(t *testing.T) {
	source := errors.New("connection refused")
	err := fmt.Errorf("publish: %w", Unavailable("store unavailable").Source(source))

	if !IsUnavailable(err) {
		t.Errorf("expected unavailable, got: %s", AsCode(err))
	}
	if !errors.Is(err, source) {
		t.Error("expected source error in chain")
	}
	if Source(err) != source {
		t.Errorf("expected source %v, got: %v", source, Source(err))
	}
	if HttpStatus(err) != http.StatusServiceUnavailable {
		t.Errorf("expected http status 503, got: %d", HttpStatus(err))
	}
}

func TestStatusIs(t *testing.T) {
	sentinel := ResourceExhausted("lock timeout")
	err := fmt.Errorf("user 42: %w", sentinel)

	if !errors.Is(err, sentinel) {
		t.Error("expected wrapped sentinel to match")
	}
	if errors.Is(err, NotFound("x")) {
		t.Error("different codes must not match")
	}
	if !IsStatus(err) {
		t.Error("expected status error")
	}
}

func TestPlainError(t *testing.T) {
	err := errors.New("boom")

	if AsCode(err) != CodeInternal {
		t.Errorf("expected internal, got: %s", AsCode(err))
	}
	if Message(err) != "boom" {
		t.Errorf("expected boom, got: %s", Message(err))
	}
	if AsCode(nil) != "" {
		t.Error("expected empty code for nil")
	}
}

func TestJSONResponse(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   Code
	}{
		{
			name:       "queue full",
			err:        ResourceExhausted("queue is full"),
			wantStatus: http.StatusTooManyRequests,
			wantCode:   CodeResourceExhausted,
		},
		{
			name:       "not found",
			err:        NotFound("user 1 not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   CodeNotFound,
		},
		{
			name:       "plain error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   CodeInternal,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			if err := JSONResponse(w, tt.err); err != nil {
				t.Fatalf("JSONResponse() error = %v", err)
			}
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body Status
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
			}
		})
	}
}
