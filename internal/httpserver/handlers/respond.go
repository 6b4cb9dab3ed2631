package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/MrSnakeDoc/nexus/internal/admission"
	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/loop"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var banErr *admission.BanError
	switch {
	case errors.As(err, &banErr), errors.Is(err, domain.ErrBanned), errors.Is(err, domain.ErrProtectedBan):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrBanNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSessionFull):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidPlayer):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrContextUnavailable), errors.Is(err, domain.ErrBackendUnavailable), errors.Is(err, loop.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// await starts an asynchronous operation on the control thread and waits
// for the single result it reports.
func await[T any](ctx context.Context, l *loop.Loop, start func(report func(T))) (T, error) {
	ch := make(chan T, 1)
	var zero T
	if err := l.Do(ctx, func() { start(func(v T) { ch <- v }) }); err != nil {
		return zero, err
	}
	select {
	case v := <-ch:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// read runs fn on the control thread and returns its value.
func read[T any](ctx context.Context, l *loop.Loop, fn func() T) (T, error) {
	var v T
	err := l.Do(ctx, func() { v = fn() })
	return v, err
}
