package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"github.com/ariefcatur/go-storefront-orders/internal/orders"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"log/slog"
	"net/http"
	"time"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeFail(w http.ResponseWriter, code int, kind, msg string) {
	writeJSON(w, code, errorBody{Error: kind, Message: msg})
}

// classify maps the domain error taxonomy onto HTTP.
func classify(err error) (int, string) {
	var se *orders.StockError
	switch {
	case errors.As(err, &se):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, orders.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, orders.ErrEmptyCart):
		return http.StatusBadRequest, "empty_cart"
	case errors.Is(err, orders.ErrAmountMismatch):
		return http.StatusBadRequest, "amount_mismatch"
	case errors.Is(err, orders.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, orders.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, orders.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, orders.ErrAlreadyProcessed):
		return http.StatusConflict, "already_processed"
	case errors.Is(err, orders.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, orders.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, orders.ErrGatewayUnavailable), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "gateway_unavailable"
	}
	return http.StatusInternalServerError, "internal"
}

func writeError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	code, kind := classify(err)
	msg := err.Error()
	if code >= 500 {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", middleware.GetReqID(r.Context()), "err", err)
		if code == http.StatusInternalServerError {
			msg = "internal error"
		}
	}
	writeFail(w, code, kind, msg)
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return orders.Validationf("invalid json: %v", err)
	}
	return nil
}

type ctxKey int

const userKey ctxKey = iota

// requireUser trusts X-User-ID; authentication happens in front of us.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := r.Header.Get("X-User-ID")
		if uid == "" {
			writeFail(w, http.StatusUnauthorized, "unauthenticated", "missing X-User-ID")
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, uid)))
	})
}

func userID(r *http.Request) string {
	uid, _ := r.Context().Value(userKey).(string)
	return uid
}

func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" || r.Header.Get("X-Admin-Token") != token {
				writeFail(w, http.StatusUnauthorized, "unauthenticated", "admin token required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func traceID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
