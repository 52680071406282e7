package api

import (
	"bufio"
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/uhyunpark/leskodex/pkg/app/core/exchange"
	"github.com/uhyunpark/leskodex/pkg/app/core/token"
	"github.com/uhyunpark/leskodex/pkg/app/core/transaction"
	"github.com/uhyunpark/leskodex/pkg/app/core/wallet"
	"github.com/uhyunpark/leskodex/pkg/app/dex"
)

const headerRequestID = "X-Request-ID"

type requestIDKey struct{}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestID tags every request with an id (the caller's, or a fresh UUID),
// echoes it in the response and logs the request when it completes.
func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(headerRequestID, id)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))

		s.log.Debug("http_request",
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrader take over the connection.
func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK

	case errors.Is(err, transaction.ErrInvalidSignature),
		errors.Is(err, transaction.ErrSignerMismatch):
		return http.StatusUnauthorized

	case errors.Is(err, exchange.ErrUnauthorized):
		return http.StatusForbidden

	case errors.Is(err, exchange.ErrOrderNotFound):
		return http.StatusNotFound

	case errors.Is(err, exchange.ErrAlreadyFinalized),
		errors.Is(err, exchange.ErrAlreadyFilled),
		errors.Is(err, exchange.ErrAlreadyCancelled),
		errors.Is(err, dex.ErrBadNonce):
		return http.StatusConflict

	case errors.Is(err, exchange.ErrInsufficientBalance),
		errors.Is(err, exchange.ErrTransferRejected),
		errors.Is(err, exchange.ErrDirectTransfer),
		errors.Is(err, wallet.ErrInsufficientFunds),
		errors.Is(err, wallet.ErrReceiverRejected),
		errors.Is(err, token.ErrInsufficientFunds),
		errors.Is(err, token.ErrInsufficientAllowance):
		return http.StatusUnprocessableEntity

	case errors.Is(err, transaction.ErrMalformed),
		errors.Is(err, exchange.ErrInvalidAsset),
		errors.Is(err, exchange.ErrOverflow),
		errors.Is(err, exchange.ErrInvalidAmount),
		errors.Is(err, exchange.ErrSelfDeposit),
		errors.Is(err, token.ErrInvalidRecipient),
		errors.Is(err, token.ErrInvalidSpender),
		errors.Is(err, dex.ErrUnknownToken),
		errors.Is(err, dex.ErrUnknownKind):
		return http.StatusBadRequest

	case errors.Is(err, dex.ErrHalted):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
