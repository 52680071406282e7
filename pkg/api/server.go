package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/leskodex/pkg/app/core/order"
	"github.com/uhyunpark/leskodex/pkg/app/dex"
	"github.com/uhyunpark/leskodex/pkg/storage"
)

const (
	defaultEventLimit = 50
	maxEventLimit     = 1000
)

// Backend is the application the server fronts.
type Backend interface {
	Apply(ctx context.Context, raw []byte) (*dex.Receipt, error)
	Info() dex.Info
	Balances(account common.Address) dex.AccountBalances
	Orders(filters ...order.Filter) []order.Order
	Order(id uint64) (order.Order, bool)
	Nonce(account common.Address) uint64
	Events(kind string, limit int) ([]storage.EventRecord, error)
	State() dex.StateInfo
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server handles REST API and WebSocket connections
type Server struct {
	app    Backend
	cfg    Config
	router *mux.Router
	hub    *Hub // WebSocket hub
	log    *zap.Logger
}

func NewServer(app Backend, cfg Config, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	s := &Server{
		app:    app,
		cfg:    cfg,
		router: mux.NewRouter(),
		hub:    NewHub(log),
		log:    log,
	}
	s.setupRoutes()
	return s
}

// Hub is the websocket fan-out. It is also an events.Sink.
func (s *Server) Hub() *Hub { return s.hub }

func (s *Server) setupRoutes() {
	s.router.Use(s.requestID)

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/tx", s.handleSubmitTx).Methods("POST")

	api.HandleFunc("/exchange", s.handleGetExchange).Methods("GET")
	api.HandleFunc("/state", s.handleGetState).Methods("GET")

	api.HandleFunc("/accounts/{address}/balances", s.handleGetBalances).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetAccountOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/nonce", s.handleGetNonce).Methods("GET")

	api.HandleFunc("/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/orders/{id:[0-9]+}", s.handleGetOrder).Methods("GET")

	api.HandleFunc("/events/{kind}", s.handleGetEvents).Methods("GET")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   s.cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", headerRequestID},
		ExposedHeaders:   []string{headerRequestID},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api_listening", zap.String("addr", s.cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleSubmitTx(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}

	receipt, err := s.app.Apply(r.Context(), body)
	if err != nil {
		status := statusFor(err)
		s.log.Info("tx_rejected",
			zap.String("request_id", RequestID(r.Context())),
			zap.Int("status", status),
			zap.Error(err),
		)
		respondError(w, status, "transaction rejected", err.Error())
		return
	}

	status := http.StatusOK
	if receipt.Err != nil {
		status = statusFor(receipt.Err)
	}
	respondJSONStatus(w, status, receipt)
}

func (s *Server) handleGetExchange(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.app.Info())
}

func (s *Server) handleGetState(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, s.app.State())
}

func (s *Server) handleGetBalances(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	respondJSON(w, s.app.Balances(addr))
}

func (s *Server) handleGetNonce(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	respondJSON(w, NonceResponse{Account: addr, Nonce: s.app.Nonce(addr)})
}

func (s *Server) handleGetAccountOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := addressVar(w, r)
	if !ok {
		return
	}
	status, ok := statusParam(w, r)
	if !ok {
		return
	}
	respondJSON(w, s.app.Orders(order.ByAccount(addr), order.ByStatus(status)))
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	status, ok := statusParam(w, r)
	if !ok {
		return
	}
	filters := []order.Filter{order.ByStatus(status)}
	if acct := r.URL.Query().Get("account"); acct != "" {
		if !common.IsHexAddress(acct) {
			respondError(w, http.StatusBadRequest, "invalid address", acct)
			return
		}
		filters = append(filters, order.ByAccount(common.HexToAddress(acct)))
	}
	respondJSON(w, s.app.Orders(filters...))
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid order id", err.Error())
		return
	}
	o, ok := s.app.Order(id)
	if !ok {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	respondJSON(w, o)
}

func (s *Server) handleGetEvents(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", v)
			return
		}
		limit = min(n, maxEventLimit)
	}

	recs, err := s.app.Events(mux.Vars(r)["kind"], limit)
	if err != nil {
		respondError(w, statusFor(err), "events unavailable", err.Error())
		return
	}
	respondJSON(w, recs)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.app.State()
	respondJSON(w, HealthResponse{Status: "ok", Seq: st.Seq})
}

// ==============================
// Helper Functions
// ==============================

func addressVar(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	s := mux.Vars(r)["address"]
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", s)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func statusParam(w http.ResponseWriter, r *http.Request) (order.Status, bool) {
	s := order.Status(r.URL.Query().Get("status"))
	switch s {
	case "", order.StatusOpen, order.StatusFilled, order.StatusCancelled:
		return s, true
	}
	respondError(w, http.StatusBadRequest, "invalid status", string(s))
	return "", false
}

func respondJSON(w http.ResponseWriter, data any) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	respondJSONStatus(w, status, ErrorResponse{
		Error:   error,
		Message: message,
	})
}
