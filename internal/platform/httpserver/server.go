package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	httpSwagger "github.com/swaggo/http-swagger"

	settlementengine "requity/contexts/payment-rails/settlement-engine"
	settlementerrors "requity/contexts/payment-rails/settlement-engine/domain/errors"
	settlementhttp "requity/contexts/payment-rails/settlement-engine/transport/http"
	_ "requity/internal/platform/httpserver/docs"
)

type Server struct {
	mux        *http.ServeMux
	handler    http.Handler
	logger     *slog.Logger
	addr       string
	settlement settlementengine.Module
	service    string

	// degradedReason is non-empty when the engine runs without a bound
	// ledger client. Health reports it; settlement calls fail with a
	// configuration error.
	degradedReason string
}

type Options struct {
	Addr               string
	ServiceName        string
	DegradedReason     string
	RateLimitPerMinute int
	Logger             *slog.Logger
}

func New(settlement settlementengine.Module, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	addr := opts.Addr
	if addr == "" {
		addr = ":8080"
	}
	service := opts.ServiceName
	if service == "" {
		service = "requity"
	}

	s := &Server{
		mux:            http.NewServeMux(),
		logger:         logger,
		addr:           addr,
		settlement:     settlement,
		service:        service,
		degradedReason: opts.DegradedReason,
	}
	s.registerRoutes()
	s.handler = withMiddleware(s.mux, opts.RateLimitPerMinute, logger)
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.handler)
}

// Handler exposes the fully wrapped handler chain, for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/payments/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/payments/send", s.handleSendAttribution)
	s.mux.HandleFunc("POST /api/payments/send-direct", s.handleSendDirect)
	s.mux.HandleFunc("POST /api/payments/split-payment", s.handleSplitPayment)

	s.mux.HandleFunc("GET /api/payments/balance", s.handleBalance)
	s.mux.HandleFunc("GET /api/payments/estimate-cost", s.handleEstimateCost)
	s.mux.HandleFunc("GET /api/payments/settlements", s.handleListSettlements)
	s.mux.HandleFunc("GET /api/payments/settlements/{settlement_id}", s.handleGetSettlement)
}

// handleHealth godoc
//
//	@Summary	Service health
//	@Tags		operations
//	@Produce	json
//	@Success	200	{object}	http.HealthResponse
//	@Router		/health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := settlementhttp.HealthResponse{
		Status:  "ok",
		Service: s.service,
	}
	// Missing wallet credentials degrade the service; they do not fail it.
	if s.degradedReason != "" {
		resp.Degraded = true
		resp.Reason = s.degradedReason
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleSendAttribution godoc
//
//	@Summary	Settle an attribution event at the flat per-source rate
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		http.AttributionRequest	true	"attribution payout request"
//	@Success	200		{object}	http.APIResponse
//	@Failure	400		{object}	http.APIResponse
//	@Router		/api/payments/send [post]
func (s *Server) handleSendAttribution(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.AttributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON", nil)
		return
	}
	resp, err := s.settlement.Handler.SettleAttributionHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementhttp.APIResponse{Success: true, Data: resp})
}

// handleSendDirect godoc
//
//	@Summary	Send a single direct transfer
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		http.DirectSendRequest	true	"direct send request"
//	@Success	200		{object}	http.APIResponse
//	@Failure	400		{object}	http.APIResponse
//	@Router		/api/payments/send-direct [post]
func (s *Server) handleSendDirect(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.DirectSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON", nil)
		return
	}
	resp, err := s.settlement.Handler.SendDirectHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementhttp.APIResponse{Success: true, Data: resp})
}

// handleSplitPayment godoc
//
//	@Summary	Disburse declared shares to multiple recipients
//	@Tags		payments
//	@Accept		json
//	@Produce	json
//	@Param		request	body		http.SplitRequest	true	"split payout request"
//	@Success	200		{object}	http.APIResponse
//	@Failure	400		{object}	http.APIResponse
//	@Router		/api/payments/split-payment [post]
func (s *Server) handleSplitPayment(w http.ResponseWriter, r *http.Request) {
	var req settlementhttp.SplitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "request body must be valid JSON", nil)
		return
	}
	resp, err := s.settlement.Handler.SettleSplitHandler(r.Context(), req)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementhttp.APIResponse{Success: true, Data: resp})
}

// handleBalance godoc
//
//	@Summary	Treasury wallet balance
//	@Tags		payments
//	@Produce	json
//	@Success	200	{object}	http.APIResponse
//	@Router		/api/payments/balance [get]
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	resp, err := s.settlement.Handler.TreasuryBalanceHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementhttp.APIResponse{Success: true, Data: resp})
}

// handleEstimateCost godoc
//
//	@Summary	Per-transfer network fee estimate
//	@Tags		payments
//	@Produce	json
//	@Success	200	{object}	http.APIResponse
//	@Router		/api/payments/estimate-cost [get]
func (s *Server) handleEstimateCost(w http.ResponseWriter, r *http.Request) {
	resp, err := s.settlement.Handler.EstimateCostHandler(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementhttp.APIResponse{Success: true, Data: resp})
}

// handleListSettlements godoc
//
//	@Summary	List recent settlements
//	@Tags		payments
//	@Produce	json
//	@Param		limit	query		int	false	"page size"
//	@Param		offset	query		int	false	"page offset"
//	@Success	200		{object}	http.APIResponse
//	@Router		/api/payments/settlements [get]
func (s *Server) handleListSettlements(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	offset := 0
	if raw := query.Get("limit"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer", nil)
			return
		}
		limit = value
	}
	if raw := query.Get("offset"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "offset must be an integer", nil)
			return
		}
		offset = value
	}

	resp, err := s.settlement.Handler.ListSettlementsHandler(r.Context(), limit, offset)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementhttp.APIResponse{Success: true, Data: resp})
}

// handleGetSettlement godoc
//
//	@Summary	Fetch one settlement by id
//	@Tags		payments
//	@Produce	json
//	@Param		settlement_id	path		string	true	"settlement id"
//	@Success	200				{object}	http.APIResponse
//	@Failure	404				{object}	http.APIResponse
//	@Router		/api/payments/settlements/{settlement_id} [get]
func (s *Server) handleGetSettlement(w http.ResponseWriter, r *http.Request) {
	settlementID := r.PathValue("settlement_id")
	resp, err := s.settlement.Handler.GetSettlementHandler(r.Context(), settlementID)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlementhttp.APIResponse{Success: true, Data: resp})
}

func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *settlementerrors.ValidationError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation failed", validation.Fields)
	case errors.Is(err, settlementerrors.ErrValidationFailed),
		errors.Is(err, settlementerrors.ErrUnsupportedNetwork):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, settlementerrors.ErrResourceExhausted):
		writeError(w, http.StatusPaymentRequired, err.Error(), nil)
	case errors.Is(err, settlementerrors.ErrSettlementNotFound):
		writeError(w, http.StatusNotFound, "settlement not found", nil)
	case errors.Is(err, settlementerrors.ErrIdempotencyConflict):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, settlementerrors.ErrConfigurationMissing):
		writeError(w, http.StatusServiceUnavailable, err.Error(), nil)
	default:
		s.logger.Error("request failed",
			"event", "http_request_failed",
			"module", "internal/platform/httpserver",
			"layer", "platform",
			"path", r.URL.Path,
			"error", err.Error(),
		)
		writeError(w, http.StatusInternalServerError, "internal server error", nil)
	}
}

func writeError(w http.ResponseWriter, status int, message string, fields []settlementerrors.FieldError) {
	resp := settlementhttp.APIResponse{Error: message}
	for _, field := range fields {
		resp.Details = append(resp.Details, settlementhttp.FieldErrorDTO{
			Field:   field.Field,
			Message: field.Message,
		})
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func resolveClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		if idx := strings.Index(forwarded, ","); idx > 0 {
			return strings.TrimSpace(forwarded[:idx])
		}
		return strings.TrimSpace(forwarded)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
