package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	settlementengine "requity/contexts/payment-rails/settlement-engine"
	settlementhttp "requity/contexts/payment-rails/settlement-engine/transport/http"
)

const (
	testSolanaAddrA = "So11111111111111111111111111111111111111112"
	testSolanaAddrB = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func newTestServer(t *testing.T, opts Options) (*Server, settlementengine.Module) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	module := settlementengine.NewInMemoryModule(logger)
	opts.Logger = logger
	return New(module, opts), module
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body any) (*httptest.ResponseRecorder, settlementhttp.APIResponse) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	var resp settlementhttp.APIResponse
	if recorder.Body.Len() > 0 {
		if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode response %q: %v", recorder.Body.String(), err)
		}
	}
	return recorder, resp
}

func TestHealthEndpoint(t *testing.T) {
	server, _ := newTestServer(t, Options{ServiceName: "requity-test"})
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	var resp settlementhttp.HealthResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "requity-test" || resp.Degraded {
		t.Fatalf("unexpected health response %+v", resp)
	}
}

func TestHealthReportsDegradedNotFailure(t *testing.T) {
	server, _ := newTestServer(t, Options{DegradedReason: "wallet credentials not configured"})
	req := httptest.NewRequest(http.MethodGet, "/api/payments/health", nil)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Fatalf("degraded health must still be 200, got %d", recorder.Code)
	}
	var resp settlementhttp.HealthResponse
	if err := json.Unmarshal(recorder.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if !resp.Degraded || resp.Reason == "" {
		t.Fatalf("expected degraded flag with reason, got %+v", resp)
	}
}

func TestSplitPaymentValidationFailureReturnsDetails(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	recorder, resp := doJSON(t, server.Handler(), http.MethodPost, "/api/payments/split-payment", settlementhttp.SplitRequest{
		Recipients: []settlementhttp.SplitRecipientDTO{
			{Address: testSolanaAddrA, Amount: 0.06},
			{Address: testSolanaAddrB, Amount: 0.02},
		},
		TotalAmount: 0.10,
	})
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if resp.Success {
		t.Fatal("expected success=false")
	}
	if len(resp.Details) == 0 || resp.Details[0].Field != "totalAmount" {
		t.Fatalf("expected totalAmount detail, got %+v", resp.Details)
	}
}

func TestSendDirectSucceeds(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	recorder, resp := doJSON(t, server.Handler(), http.MethodPost, "/api/payments/send-direct", settlementhttp.DirectSendRequest{
		RecipientAddress: testSolanaAddrA,
		Amount:           1.5,
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}

	raw, _ := json.Marshal(resp.Data)
	var result settlementhttp.SettlementResultDTO
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.SuccessCount != 1 || len(result.Outcomes) != 1 || !result.Outcomes[0].Succeeded {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestAllFailedSettlementIsStillOK(t *testing.T) {
	server, module := newTestServer(t, Options{})
	module.Ledger.FailAddress(testSolanaAddrA, errors.New("connection reset"))
	module.Ledger.FailAddress(testSolanaAddrB, errors.New("connection reset"))

	recorder, resp := doJSON(t, server.Handler(), http.MethodPost, "/api/payments/send", settlementhttp.AttributionRequest{
		PrimaryID:       testSolanaAddrA,
		SourceAddresses: []string{testSolanaAddrB},
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("an attempted settlement reports outcomes with 200, got %d", recorder.Code)
	}
	raw, _ := json.Marshal(resp.Data)
	var result settlementhttp.SettlementResultDTO
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if result.SuccessCount != 0 || result.TotalRecipients != 2 {
		t.Fatalf("expected all-failed result, got %+v", result)
	}
}

func TestMalformedJSONIsBadRequest(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodPost, "/api/payments/send-direct", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", recorder.Code)
	}
}

func TestGetSettlementNotFound(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	req := httptest.NewRequest(http.MethodGet, "/api/payments/settlements/missing", nil)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", recorder.Code)
	}
}

func TestSettlementListAfterSend(t *testing.T) {
	server, _ := newTestServer(t, Options{})
	if recorder, _ := doJSON(t, server.Handler(), http.MethodPost, "/api/payments/send-direct", settlementhttp.DirectSendRequest{
		RecipientAddress: testSolanaAddrA,
		Amount:           2,
	}); recorder.Code != http.StatusOK {
		t.Fatalf("seed settlement failed: %d", recorder.Code)
	}

	recorder, resp := doJSON(t, server.Handler(), http.MethodGet, "/api/payments/settlements?limit=5", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", recorder.Code)
	}
	raw, _ := json.Marshal(resp.Data)
	var items []settlementhttp.SettlementResultDTO
	if err := json.Unmarshal(raw, &items); err != nil {
		t.Fatalf("decode list: %v", err)
	}
	if len(items) != 1 || items[0].TotalSent != 2 {
		t.Fatalf("expected one settlement of 2, got %+v", items)
	}
}

func TestBalanceAndEstimateEndpoints(t *testing.T) {
	server, _ := newTestServer(t, Options{})

	recorder, resp := doJSON(t, server.Handler(), http.MethodGet, "/api/payments/balance", nil)
	if recorder.Code != http.StatusOK || !resp.Success {
		t.Fatalf("balance: code=%d resp=%+v", recorder.Code, resp)
	}

	recorder, resp = doJSON(t, server.Handler(), http.MethodGet, "/api/payments/estimate-cost", nil)
	if recorder.Code != http.StatusOK || !resp.Success {
		t.Fatalf("estimate-cost: code=%d resp=%+v", recorder.Code, resp)
	}
}

func TestRateLimitReturnsTooManyRequests(t *testing.T) {
	server, _ := newTestServer(t, Options{RateLimitPerMinute: 1})

	first := httptest.NewRequest(http.MethodGet, "/health", nil)
	first.Header.Set("X-Forwarded-For", "10.0.0.9")
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, first)
	if recorder.Code != http.StatusOK {
		t.Fatalf("first request should pass, got %d", recorder.Code)
	}

	second := httptest.NewRequest(http.MethodGet, "/health", nil)
	second.Header.Set("X-Forwarded-For", "10.0.0.9")
	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, second)
	if recorder.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after budget exhausted, got %d", recorder.Code)
	}
}

func TestResolveClientIP(t *testing.T) {
	cases := []struct {
		name       string
		remoteAddr string
		forwarded  string
		want       string
	}{
		{name: "ipv4 with port", remoteAddr: "192.168.1.5:51234", want: "192.168.1.5"},
		{name: "bracketed ipv6 with port", remoteAddr: "[::1]:8080", want: "::1"},
		{name: "bare host", remoteAddr: "192.168.1.5", want: "192.168.1.5"},
		{name: "forwarded single", remoteAddr: "10.0.0.1:80", forwarded: "203.0.113.7", want: "203.0.113.7"},
		{name: "forwarded chain keeps first hop", remoteAddr: "10.0.0.1:80", forwarded: "203.0.113.7, 10.0.0.2", want: "203.0.113.7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/health", nil)
			req.RemoteAddr = tc.remoteAddr
			if tc.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tc.forwarded)
			}
			if got := resolveClientIP(req); got != tc.want {
				t.Fatalf("resolveClientIP(%q) = %q, want %q", tc.remoteAddr, got, tc.want)
			}
		})
	}
}
