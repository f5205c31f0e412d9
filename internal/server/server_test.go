package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/action-invoker/internal/config"
	"github.com/morezero/action-invoker/pkg/commsutil"
	"github.com/morezero/action-invoker/pkg/dialog"
	"github.com/morezero/action-invoker/pkg/dispatcher"
	"github.com/morezero/action-invoker/pkg/invoke"
	"github.com/morezero/action-invoker/pkg/messages"
	"github.com/morezero/action-invoker/pkg/metadata"
	"github.com/morezero/action-invoker/pkg/transport"
)

const (
	serverTestPrefix   = "server:server_test"
	testInvokerSubject = "test.invoker"
	testBackendSubject = "test.backend"
)

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"error", slog.LevelError},
		{"verbose", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLogLevel(tt.in); got != tt.want {
			t.Errorf("%s - parseLogLevel(%q) = %v, want %v", serverTestPrefix, tt.in, got, tt.want)
		}
	}
}

func TestRequestContext(t *testing.T) {
	tests := []struct {
		name   string
		invCtx *dispatcher.InvocationContext
		want   time.Duration
	}{
		{"no caller context", nil, 10 * time.Second},
		{"shorter client timeout wins", &dispatcher.InvocationContext{TimeoutMs: 2000}, 2 * time.Second},
		{"deadline preferred over timeout", &dispatcher.InvocationContext{DeadlineMs: 1000, TimeoutMs: 2000}, time.Second},
		{"longer client timeout ignored", &dispatcher.InvocationContext{TimeoutMs: 60000}, 10 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := requestContext(context.Background(), tt.invCtx, 10*time.Second)
			defer cancel()
			// Taken after the call so the deadline is never more than want away.
			start := time.Now()
			deadline, ok := ctx.Deadline()
			if !ok {
				t.Fatalf("%s - expected a deadline", serverTestPrefix)
			}
			got := deadline.Sub(start)
			if got > tt.want || got < tt.want-time.Second {
				t.Errorf("%s - deadline in %v, want about %v", serverTestPrefix, got, tt.want)
			}
		})
	}
}

func testServer(checks map[string]dispatcher.HealthCheck) *Server {
	cfg := &config.Config{HealthCheckTimeout: 5 * time.Second, RequestTimeout: 5 * time.Second}
	return &Server{cfg: cfg, disp: dispatcher.NewDispatcher(invoke.Config{}, checks)}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		checks     map[string]dispatcher.HealthCheck
		wantStatus int
		wantBody   string
	}{
		{"healthy", map[string]dispatcher.HealthCheck{"comms": func(context.Context) error { return nil }}, http.StatusOK, "healthy"},
		{"unhealthy", map[string]dispatcher.HealthCheck{"comms": func(context.Context) error { return errors.New("down") }}, http.StatusServiceUnavailable, "unhealthy"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testServer(tt.checks)
			rec := httptest.NewRecorder()
			s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantStatus {
				t.Errorf("%s - status = %d, want %d", serverTestPrefix, rec.Code, tt.wantStatus)
			}
			var body dispatcher.HealthOutput
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("%s - decode body: %v", serverTestPrefix, err)
			}
			if body.Status != tt.wantBody {
				t.Errorf("%s - body status = %q, want %q", serverTestPrefix, body.Status, tt.wantBody)
			}
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	s := testServer(nil)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("%s - status = %d, want 200", serverTestPrefix, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ready"`) {
		t.Errorf("%s - unexpected body %q", serverTestPrefix, rec.Body.String())
	}
}

func TestHealthChecks_Comms(t *testing.T) {
	s := &Server{cfg: &config.Config{}}
	checks := s.healthChecks()
	if _, ok := checks["database"]; ok {
		t.Errorf("%s - expected no database check without a pool", serverTestPrefix)
	}
	if err := checks["comms"](context.Background()); err == nil {
		t.Errorf("%s - expected comms check to fail without a connection", serverTestPrefix)
	}
}

func startTestServer(t *testing.T, port int) *comms.Conn {
	t.Helper()
	ns, err := commsserver.NewServer(&commsserver.Options{Host: "127.0.0.1", Port: port, NoLog: true, NoSigs: true})
	if err != nil {
		t.Fatalf("%s - failed to create server: %v", serverTestPrefix, err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatalf("%s - server failed to start", serverTestPrefix)
	}
	nc, err := comms.Connect(ns.ClientURL())
	if err != nil {
		ns.Shutdown()
		t.Fatalf("%s - failed to connect: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return nc
}

func testCatalog() *metadata.Catalog {
	return metadata.NewCatalog(metadata.CatalogFile{
		Name: "test",
		Services: map[string]metadata.CatalogService{
			"sales.orders": {Versions: map[string]metadata.CatalogVersion{
				"1.0.0": {Operations: map[string]metadata.OperationMetadata{
					"Approve": {Kind: metadata.KindAction, IsBound: true, Parameters: []metadata.ParameterMetadata{
						{Name: "_it", Type: "sales.Orders"},
					}},
				}},
			}},
		},
	})
}

// startInvoker wires a Server against nc the way Run does and subscribes it
// to testInvokerSubject. A fake backend approves every order but /Orders(2).
func startInvoker(t *testing.T, nc *comms.Conn) {
	t.Helper()
	backend, err := nc.Subscribe(testBackendSubject, func(msg *comms.Msg) {
		var req transport.BatchRequest
		if err := json.Unmarshal(msg.Data, &req); err != nil {
			return
		}
		resp := transport.BatchResponse{ID: req.ID}
		for _, c := range req.Calls {
			if c.Target != nil && c.Target.Path == "/Orders(2)" {
				resp.Results = append(resp.Results, transport.CallResult{ID: c.ID, Error: &transport.ErrorDetail{Code: "LOCKED", Message: "order is locked"}})
				continue
			}
			resp.Results = append(resp.Results, transport.CallResult{
				ID:       c.ID,
				Ok:       true,
				Value:    json.RawMessage(`"approved"`),
				Messages: []messages.Message{{ID: "ok-" + c.Target.Path, Message: "approved", Severity: messages.SeveritySuccess}},
			})
		}
		_ = commsutil.RespondJSON(msg, resp)
	})
	if err != nil {
		t.Fatalf("%s - subscribe backend: %v", serverTestPrefix, err)
	}

	s := &Server{cfg: &config.Config{RequestTimeout: 5 * time.Second, HealthCheckTimeout: time.Second}, nc: nc}
	s.tr = transport.NewNATSTransport(nc, transport.NATSTransportOpts{Subject: testBackendSubject, RequestTimeout: 2 * time.Second})
	s.disp = dispatcher.NewDispatcher(invoke.Config{
		Provider:  testCatalog(),
		Transport: s.tr,
		Presenter: &dialog.Headless{},
	}, s.healthChecks())

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := nc.Subscribe(testInvokerSubject, s.handleMessage(ctx))
	if err != nil {
		cancel()
		t.Fatalf("%s - subscribe invoker: %v", serverTestPrefix, err)
	}
	t.Cleanup(func() {
		_ = sub.Unsubscribe()
		_ = backend.Unsubscribe()
		s.tr.Close()
		cancel()
	})
}

type boundActionResponse struct {
	ID     string                       `json:"id"`
	Ok     bool                         `json:"ok"`
	Result *dispatcher.BoundActionResult `json:"result"`
	Error  *struct {
		Code      string                       `json:"code"`
		Retryable bool                         `json:"retryable"`
		Details   *dispatcher.BoundActionResult `json:"details"`
	} `json:"error"`
}

func invokeOverNATS(t *testing.T, nc *comms.Conn, paths ...string) *boundActionResponse {
	t.Helper()
	contexts := make([]map[string]string, len(paths))
	for i, p := range paths {
		contexts[i] = map[string]string{"path": p}
	}
	params, _ := json.Marshal(map[string]interface{}{
		"action":   "sales.orders/Approve",
		"contexts": contexts,
		"grouping": "ChangeSet",
	})
	req := &dispatcher.InvokerRequest{ID: "req-1", Type: "invoke", Method: "invokeBoundAction", Params: params}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var resp boundActionResponse
	if err := commsutil.RequestJSON(ctx, nc, testInvokerSubject, req, &resp); err != nil {
		t.Fatalf("%s - request failed: %v", serverTestPrefix, err)
	}
	return &resp
}

func TestInvokerSubject_BoundActionRoundTrip(t *testing.T) {
	nc := startTestServer(t, 14350)
	startInvoker(t, nc)

	resp := invokeOverNATS(t, nc, "/Orders(1)", "/Orders(3)")

	if !resp.Ok || resp.ID != "req-1" {
		t.Fatalf("%s - expected Ok response for req-1, got %+v", serverTestPrefix, resp)
	}
	if len(resp.Result.Records) != 2 {
		t.Fatalf("%s - expected 2 records, got %d", serverTestPrefix, len(resp.Result.Records))
	}
	for _, rec := range resp.Result.Records {
		if rec.Status != invoke.StatusFulfilled || rec.Value != "approved" {
			t.Errorf("%s - unexpected record %+v", serverTestPrefix, rec)
		}
	}
	if len(resp.Result.Messages) != 2 {
		t.Errorf("%s - expected 2 messages, got %d", serverTestPrefix, len(resp.Result.Messages))
	}
}

func TestInvokerSubject_PartialFailure(t *testing.T) {
	nc := startTestServer(t, 14351)
	startInvoker(t, nc)

	resp := invokeOverNATS(t, nc, "/Orders(1)", "/Orders(2)")

	if resp.Ok {
		t.Fatalf("%s - expected Ok=false on partial failure", serverTestPrefix)
	}
	if resp.Error == nil || resp.Error.Code != invoke.CodeOperationFailed || resp.Error.Retryable {
		t.Fatalf("%s - unexpected error %+v", serverTestPrefix, resp.Error)
	}
	if resp.Error.Details == nil || len(resp.Error.Details.Records) != 2 {
		t.Fatalf("%s - expected records in details, got %+v", serverTestPrefix, resp.Error.Details)
	}
	if resp.Error.Details.Records[0].Status != invoke.StatusFulfilled || resp.Error.Details.Records[1].Status != invoke.StatusRejected {
		t.Errorf("%s - unexpected records %+v", serverTestPrefix, resp.Error.Details.Records)
	}
}

func TestInvokerSubject_InvalidPayload(t *testing.T) {
	nc := startTestServer(t, 14352)
	startInvoker(t, nc)

	msg, err := nc.Request(testInvokerSubject, []byte("not json"), 2*time.Second)
	if err != nil {
		t.Fatalf("%s - request failed: %v", serverTestPrefix, err)
	}
	var resp dispatcher.InvokerResponse
	if err := json.Unmarshal(msg.Data, &resp); err != nil {
		t.Fatalf("%s - decode response: %v", serverTestPrefix, err)
	}
	if resp.Ok || resp.Error == nil || resp.Error.Code != "INVALID_REQUEST" {
		t.Errorf("%s - expected INVALID_REQUEST, got %+v", serverTestPrefix, resp.Error)
	}
}

func TestInvokerSubject_Health(t *testing.T) {
	nc := startTestServer(t, 14353)
	startInvoker(t, nc)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var resp struct {
		Ok     bool                    `json:"ok"`
		Result dispatcher.HealthOutput `json:"result"`
	}
	if err := commsutil.RequestJSON(ctx, nc, testInvokerSubject, &dispatcher.InvokerRequest{ID: "h", Method: "health"}, &resp); err != nil {
		t.Fatalf("%s - request failed: %v", serverTestPrefix, err)
	}
	if !resp.Ok || resp.Result.Status != "healthy" || !resp.Result.Checks["comms"] {
		t.Errorf("%s - unexpected health response %+v", serverTestPrefix, resp)
	}
}
