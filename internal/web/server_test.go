package web

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"slices"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/kozaktomas/face-registry/internal/audit"
	"github.com/kozaktomas/face-registry/internal/config"
	"github.com/kozaktomas/face-registry/internal/database"
	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/metrics"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/storage"
	"github.com/kozaktomas/face-registry/internal/tokens"
)

type staticProvider map[string][]float32

func (p staticProvider) Embed(ctx context.Context, data []byte) ([]float32, error) {
	return p[string(data)], nil
}

type testServer struct {
	server *Server
	audit  *mock.MockAuditStore
	tokens *tokens.MemoryStore
}

func newTestServer(t *testing.T, devTokens bool) *testServer {
	t.Helper()
	cfg := config.Defaults()
	cfg.Server.DevTokenEndpoint = devTokens

	log, _ := logtest.NewNullLogger()
	images, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatal(err)
	}

	auditStore := mock.NewMockAuditStore()
	tokenStore := tokens.NewMemoryStore(0)
	provider := staticProvider{"ana": {1, 0}, "ana-again": {0.99, 0.01}}
	identities := registry.New(mock.NewMockIdentityStore(), images, provider, facematch.NewMatcher(0.37, 0.37), registry.Options{
		RequireEmail: true, Metrics: m, Logger: log,
	})

	s := NewServer(Dependencies{
		Config:   &cfg,
		Registry: identities,
		Images:   images,
		Tokens:   tokenStore,
		Recorder: audit.NewRecorder(auditStore, log, m),
		Metrics:  m,
		Gatherer: reg,
		Logger:   log,
	})
	return &testServer{server: s, audit: auditStore, tokens: tokenStore}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)
	return rec
}

func uploadRequest(t *testing.T, path string, fields map[string]string, image string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		w.WriteField(k, v)
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="imagen"; filename="face.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, _ := w.CreatePart(h)
	part.Write([]byte(image))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestServer_Health(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(httptest.NewRequest("GET", "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestServer_ProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, false)

	for _, route := range []struct{ method, path string }{
		{"GET", "/usuarios"},
		{"GET", "/usuarios/1"},
		{"PUT", "/usuarios/1"},
		{"DELETE", "/usuarios/1"},
		{"GET", "/imagenes/usuarios/a.jpg"},
		{"GET", "/historial"},
		{"POST", "/logout"},
	} {
		rec := ts.do(httptest.NewRequest(route.method, route.path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s %s: expected status 401, got %d", route.method, route.path, rec.Code)
		}
	}
}

func TestServer_DevTokenEndpointDisabledByDefault(t *testing.T) {
	ts := newTestServer(t, false)
	rec := ts.do(httptest.NewRequest("GET", "/generarToken", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}

	ts = newTestServer(t, true)
	rec = ts.do(httptest.NewRequest("GET", "/generarToken", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", rec.Code)
	}
}

func TestServer_RegisterRecognizeAndBrowse(t *testing.T) {
	ts := newTestServer(t, false)

	rec := ts.do(uploadRequest(t, "/subirUsuario", map[string]string{
		"nombre": "Ana", "apellido": "García", "email": "ana@example.com",
	}, "ana"))
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected status 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(uploadRequest(t, "/compararCara", nil, "ana-again"))
	if rec.Code != http.StatusOK {
		t.Fatalf("compare: expected status 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var compared struct {
		Token    string `json:"token"`
		Identity struct {
			Image string `json:"image"`
		} `json:"identity"`
	}
	json.Unmarshal(rec.Body.Bytes(), &compared)

	req := httptest.NewRequest("GET", "/usuarios", nil)
	req.Header.Set("Authorization", "Bearer "+compared.Token)
	rec = ts.do(req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "García") {
		t.Fatalf("list: got %d %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest("GET", "/imagenes/"+compared.Identity.Image, nil)
	req.Header.Set("Authorization", "Bearer "+compared.Token)
	rec = ts.do(req)
	if rec.Code != http.StatusOK || rec.Body.String() != "ana" {
		t.Fatalf("image: got %d %q", rec.Code, rec.Body.String())
	}

	ts.server.deps.Recorder.Close()
	// writes are asynchronous, order by request start
	records := ts.audit.Records()
	slices.SortFunc(records, func(a, b database.AuditRecord) int { return a.Timestamp.Compare(b.Timestamp) })
	if len(records) != 4 {
		t.Fatalf("expected 4 audit records, got %d", len(records))
	}
	if records[0].Action != "Creación de usuario" || records[0].Status != http.StatusCreated {
		t.Errorf("unexpected first record %+v", records[0])
	}
	if records[1].Action != "Intento de acceso via rostro" {
		t.Errorf("unexpected second record %+v", records[1])
	}
}

func TestServer_PreflightIsAudited(t *testing.T) {
	ts := newTestServer(t, false)

	req := httptest.NewRequest(http.MethodOptions, "/subirUsuario", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := ts.do(req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rec.Code)
	}

	ts.server.deps.Recorder.Close()
	records := ts.audit.Records()
	if len(records) != 1 || records[0].Method != http.MethodOptions || records[0].Action != "Creación de usuario" {
		t.Errorf("unexpected audit records %+v", records)
	}
}

func TestServer_Metrics(t *testing.T) {
	ts := newTestServer(t, false)
	ts.do(httptest.NewRequest("GET", "/health", nil))

	rec := ts.do(httptest.NewRequest("GET", "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `http_requests_total{method="GET",route="/health",status="200"} 1`) {
		t.Errorf("health request not counted:\n%s", rec.Body.String())
	}
}
