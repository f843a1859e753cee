package handlers

import (
	"bytes"
	"context"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"github.com/kozaktomas/face-registry/internal/database/mock"
	"github.com/kozaktomas/face-registry/internal/embedding"
	"github.com/kozaktomas/face-registry/internal/facematch"
	"github.com/kozaktomas/face-registry/internal/registry"
	"github.com/kozaktomas/face-registry/internal/storage"
	"github.com/kozaktomas/face-registry/internal/tokens"
)

// stubProvider returns the embedding registered for the exact image bytes
type stubProvider struct {
	vectors map[string][]float32
	err     error
}

func (p *stubProvider) Embed(ctx context.Context, data []byte) ([]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	v, ok := p.vectors[string(data)]
	if !ok {
		return nil, embedding.ErrNoFaceDetected
	}
	return v, nil
}

var testVectors = map[string][]float32{
	"ana-1": {1, 0, 0},
	"ana-2": {0.99, 0.02, 0},
	"bob-1": {0, 1, 0},
	"eve-1": {0, 0, 1},
}

// testEnv bundles a registry wired to in-memory collaborators
type testEnv struct {
	store    *mock.MockIdentityStore
	images   *storage.Local
	provider *stubProvider
	tokens   *tokens.MemoryStore
	registry *registry.Registry
	log      logrus.FieldLogger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	images, err := storage.NewLocal(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocal() error = %v", err)
	}
	log, _ := logtest.NewNullLogger()
	env := &testEnv{
		store:    mock.NewMockIdentityStore(),
		images:   images,
		provider: &stubProvider{vectors: testVectors},
		tokens:   tokens.NewMemoryStore(0),
		log:      log,
	}
	env.registry = registry.New(env.store, env.images, env.provider, facematch.NewMatcher(0.37, 0.37), registry.Options{
		RequireEmail: true,
		Logger:       log,
	})
	return env
}

// formFile describes one file part of a multipart request
type formFile struct {
	field       string
	contentType string
	data        string
}

// multipartRequest builds a multipart/form-data request
func multipartRequest(t *testing.T, method, path string, fields map[string]string, files ...formFile) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="upload"`)
		h.Set("Content-Type", f.contentType)
		part, err := w.CreatePart(h)
		if err != nil {
			t.Fatal(err)
		}
		part.Write([]byte(f.data))
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// registerIdentity registers directly through the registry
func (e *testEnv) registerIdentity(t *testing.T, name, email, image string) int64 {
	t.Helper()
	identity, err := e.registry.Register(context.Background(), registry.RegisterInput{
		Name: name, Surname: "Tester", Email: email,
		Image: registry.Image{Data: []byte(image), ContentType: "image/jpeg"},
	})
	if err != nil {
		t.Fatalf("Register(%s) error = %v", name, err)
	}
	return identity.ID
}
