package kernel

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
)

// echoRequest is a minimal BusinessRequest used across engine tests: it
// stores every SetValue call verbatim and renders them back as plain text.
type echoRequest struct {
	values map[string]string
	valid  bool
}

func newEchoRequest(string) BusinessRequest {
	return &echoRequest{values: make(map[string]string), valid: true}
}

func (e *echoRequest) SetValue(field Field, value string) error {
	e.values[field.Name] = value
	return nil
}
func (e *echoRequest) Value(name string) string { return e.values[name] }
func (e *echoRequest) IsValid() bool             { return e.valid }
func (e *echoRequest) ContentType() string       { return "text/plain; charset=utf-8" }
func (e *echoRequest) Render() ([]byte, error) {
	return []byte(e.values["name"]), nil
}

func withSession(req *http.Request) *http.Request {
	session := NewSession()
	ctx := context.WithValue(req.Context(), sessionConnKey{}, session)
	return req.WithContext(ctx)
}

func newTestPageEngine(t *testing.T) *PageEngine {
	t.Helper()
	registry := NewPageRegistry()
	if err := registry.OnConfigure([]Page{
		{
			Name: "hello", URI: "/hello", Method: http.MethodGet, Role: PageHTML,
			Fields:     []Field{{Name: "name", Role: FieldURL, Default: "world"}},
			NewRequest: newEchoRequest,
		},
	}, map[int]Page{
		http.StatusNotFound: {Name: "404", Role: PageError, NewRequest: newEchoRequest},
	}); err != nil {
		t.Fatal(err)
	}
	temp, err := NewTempFileFactory(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewPageEngine(registry, nil, KernelConfig{SessionCookieName: "GWKSESSIONID"}, temp)
}

func TestPageEngineServesBoundPage(t *testing.T) {
	engine := newTestPageEngine(t)
	req := withSession(httptest.NewRequest(http.MethodGet, "/hello?name=gopher", nil))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "gopher" {
		t.Fatalf("body = %q, want gopher", rec.Body.String())
	}
	if rec.Header().Get("Set-Cookie") == "" {
		t.Fatal("every response must carry a session cookie")
	}
}

func TestPageEngineDefaultsUnsetField(t *testing.T) {
	engine := newTestPageEngine(t)
	req := withSession(httptest.NewRequest(http.MethodGet, "/hello", nil))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Body.String() != "world" {
		t.Fatalf("body = %q, want the field default", rec.Body.String())
	}
}

func TestPageEngineExportsSetCookieFieldValue(t *testing.T) {
	registry := NewPageRegistry()
	if err := registry.OnConfigure([]Page{
		{
			Name: "track", URI: "/track", Method: http.MethodGet, Role: PageHTML,
			Fields: []Field{
				{Name: "name", Role: FieldURL, Default: "world"},
				{Name: "token", Role: FieldURL, SetCookie: true},
			},
			NewRequest: newEchoRequest,
		},
	}, map[int]Page{
		http.StatusNotFound: {Name: "404", Role: PageError, NewRequest: newEchoRequest},
	}); err != nil {
		t.Fatal(err)
	}
	temp, err := NewTempFileFactory(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	engine := NewPageEngine(registry, nil, KernelConfig{SessionCookieName: "GWKSESSIONID"}, temp)

	req := withSession(httptest.NewRequest(http.MethodGet, "/track?token=abc123", nil))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	found := false
	for _, v := range rec.Header().Values("Set-Cookie") {
		if v == "token=abc123; Path=/" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a Set-Cookie carrying the field's actual value, got %v", rec.Header().Values("Set-Cookie"))
	}
}

func TestPageEngineMultiValueQueryIs400(t *testing.T) {
	engine := newTestPageEngine(t)
	req := withSession(httptest.NewRequest(http.MethodGet, "/hello?name=a&name=b", nil))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 on a repeated query parameter", rec.Code)
	}
}

func TestPageEngineUnboundPathFallsThroughToErrorPage(t *testing.T) {
	engine := newTestPageEngine(t)
	req := withSession(httptest.NewRequest(http.MethodGet, "/nope", nil))
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	if rec.Header().Get("Connection") != "close" {
		t.Fatal("an error response must close the connection")
	}
}

func TestConnContextSessionLifecycle(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx := ConnContext(context.Background(), server)
	session := SessionFrom(ctx)
	if session == nil {
		t.Fatal("ConnContext should install a Session")
	}

	// A second call for the same connection must reuse the same Session,
	// not mint a fresh one for every request on a kept-alive connection.
	ctx2 := ConnContext(context.Background(), server)
	if SessionFrom(ctx2) != session {
		t.Fatal("ConnContext should reuse the Session across requests on one connection")
	}

	ConnStateHook(server, http.StateClosed)
	if _, ok := connSessions.Load(server); ok {
		t.Fatal("ConnStateHook(StateClosed) should drop the Session")
	}
}
