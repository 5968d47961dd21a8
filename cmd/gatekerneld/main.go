// Command gatekerneld is a minimal runnable example wiring both engines the
// kernel package exposes: a page-oriented "widgets" UI and a REST "widgets"
// API, sharing one TempFileFactory and one Session per connection.
package main

import (
	"flag"
	"fmt"
	"html/template"
	"net/http"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/hexkit/gatekernel/kernel"
)

type widget struct {
	ID     string             `json:"id"`
	Name   string             `json:"name"`
	Status kernel.UpdatedInfo `json:"status,omitempty"`
}

func newWidgetStore() *kernel.InMemoryStore[widget] {
	return kernel.NewInMemoryStore[widget](
		func(w widget) string { return w.ID },
		func(n int) string { return fmt.Sprintf("w%d", n) },
		func(body map[string]any, id string) (widget, error) {
			name, _ := body["name"].(string)
			if name == "" {
				return widget{}, fmt.Errorf("name is required")
			}
			return widget{ID: id, Name: name}, nil
		},
		func(w *widget, info kernel.UpdatedInfo) { w.Status = info },
	)
}

var widgetPageTemplate = template.Must(template.New("widget").Parse(
	`<html><body><h1>Widget</h1><p>name: {{.Name}}</p></body></html>`,
))

// widgetPageRequest is the BusinessRequest backing the page-engine "/widget"
// GET page: it renders a requested name through html/template, which
// auto-escapes the field value on the way into the response body.
type widgetPageRequest struct {
	name string
}

func newWidgetPageRequest(remoteAddress string) kernel.BusinessRequest {
	return &widgetPageRequest{}
}

func (r *widgetPageRequest) SetValue(field kernel.Field, value string) error {
	if field.Name == "name" {
		r.name = value
	}
	return nil
}
func (r *widgetPageRequest) Value(name string) string {
	if name == "name" {
		return r.name
	}
	return ""
}
func (r *widgetPageRequest) IsValid() bool       { return true }
func (r *widgetPageRequest) ContentType() string { return "text/html; charset=utf-8" }
func (r *widgetPageRequest) Render() ([]byte, error) {
	var buf strings.Builder
	if err := widgetPageTemplate.Execute(&buf, struct{ Name string }{r.name}); err != nil {
		return nil, err
	}
	return []byte(buf.String()), nil
}

// errorPageRequest renders the small HTML body used for every registered
// error page (404, etc).
type errorPageRequest struct {
	detail string
}

func newErrorPageRequest(remoteAddress string) kernel.BusinessRequest {
	return &errorPageRequest{}
}

func (r *errorPageRequest) SetValue(field kernel.Field, value string) error {
	if field.Name == "detail" {
		r.detail = value
	}
	return nil
}
func (r *errorPageRequest) Value(name string) string {
	if name == "detail" {
		return r.detail
	}
	return ""
}
func (r *errorPageRequest) IsValid() bool       { return true }
func (r *errorPageRequest) ContentType() string { return "text/html; charset=utf-8" }
func (r *errorPageRequest) Render() ([]byte, error) {
	return []byte("<html><body><h1>Error</h1><p>" + template.HTMLEscapeString(r.detail) + "</p></body></html>"), nil
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8080", "listen address")
	tempDir := flag.String("temp", os.TempDir()+"/gatekerneld", "upload spill directory")
	flag.Parse()

	logger := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	kernel.SetLogger(logger)

	temp, err := kernel.NewTempFileFactory(*tempDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("create temp dir")
	}

	pages := kernel.NewPageRegistry()
	if err := pages.OnConfigure([]kernel.Page{
		{
			Name: "widget-page", URI: "/widget", Method: http.MethodGet, Role: kernel.PageHTML,
			Fields:     []kernel.Field{{Name: "name", Role: kernel.FieldURL, Default: "anonymous"}},
			NewRequest: newWidgetPageRequest,
		},
	}, map[int]kernel.Page{
		http.StatusNotFound:            {Name: "404", Role: kernel.PageError, NewRequest: newErrorPageRequest},
		http.StatusInternalServerError: {Name: "500", Role: kernel.PageError, NewRequest: newErrorPageRequest},
	}); err != nil {
		logger.Fatal().Err(err).Msg("configure page registry")
	}

	store := newWidgetStore()
	handler := kernel.NewDataModelHandler[widget]("/widgets", store, false, "widget", nil)
	methods := kernel.NewMethodRegistry()
	methods.OnConfigure([]kernel.MethodHandler{handler})

	config := kernel.KernelConfig{
		BaseStaticPath:    "./static",
		SessionCookieName: "GWKSESSIONID",
		TempDir:           *tempDir,
		SpillThreshold:    kernel.DefaultSpillThreshold,
	}

	pageEngine := kernel.NewPageEngine(pages, kernel.PageCapabilitiesBase{}, config, temp)
	restEngine := kernel.NewRestEngine(methods, config, temp)

	mux := http.NewServeMux()
	mux.Handle("/widget", pageEngine)
	mux.Handle("/widgets", restEngine)
	mux.Handle("/widgets/", restEngine)

	server := &http.Server{
		Addr:        *addr,
		Handler:     mux,
		ConnContext: kernel.ConnContext,
		ConnState:   kernel.ConnStateHook,
	}

	logger.Info().Str("addr", *addr).Msg("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal().Err(err).Msg("server stopped")
	}
}
