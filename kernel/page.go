package kernel

import "fmt"

// PageRole drives the control flow for a page-engine request.
type PageRole int

const (
	PageHTML PageRole = iota
	PageMenu
	PageGetDownload
	PagePost
	PagePostUpload
	PagePut
	PageDelete
	PageError
)

// FieldRole says where a Field's value is extracted from (or, for
// FieldCookieSet, where it is exported to on the response).
type FieldRole int

const (
	FieldURL FieldRole = iota
	FieldHeader
	FieldCookie
	FieldBody
	FieldBusinessInputFile
	FieldCookieSet
)

// Validator checks a raw string value before it is stored onto a
// BusinessRequest. Returning a non-nil error fails extraction with
// KindMalformed.
type Validator func(value string) error

// Field describes one named value a Page extracts and where it comes from.
type Field struct {
	Name      string
	Role      FieldRole
	Position  int
	Validator Validator
	Default   string
	SetCookie bool // export this field's value as a response cookie
}

// BusinessRequest is the per-request object a Page's NewRequest factory
// builds: it accumulates field values via SetValue, is checked for
// completeness by IsValid, renders the response body via Render, and gives
// the engine back a previously-stored field's value via Value — needed to
// export a FieldCookieSet field's actual value as a response cookie.
type BusinessRequest interface {
	SetValue(field Field, value string) error
	Value(name string) string
	IsValid() bool
	ContentType() string
	Render() ([]byte, error)
}

// NewRequestFunc builds a fresh BusinessRequest for one in-flight request,
// scoped to the client's remote address (mirrors the teacher's
// newRequest(remoteAddress) factory).
type NewRequestFunc func(remoteAddress string) BusinessRequest

// Page is the declarative binding of a (uri, method) pair to a role, a
// field set, and a BusinessRequest factory.
type Page struct {
	Name       string
	URI        string
	Method     string
	Role       PageRole
	Fields     []Field
	NewRequest NewRequestFunc
}

// bodyField finds the declared FieldBody definition matching name, so a
// multipart/urlencoded attribute is validated against the same rules the
// page declared for it. An attribute with no matching declaration is
// stored with no validator and no default — unknown form fields are
// accepted, not rejected, matching lenient form decoding.
func (p *Page) bodyField(name string) Field {
	for _, f := range p.Fields {
		if f.Role == FieldBody && f.Name == name {
			return f
		}
	}
	return Field{Name: name, Role: FieldBody}
}

type pageKey struct {
	uri    string
	method string
}

// PageRegistry is the immutable (uri, method) -> Page lookup, plus the
// status-code -> error-Page map. It follows the teacher's Component
// lifecycle: construct, OnConfigure, OnPrepare, then treat as read-only.
type PageRegistry struct {
	pages      map[pageKey]*Page
	errorPages map[int]*Page
}

func NewPageRegistry() *PageRegistry {
	return &PageRegistry{
		pages:      make(map[pageKey]*Page),
		errorPages: make(map[int]*Page),
	}
}

// OnConfigure registers every page and every error page. It is meant to run
// once at startup, before the registry is handed to a PageEngine.
func (r *PageRegistry) OnConfigure(pages []Page, errorPages map[int]Page) error {
	for i := range pages {
		p := pages[i]
		key := pageKey{uri: p.URI, method: p.Method}
		if _, dup := r.pages[key]; dup {
			return fmt.Errorf("kernel: page %s %s registered twice", p.Method, p.URI)
		}
		r.pages[key] = &p
	}
	for status, p := range errorPages {
		page := p
		r.errorPages[status] = &page
	}
	return r.OnPrepare()
}

// OnPrepare validates that every error page actually has role PageError.
// A repeated (uri,method) pair is already rejected by OnConfigure.
func (r *PageRegistry) OnPrepare() error {
	for status, p := range r.errorPages {
		if p.Role != PageError {
			return fmt.Errorf("kernel: error page for status %d has role %v, want PageError", status, p.Role)
		}
	}
	return nil
}

// Lookup resolves a (path, method) pair to its Page. ok is false when
// nothing is registered for that pair.
func (r *PageRegistry) Lookup(path, method string) (*Page, bool) {
	p, ok := r.pages[pageKey{uri: path, method: method}]
	return p, ok
}

// ErrorPage resolves an HTTP status code to its canonical error Page.
func (r *PageRegistry) ErrorPage(status int) (*Page, bool) {
	p, ok := r.errorPages[status]
	return p, ok
}
