package kernel

import (
	"io"
	"net/http"

	"github.com/google/uuid"
)

// PageEngine is the page-oriented ProtocolEngine flavor: URL paths are
// bound to declarative Pages whose Fields describe where each parameter
// comes from and where uploaded files go.
type PageEngine struct {
	Registry *PageRegistry
	Caps     PageCapabilities
	Config   KernelConfig
	Temp     *TempFileFactory
	static   *StaticFileServer
	resp     *ResponseBuilder
}

// NewPageEngine wires a PageEngine's Component-style dependencies together.
func NewPageEngine(registry *PageRegistry, caps PageCapabilities, config KernelConfig, temp *TempFileFactory) *PageEngine {
	if caps == nil {
		caps = PageCapabilitiesBase{}
	}
	return &PageEngine{
		Registry: registry, Caps: caps, Config: config, Temp: temp,
		static: &StaticFileServer{BaseStaticPath: config.BaseStaticPath},
		resp:   &ResponseBuilder{SessionCookieName: config.SessionCookieName, ValidateCookie: caps.IsCookieValid},
	}
}

// pageRequestContext is the per-request state built in initialize() and
// torn down in clean(), matching spec.md §3's request-context invariant.
type pageRequestContext struct {
	head      *RequestHead
	page      *Page
	decoder   *MultipartDecoder
	br        BusinessRequest
	status    int
	willClose bool
	state     EngineState
	cleaned   bool
	requestID string
}

func (ctx *pageRequestContext) initialize(head *RequestHead) {
	ctx.clean()
	ctx.head = head
	ctx.status = http.StatusOK
	ctx.willClose = false
	ctx.state = StateHeadReceived
	ctx.requestID = uuid.NewString()
	ctx.cleaned = false
}

// clean runs exactly once per request context on every exit path: normal
// completion, handled error, exception, or connection loss.
func (ctx *pageRequestContext) clean() {
	if ctx.cleaned {
		return
	}
	ctx.cleaned = true
	if ctx.decoder != nil {
		ctx.decoder.Abort()
		ctx.decoder = nil
	}
	ctx.br = nil
}

// ServeHTTP drives one request through the state machine described in
// spec.md §4.1.
func (e *PageEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())
	ctx := &pageRequestContext{}
	ctx.initialize(NewRequestHead(r))
	Logger.Debug().Str("reqID", ctx.requestID).Str("path", ctx.head.Path).Msg("head received")

	page, ok := e.Registry.Lookup(ctx.head.Path, ctx.head.Method)
	if !ok {
		if ctx.head.Method == http.MethodGet && e.static.Serve(w, r, ctx.head.Path) {
			ctx.state = StateResponded
			ctx.clean()
			return
		}
		e.fail(w, session, ctx, NewError(KindNotFound, "no page bound to "+ctx.head.Path))
		return
	}
	ctx.page = page

	if page.Role == PageError {
		e.renderErrorPage(w, session, ctx, http.StatusBadRequest, NewError(KindMalformed, "direct access to error page"))
		return
	}

	if err := e.Caps.CheckConnection(session, ctx.head, page); err != nil {
		e.fail(w, session, ctx, err)
		return
	}

	br := page.NewRequest(ctx.head.RemoteAddr)
	ctx.br = br
	if err := e.extract(r, ctx, br); err != nil {
		e.fail(w, session, ctx, err)
		return
	}

	ctx.state = StateDispatched
	switch page.Role {
	case PageHTML, PageMenu:
		if err := e.Caps.BeforeSimplePage(session, br); err != nil {
			e.fail(w, session, ctx, err)
			return
		}
		e.finishAndRespond(w, session, ctx, br)
	case PageDelete:
		if err := e.Caps.FinalDelete(session, br); err != nil {
			e.fail(w, session, ctx, err)
			return
		}
		e.finishAndRespond(w, session, ctx, br)
	case PageGetDownload:
		session.Filename = e.Caps.GetFilename(session, br)
		if err := e.Caps.FinalGet(session, br); err != nil {
			e.fail(w, session, ctx, err)
			return
		}
		e.finishAndRespond(w, session, ctx, br)
	case PagePost, PagePostUpload, PagePut:
		e.handleBodyThenFinish(w, r, session, ctx, br, page.Role)
	default:
		e.fail(w, session, ctx, NewError(KindInternal, "unhandled page role"))
	}
}

// extract pulls field values from the URL query, headers, and cookies
// (body fields are handled separately once a body exists), enforcing the
// multi-value rule along the way.
func (e *PageEngine) extract(r *http.Request, ctx *pageRequestContext, br BusinessRequest) error {
	query := r.URL.Query()
	for _, field := range ctx.page.Fields {
		switch field.Role {
		case FieldURL:
			values := query[field.Name]
			if err := checkMultiValue(field.Name, values); err != nil {
				return err
			}
			value := firstValue(values)
			if value == "" {
				value = field.Default
			}
			if err := e.setValue(br, field, value); err != nil {
				return err
			}
		case FieldHeader:
			values := r.Header.Values(field.Name)
			if err := checkMultiValue(field.Name, values); err != nil {
				return err
			}
			value := firstValue(values)
			if value == "" {
				value = field.Default
			}
			if err := e.setValue(br, field, value); err != nil {
				return err
			}
		case FieldCookie:
			value, ok := Lookup(ctx.head.Cookies, field.Name)
			if !ok {
				value = field.Default
			}
			if err := e.setValue(br, field, value); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *PageEngine) setValue(br BusinessRequest, field Field, value string) error {
	if field.Validator != nil {
		if err := field.Validator(value); err != nil {
			return NewError(KindMalformed, err.Error())
		}
	}
	if err := br.SetValue(field, value); err != nil {
		return NewError(KindMalformed, err.Error())
	}
	return nil
}

// handleBodyThenFinish reads the request body through a MultipartDecoder
// (covering both application/x-www-form-urlencoded and
// multipart/form-data, per spec.md §4.2), routing attributes into the
// BusinessRequest and completed file uploads to Caps.FinalPostUpload.
func (e *PageEngine) handleBodyThenFinish(w http.ResponseWriter, r *http.Request, session *Session, ctx *pageRequestContext, br BusinessRequest, role PageRole) {
	ctx.state = StateBody
	decoder, err := NewMultipartDecoder(ctx.head.ContentType, e.Temp, e.Config.SpillThreshold)
	if err != nil {
		e.fail(w, session, ctx, err)
		return
	}
	ctx.decoder = decoder

	var uploads []Item
	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Body.Read(buf)
		if n > 0 {
			if offerErr := decoder.Offer(buf[:n]); offerErr != nil {
				e.fail(w, session, ctx, NewError(KindNotAcceptable, offerErr.Error()))
				return
			}
			for {
				item, ok, itemErr := decoder.Next()
				if itemErr != nil {
					e.fail(w, session, ctx, NewError(KindNotAcceptable, itemErr.Error()))
					return
				}
				if !ok {
					break
				}
				if item.Kind == ItemFileUpload {
					uploads = append(uploads, item)
				} else if err := e.setValue(br, ctx.page.bodyField(item.Name), item.Value); err != nil {
					e.fail(w, session, ctx, err)
					return
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			e.fail(w, session, ctx, NewError(KindInternal, readErr.Error()))
			return
		}
	}

	finalItems, err := decoder.Finish()
	if err != nil {
		e.fail(w, session, ctx, err)
		return
	}
	for { // parts the multipart parser completed after the last fragment
		item, ok, itemErr := decoder.Next()
		if itemErr != nil {
			e.fail(w, session, ctx, NewError(KindNotAcceptable, itemErr.Error()))
			return
		}
		if !ok {
			break
		}
		if item.Kind == ItemFileUpload {
			uploads = append(uploads, item)
		} else {
			finalItems = append(finalItems, item)
		}
	}
	for _, item := range finalItems { // urlencoded attributes, plus late multipart attributes
		if err := e.setValue(br, ctx.page.bodyField(item.Name), item.Value); err != nil {
			e.fail(w, session, ctx, err)
			return
		}
	}

	switch role {
	case PagePostUpload:
		if err := e.Caps.FinalPostUpload(session, br, uploads); err != nil {
			e.fail(w, session, ctx, err)
			return
		}
	case PagePost:
		if err := e.Caps.FinalPost(session, br); err != nil {
			e.fail(w, session, ctx, err)
			return
		}
	case PagePut:
		if err := e.Caps.FinalPut(session, br); err != nil {
			e.fail(w, session, ctx, err)
			return
		}
	}
	e.finishAndRespond(w, session, ctx, br)
}

func (e *PageEngine) finishAndRespond(w http.ResponseWriter, session *Session, ctx *pageRequestContext, br BusinessRequest) {
	if err := e.Caps.BusinessValidAfterAllDataReceived(session, br); err != nil {
		e.fail(w, session, ctx, err)
		return
	}
	if !br.IsValid() {
		e.fail(w, session, ctx, NewError(KindMalformed, "business request incomplete"))
		return
	}
	body, err := br.Render()
	if err != nil {
		e.fail(w, session, ctx, NewError(KindInternal, err.Error()))
		return
	}

	var setCookies []Cookie
	for _, field := range ctx.page.Fields {
		if field.SetCookie {
			setCookies = append(setCookies, Cookie{Name: field.Name, Value: br.Value(field.Name)})
		}
	}

	full := e.resp.Build(ctx.head, session, ctx.status, body, br.ContentType(), ctx.willClose, setCookies)
	full.WriteTo(w)
	ctx.state = StateResponded
	ctx.clean()
}

// fail maps err onto the error table, invokes the error hook, and renders
// the registered error page for that status — the single path every
// extraction/dispatch failure funnels through.
func (e *PageEngine) fail(w http.ResponseWriter, session *Session, ctx *pageRequestContext, err error) {
	kerr := AsKernelError(err)
	e.renderErrorPage(w, session, ctx, kerr.Status(), kerr)
}

func (e *PageEngine) renderErrorPage(w http.ResponseWriter, session *Session, ctx *pageRequestContext, status int, err error) {
	ctx.status = status
	e.Caps.OnError(session, ctx.head, err)
	ctx.clean()
	ctx.willClose = true

	var body []byte
	contentType := "text/html; charset=utf-8"
	if page, ok := e.Registry.ErrorPage(status); ok {
		br := page.NewRequest("")
		if setErr := br.SetValue(Field{Name: "detail", Role: FieldBody}, err.Error()); setErr == nil {
			if rendered, renderErr := br.Render(); renderErr == nil {
				body = rendered
				contentType = br.ContentType()
			}
		}
	}
	if body == nil {
		// No error page is registered for this status, or it failed to
		// render: fall back to a fixed minimal HTML body, which cannot fail,
		// and still answer with the mapped status.
		body = []byte("<html><body>Error " + err.Error() + "</body></html>")
	}

	full := e.resp.Build(ctx.head, session, status, body, contentType, true, nil)
	full.WriteTo(w)
	ctx.state = StateResponded
}
