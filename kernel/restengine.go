package kernel

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// RestEngine is the REST ProtocolEngine flavor: URL paths are bound to
// MethodHandlers; the body is either a JSON document (cumulated across
// chunks then parsed) or multipart form data.
type RestEngine struct {
	Registry *MethodRegistry
	Config   KernelConfig
	Temp     *TempFileFactory
	resp     *ResponseBuilder
}

func NewRestEngine(registry *MethodRegistry, config KernelConfig, temp *TempFileFactory) *RestEngine {
	return &RestEngine{
		Registry: registry, Config: config, Temp: temp,
		resp: &ResponseBuilder{SessionCookieName: config.SessionCookieName},
	}
}

type restRequestContext struct {
	head      *RequestHead
	decoder   *MultipartDecoder
	jsonBuf   []byte
	willClose bool
	requestID string
	cleaned   bool
}

func (ctx *restRequestContext) clean() {
	if ctx.cleaned {
		return
	}
	ctx.cleaned = true
	if ctx.decoder != nil {
		ctx.decoder.Abort()
		ctx.decoder = nil
	}
}

// ServeHTTP drives one REST request through lookup, authorization,
// extraction, body ingestion, and dispatch, per spec.md §4.1 and §4.4.
func (e *RestEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := SessionFrom(r.Context())
	ctx := &restRequestContext{head: NewRequestHead(r), requestID: uuid.NewString()}
	Logger.Debug().Str("reqID", ctx.requestID).Str("path", ctx.head.Path).Msg("head received")

	base, args := splitBaseAndArgs(ctx.head.Path)

	if base == "/" && ctx.head.Method == http.MethodOptions {
		e.respondRootOptions(w, session, ctx)
		return
	}

	handler, ok := e.Registry.Lookup(base)
	if !ok {
		e.fail(w, session, ctx, NewError(KindMethodNotAllowed, "no handler bound to "+base))
		return
	}

	if ctx.head.Method == http.MethodOptions {
		arg := NewRestArgument()
		arg.Command = "OPTIONS"
		arg.Result = "OK"
		arg.Answer = handler.Describe()
		e.respond(w, session, ctx, http.StatusOK, arg)
		return
	}

	allowed := false
	for _, m := range handler.AllowedMethods() {
		if m == ctx.head.Method {
			allowed = true
			break
		}
	}
	if !allowed {
		e.fail(w, session, ctx, NewError(KindMethodNotAllowed, ctx.head.Method+" not allowed on "+base))
		return
	}

	restCtx := &RestContext{
		Session: session, Method: ctx.head.Method, BaseURI: base, URIArgs: args,
		Headers: flattenHeaders(ctx.head.Headers), Cookies: flattenCookies(ctx.head.Cookies),
		Arg: NewRestArgument(),
	}
	restCtx.Arg.URI = ctx.head.Path
	restCtx.Arg.Method = ctx.head.Method
	restCtx.Arg.URIArgs = indexArgs(args)
	if v := r.URL.Query().Get("limit"); v != "" {
		restCtx.Arg.Filter["limit"] = v
	}

	if err := handler.CheckAuthorization(restCtx); err != nil {
		e.fail(w, session, ctx, err)
		return
	}

	if err := e.ingestBody(r, ctx, handler, restCtx); err != nil {
		e.fail(w, session, ctx, err)
		return
	}

	arg, status, err := handler.EndOfParsing(restCtx)
	if err != nil {
		kerr := handler.MapError(err)
		e.fail(w, session, ctx, kerr)
		return
	}
	e.respond(w, session, ctx, status, arg)
}

// ingestBody cumulates a JSON body across chunks then parses it once the
// terminator is reached, or drains a multipart/form-data body into the
// handler's upload sink and the RestContext's body attributes.
func (e *RestEngine) ingestBody(r *http.Request, ctx *restRequestContext, handler MethodHandler, restCtx *RestContext) error {
	if r.ContentLength == 0 && r.Body == nil {
		return nil
	}
	if !handler.BodyJSONDecoded() || isMultipart(ctx.head.ContentType) {
		return e.ingestMultipartBody(r, ctx, handler, restCtx)
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return NewError(KindInternal, err.Error())
	}
	ctx.jsonBuf = raw
	if len(raw) == 0 {
		return nil
	}
	obj := make(map[string]any)
	if err := json.Unmarshal(raw, &obj); err != nil {
		return NewError(KindMalformed, "malformed JSON body: "+err.Error())
	}
	restCtx.JSONBody = obj
	restCtx.Arg.Body = obj
	return nil
}

func (e *RestEngine) ingestMultipartBody(r *http.Request, ctx *restRequestContext, handler MethodHandler, restCtx *RestContext) error {
	if ctx.head.ContentType == "" {
		return nil
	}
	decoder, err := NewMultipartDecoder(ctx.head.ContentType, e.Temp, e.Config.SpillThreshold)
	if err != nil {
		return err
	}
	ctx.decoder = decoder

	buf := make([]byte, 32*1024)
	for {
		n, readErr := r.Body.Read(buf)
		if n > 0 {
			if offerErr := decoder.Offer(buf[:n]); offerErr != nil {
				return NewError(KindNotAcceptable, offerErr.Error())
			}
			if err := e.drainItems(decoder, handler, restCtx); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return NewError(KindInternal, readErr.Error())
		}
	}
	finalItems, err := decoder.Finish()
	if err != nil {
		return err
	}
	if err := e.drainItems(decoder, handler, restCtx); err != nil {
		return err
	}
	for _, item := range finalItems {
		restCtx.Arg.Body[item.Name] = item.Value
	}
	return nil
}

func (e *RestEngine) drainItems(decoder *MultipartDecoder, handler MethodHandler, restCtx *RestContext) error {
	for {
		item, ok, err := decoder.Next()
		if err != nil {
			return NewError(KindNotAcceptable, err.Error())
		}
		if !ok {
			return nil
		}
		if item.Kind == ItemFileUpload {
			if err := handler.HandleUpload(restCtx, item); err != nil {
				return err
			}
			continue
		}
		restCtx.Arg.Body[item.Name] = item.Value
	}
}

func (e *RestEngine) respondRootOptions(w http.ResponseWriter, session *Session, ctx *restRequestContext) {
	allow, allowURIs, detailed := e.Registry.RootOptionsHeaders()
	arg := NewRestArgument()
	arg.Command = "OPTIONS"
	arg.Result = "OK"
	arg.Answer = detailed
	body, _ := json.Marshal(arg)
	detailedJSON, _ := json.Marshal(detailed)
	full := e.resp.Build(ctx.head, session, http.StatusOK, body, "application/json", false, nil)
	full.Headers.Set("Allow", allow)
	full.Headers.Set("X-Allow-URIs", allowURIs)
	full.Headers.Set("X-Detailed-Allow", string(detailedJSON))
	full.WriteTo(w)
	ctx.clean()
}

func (e *RestEngine) respond(w http.ResponseWriter, session *Session, ctx *restRequestContext, status int, arg *RestArgument) {
	if arg == nil {
		arg = NewRestArgument()
	}
	body, err := json.Marshal(arg)
	if err != nil {
		e.fail(w, session, ctx, NewError(KindInternal, err.Error()))
		return
	}
	full := e.resp.Build(ctx.head, session, status, body, "application/json", ctx.willClose, nil)
	full.WriteTo(w)
	ctx.clean()
}

func (e *RestEngine) fail(w http.ResponseWriter, session *Session, ctx *restRequestContext, err error) {
	kerr := AsKernelError(err)
	ctx.clean()
	arg := NewRestArgument()
	arg.Result = "ERROR"
	arg.Detail = kerr.Detail
	body, _ := json.Marshal(arg)
	full := e.resp.Build(ctx.head, session, kerr.Status(), body, "application/json", true, nil)
	full.WriteTo(w)
}

func isMultipart(contentType string) bool {
	return strings.HasPrefix(contentType, "multipart/")
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k := range h {
		out[k] = h.Get(k)
	}
	return out
}

func flattenCookies(cookies []Cookie) map[string]string {
	out := make(map[string]string, len(cookies))
	for _, c := range cookies {
		out[c.Name] = c.Value
	}
	return out
}

func indexArgs(args []string) map[string]string {
	if len(args) == 0 {
		return nil
	}
	out := make(map[string]string, len(args))
	for i, a := range args {
		out[strconv.Itoa(i)] = a
	}
	return out
}
