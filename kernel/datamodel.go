package kernel

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
)

// UpdatedInfo mirrors the design's "TOSUBMIT" status tag that creation and
// update set on the persisted entity.
type UpdatedInfo string

const UpdatedToSubmit UpdatedInfo = "TOSUBMIT"

// Store is the minimal persistence contract a DataModelHandler drives. The
// persistence layer itself stays out of scope (spec.md §1: "the persistence
// layer used by data-model handlers — only its CRUD contract is
// referenced"); this module ships only an in-memory reference
// implementation, used by tests and the example command.
type Store[E any] interface {
	GetItem(id string) (E, bool)
	GetAll(limit int) ([]E, int)
	CreateItem(body map[string]any) (E, error)
	Update(id string, item E) (E, error)
	Delete(id string) error
	PrimaryKey(item E) string
	SetUpdatedInfo(item *E, info UpdatedInfo)
}

// DataModelHandler is a MethodHandler specialization that maps a base URI
// onto CRUD operations against a Store[E], per the dispatch table in the
// design: GET with 0 extra segments lists, GET with 1 gets one, POST
// creates, PUT merges-and-updates, DELETE removes, and OPTIONS describes.
type DataModelHandler[E any] struct {
	baseURI     string
	needAuth    bool
	store       Store[E]
	authorize   func(ctx *RestContext) error
	primaryName string
}

// NewDataModelHandler builds a DataModelHandler for base URI baseURI backed
// by store. authorize may be nil, meaning every request is allowed (the
// authentication backend itself is out of scope; only its decision
// interface is referenced here).
func NewDataModelHandler[E any](baseURI string, store Store[E], needAuth bool, primaryName string, authorize func(*RestContext) error) *DataModelHandler[E] {
	return &DataModelHandler[E]{baseURI: baseURI, store: store, needAuth: needAuth, primaryName: primaryName, authorize: authorize}
}

func (h *DataModelHandler[E]) BaseURI() string { return h.baseURI }

func (h *DataModelHandler[E]) AllowedMethods() []string {
	return []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
}

func (h *DataModelHandler[E]) NeedAuth() bool        { return h.needAuth }
func (h *DataModelHandler[E]) BodyJSONDecoded() bool { return true }

func (h *DataModelHandler[E]) CheckAuthorization(ctx *RestContext) error {
	if h.authorize == nil {
		return nil
	}
	return h.authorize(ctx)
}

// HandleUpload is a no-op: data-model handlers never accept file uploads,
// only JSON bodies.
func (h *DataModelHandler[E]) HandleUpload(ctx *RestContext, item Item) error { return nil }

// EndOfParsing runs the CRUD dispatch table from the design once the whole
// JSON body (if any) has arrived.
func (h *DataModelHandler[E]) EndOfParsing(ctx *RestContext) (*RestArgument, int, error) {
	switch ctx.Method {
	case http.MethodGet:
		switch len(ctx.URIArgs) {
		case 0:
			return h.list(ctx)
		case 1:
			return h.getOne(ctx)
		}
	case http.MethodPost:
		if len(ctx.URIArgs) == 0 {
			return h.create(ctx)
		}
	case http.MethodPut:
		if len(ctx.URIArgs) == 1 {
			return h.update(ctx)
		}
	case http.MethodDelete:
		if len(ctx.URIArgs) == 1 {
			return h.delete(ctx)
		}
	case http.MethodOptions:
		return h.options(ctx)
	}
	return nil, 0, NewError(KindForbidden, "unsupported method/path combination for "+h.baseURI)
}

func (h *DataModelHandler[E]) list(ctx *RestContext) (*RestArgument, int, error) {
	limit := 0
	if v, ok := ctx.Arg.Filter["limit"]; ok {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	items, total := h.store.GetAll(limit)
	arg := NewRestArgument()
	arg.Command = "MULTIGET"
	arg.Result = "OK"
	arg.Count = total
	arg.Limit = limit
	arg.Answer = items
	return arg, http.StatusOK, nil
}

func (h *DataModelHandler[E]) getOne(ctx *RestContext) (*RestArgument, int, error) {
	item, ok := h.store.GetItem(ctx.URIArgs[0])
	if !ok {
		return nil, 0, NewError(KindNotFound, "no such "+h.primaryName)
	}
	arg := NewRestArgument()
	arg.Command = "GET"
	arg.Result = "OK"
	arg.Answer = item
	return arg, http.StatusOK, nil
}

func (h *DataModelHandler[E]) create(ctx *RestContext) (*RestArgument, int, error) {
	item, err := h.store.CreateItem(ctx.JSONBody)
	if err != nil {
		return nil, 0, Wrap(KindMalformed, err)
	}
	h.store.SetUpdatedInfo(&item, UpdatedToSubmit)
	if item, err = h.store.Update(h.store.PrimaryKey(item), item); err != nil {
		return nil, 0, Wrap(KindInternal, err)
	}
	arg := NewRestArgument()
	arg.Command = "CREATE"
	arg.Result = "OK"
	arg.Answer = item
	return arg, http.StatusCreated, nil
}

func (h *DataModelHandler[E]) update(ctx *RestContext) (*RestArgument, int, error) {
	item, ok := h.store.GetItem(ctx.URIArgs[0])
	if !ok {
		return nil, 0, NewError(KindNotFound, "no such "+h.primaryName)
	}
	merged, err := mergeJSONInto(item, ctx.JSONBody)
	if err != nil {
		return nil, 0, Wrap(KindMalformed, err)
	}
	h.store.SetUpdatedInfo(&merged, UpdatedToSubmit)
	saved, err := h.store.Update(ctx.URIArgs[0], merged)
	if err != nil {
		return nil, 0, Wrap(KindInternal, err)
	}
	arg := NewRestArgument()
	arg.Command = "UPDATE"
	arg.Result = "OK"
	arg.Answer = saved
	return arg, http.StatusOK, nil
}

func (h *DataModelHandler[E]) delete(ctx *RestContext) (*RestArgument, int, error) {
	if _, ok := h.store.GetItem(ctx.URIArgs[0]); !ok {
		return nil, 0, NewError(KindNotFound, "no such "+h.primaryName)
	}
	if err := h.store.Delete(ctx.URIArgs[0]); err != nil {
		return nil, 0, Wrap(KindInternal, err)
	}
	arg := NewRestArgument()
	arg.Command = "DELETE"
	arg.Result = "OK"
	return arg, http.StatusOK, nil
}

func (h *DataModelHandler[E]) options(ctx *RestContext) (*RestArgument, int, error) {
	arg := NewRestArgument()
	arg.Command = "OPTIONS"
	arg.Result = "OK"
	arg.Answer = h.Describe()
	return arg, http.StatusOK, nil
}

func (h *DataModelHandler[E]) MapError(err error) *KernelError { return AsKernelError(err) }

func (h *DataModelHandler[E]) Describe() MethodDescriptor {
	return MethodDescriptor{
		BaseURI: h.baseURI,
		Methods: map[string]CommandDescriptor{
			http.MethodGet:    {Command: "MULTIGET/GET"},
			http.MethodPost:   {Command: "CREATE", Schema: map[string]any{"type": "object"}},
			http.MethodPut:    {Command: "UPDATE", Schema: map[string]any{"type": "object"}},
			http.MethodDelete: {Command: "DELETE"},
			http.MethodOptions: {Command: "OPTIONS"},
		},
	}
}

// mergeJSONInto overlays JSON object fields onto a copy of item using
// encoding/json round-tripping, so PUT performs a shallow merge without the
// caller needing reflection-free per-field setters.
func mergeJSONInto[E any](item E, body map[string]any) (E, error) {
	base, err := toJSONMap(item)
	if err != nil {
		return item, err
	}
	for k, v := range body {
		base[k] = v
	}
	return fromJSONMap[E](base)
}

// InMemoryStore is a Store[E] reference implementation guarded by a
// sync.RWMutex, used by tests and the example command; real deployments
// plug in their own persistence layer behind the same interface.
type InMemoryStore[E any] struct {
	mu       sync.RWMutex
	items    map[string]E
	nextID   int
	primary  func(E) string
	newID    func(int) string
	newEntity func(body map[string]any, id string) (E, error)
	setInfo  func(*E, UpdatedInfo)
}

func NewInMemoryStore[E any](
	primary func(E) string,
	newID func(int) string,
	newEntity func(body map[string]any, id string) (E, error),
	setInfo func(*E, UpdatedInfo),
) *InMemoryStore[E] {
	return &InMemoryStore[E]{
		items: make(map[string]E), primary: primary, newID: newID, newEntity: newEntity, setInfo: setInfo,
	}
}

func (s *InMemoryStore[E]) GetItem(id string) (E, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.items[id]
	return item, ok
}

func (s *InMemoryStore[E]) GetAll(limit int) ([]E, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]E, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item)
	}
	total := len(out)
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, total
}

func (s *InMemoryStore[E]) CreateItem(body map[string]any) (E, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.newID(s.nextID)
	item, err := s.newEntity(body, id)
	if err != nil {
		var zero E
		return zero, err
	}
	s.items[id] = item
	return item, nil
}

func (s *InMemoryStore[E]) Update(id string, item E) (E, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = item
	return item, nil
}

func (s *InMemoryStore[E]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *InMemoryStore[E]) PrimaryKey(item E) string { return s.primary(item) }

func (s *InMemoryStore[E]) SetUpdatedInfo(item *E, info UpdatedInfo) { s.setInfo(item, info) }

func toJSONMap[E any](item E) (map[string]any, error) {
	raw, err := json.Marshal(item)
	if err != nil {
		return nil, err
	}
	m := make(map[string]any)
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromJSONMap[E any](m map[string]any) (E, error) {
	var out E
	raw, err := json.Marshal(m)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, err
	}
	return out, nil
}
