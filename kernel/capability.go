package kernel

// PageCapabilities bundles the eleven subclass hooks the teacher's design
// exposed through inheritance (checkConnection, error, getFilename,
// beforeSimplePage, finalDelete/Get/PostUpload/Post/Put,
// businessValidRequestAfterAllDataReceived, isCookieValid) into one
// stateless value passed into PageEngine, per the design note: "model this
// as a capability interface ... not inheritance; the engine owns the
// state, the capability object is stateless with respect to the
// connection."
type PageCapabilities interface {
	// CheckConnection authorizes the request before extraction runs.
	CheckConnection(session *Session, head *RequestHead, page *Page) error
	// OnError runs before clean() on every error path.
	OnError(session *Session, head *RequestHead, err error)
	// GetFilename names the upload/download target for this request.
	GetFilename(session *Session, br BusinessRequest) string
	// BeforeSimplePage runs just before an HTML/MENU page is rendered.
	BeforeSimplePage(session *Session, br BusinessRequest) error
	// FinalDelete/FinalGet/FinalPostUpload/FinalPost/FinalPut run once all
	// data for their respective page role has been received.
	FinalDelete(session *Session, br BusinessRequest) error
	FinalGet(session *Session, br BusinessRequest) error
	FinalPostUpload(session *Session, br BusinessRequest, uploads []Item) error
	FinalPost(session *Session, br BusinessRequest) error
	FinalPut(session *Session, br BusinessRequest) error
	// BusinessValidAfterAllDataReceived is the last check before rendering.
	BusinessValidAfterAllDataReceived(session *Session, br BusinessRequest) error
	// IsCookieValid decides whether an incoming session cookie value may be
	// echoed as-is.
	IsCookieValid(value string) bool
}

// PageCapabilitiesBase gives every hook a harmless default so a concrete
// implementation only needs to override what it actually customizes — the
// same "embed the base, override a few methods" shape the teacher's own
// Component types use for their lifecycle hooks.
type PageCapabilitiesBase struct{}

func (PageCapabilitiesBase) CheckConnection(*Session, *RequestHead, *Page) error { return nil }
func (PageCapabilitiesBase) OnError(*Session, *RequestHead, error)               {}
func (PageCapabilitiesBase) GetFilename(*Session, BusinessRequest) string        { return "" }
func (PageCapabilitiesBase) BeforeSimplePage(*Session, BusinessRequest) error    { return nil }
func (PageCapabilitiesBase) FinalDelete(*Session, BusinessRequest) error         { return nil }
func (PageCapabilitiesBase) FinalGet(*Session, BusinessRequest) error            { return nil }
func (PageCapabilitiesBase) FinalPostUpload(*Session, BusinessRequest, []Item) error {
	return nil
}
func (PageCapabilitiesBase) FinalPost(*Session, BusinessRequest) error { return nil }
func (PageCapabilitiesBase) FinalPut(*Session, BusinessRequest) error  { return nil }
func (PageCapabilitiesBase) BusinessValidAfterAllDataReceived(*Session, BusinessRequest) error {
	return nil
}
func (PageCapabilitiesBase) IsCookieValid(string) bool { return true }
