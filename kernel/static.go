package kernel

import (
	"net/http"
	"os"
	"path/filepath"
)

// StaticFileServer serves baseStaticPath+path for unbound GETs, per
// spec.md step 4 of §4.1: "If page engine finds nothing and method is GET,
// delegate to the static-file fallback... and return."
type StaticFileServer struct {
	BaseStaticPath string
}

// Serve attempts to serve path under the configured base directory. ok is
// false when the file does not exist, telling the caller to fall through
// to the error-page path instead.
func (s *StaticFileServer) Serve(w http.ResponseWriter, r *http.Request, path string) (ok bool) {
	full := filepath.Join(s.BaseStaticPath, filepath.Clean("/"+path))
	info, err := os.Stat(full)
	if err != nil || info.IsDir() {
		return false
	}
	http.ServeFile(w, r, full)
	return true
}
