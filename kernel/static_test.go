package kernel

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestStaticFileServerServesExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "hello.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := &StaticFileServer{BaseStaticPath: dir}
	req := httptest.NewRequest("GET", "/hello.txt", nil)
	rec := httptest.NewRecorder()
	if ok := s.Serve(rec, req, "/hello.txt"); !ok {
		t.Fatal("Serve should report ok for an existing file")
	}
	if rec.Body.String() != "hi" {
		t.Fatalf("body = %q, want hi", rec.Body.String())
	}
}

func TestStaticFileServerMissingFile(t *testing.T) {
	s := &StaticFileServer{BaseStaticPath: t.TempDir()}
	req := httptest.NewRequest("GET", "/nope.txt", nil)
	rec := httptest.NewRecorder()
	if ok := s.Serve(rec, req, "/nope.txt"); ok {
		t.Fatal("Serve should report not-ok for a missing file")
	}
}

func TestStaticFileServerRejectsPathTraversal(t *testing.T) {
	dir := t.TempDir()
	s := &StaticFileServer{BaseStaticPath: dir}
	req := httptest.NewRequest("GET", "/../../etc/passwd", nil)
	rec := httptest.NewRecorder()
	if ok := s.Serve(rec, req, "/../../etc/passwd"); ok {
		t.Fatal("Serve must not escape BaseStaticPath via path traversal")
	}
}
