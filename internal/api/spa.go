package api

import (
	"net/http"
	"os"
	"path"
)

// spaFileSystem serves index.html for unknown paths without an extension,
// so that client-side routes such as /view/default load the map page.
type spaFileSystem struct {
	root http.FileSystem
}

// Open opens the named file, falling back to index.html.
func (s *spaFileSystem) Open(name string) (http.File, error) {
	f, err := s.root.Open(name)
	if os.IsNotExist(err) && path.Ext(name) == "" {
		return s.root.Open("index.html")
	}
	return f, err
}
