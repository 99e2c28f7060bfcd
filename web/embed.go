// Package web embeds the built dashboard (dist/) and provides an HTTP handler
// that serves it as a single-page application (SPA).
//
// When dist/ holds no index.html (API-only builds), unmatched paths get a JSON
// 404 instead of the SPA shell.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

const notFoundBody = `{"message":"Not found"}`

// SPAHandler returns an http.Handler that serves the embedded frontend.
func SPAHandler() http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		slog.Error("web: failed to open embedded frontend", "error", err)
		return http.HandlerFunc(notFound)
	}
	return newSPAHandler(subFS)
}

// newSPAHandler serves static files from fsys and falls back to index.html
// for any path that doesn't match a file (client-side routing). API paths
// never fall back.
func newSPAHandler(fsys fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(fsys))
	hasIndex := exists(fsys, "index.html")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/")
		if path == "" {
			path = "index.html"
		}

		if !strings.HasSuffix(path, "/") && exists(fsys, path) {
			fileServer.ServeHTTP(w, r)
			return
		}

		if !hasIndex || strings.HasPrefix(path, "api/") {
			notFound(w, r)
			return
		}

		r.URL.Path = "/"
		fileServer.ServeHTTP(w, r)
	})
}

func exists(fsys fs.FS, path string) bool {
	f, err := fsys.Open(path)
	if err != nil {
		return false
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
		}
	}()
	info, err := f.Stat()
	return err == nil && !info.IsDir()
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(notFoundBody))
}
