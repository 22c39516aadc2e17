package handlers

import (
	"errors"
	"net/http"
	"path"
	"strings"

	"github.com/go-chi/chi/v5"

	"menu3d/internal/storage"
)

// Extensions the stdlib mime table does not know about.
var modelContentTypes = map[string]string{
	".glb":  "model/gltf-binary",
	".gltf": "model/gltf+json",
	".obj":  "model/obj",
	".usdz": "model/vnd.usdz+zip",
}

// ServeFile streams a stored image or model. Only the two public namespaces
// are reachable.
func (a *App) ServeFile(w http.ResponseWriter, r *http.Request) {
	namespace := chi.URLParam(r, "namespace")
	name := chi.URLParam(r, "name")
	if namespace != storage.NamespaceImages && namespace != storage.NamespaceModels {
		a.error(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		a.error(w, http.StatusNotFound, "not_found", "file not found")
		return
	}

	f, info, err := a.Files.Open(namespace + "/" + name)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "file not found")
			return
		}
		a.Logger.Error().Err(err).Str("file", name).Msg("open stored file")
		a.error(w, http.StatusInternalServerError, "internal", "failed to open file")
		return
	}
	defer f.Close()

	if ct, ok := modelContentTypes[strings.ToLower(path.Ext(name))]; ok {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Cache-Control", "public, max-age=86400")
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
