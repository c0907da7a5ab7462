package api

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

const maxUploadBytes = 50 << 20 // 50 MB

// assetExts lists the file types a post may embed. Anything else is refused
// at upload time.
var assetExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".svg":  true,
	".webp": true,
	".pdf":  true,
}

// AssetHandler accepts and serves post assets. Uploads land under
// <assetsDir>/YYYY/MM so asset URLs age the same way permalinks do.
type AssetHandler struct {
	assetsDir string
}

// NewAssetHandler creates a handler rooted at the assets directory.
func NewAssetHandler(assetsDir string) *AssetHandler {
	return &AssetHandler{assetsDir: assetsDir}
}

// safeRel validates a slash-separated relative asset path and returns the
// absolute path under the assets dir.
func (h *AssetHandler) safeRel(rel string) (string, error) {
	if rel == "" {
		return "", fmt.Errorf("filename is required")
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) || strings.Contains(cleaned, "..") {
		return "", fmt.Errorf("invalid asset path: %s", rel)
	}
	root := filepath.Clean(h.assetsDir)
	abs := filepath.Join(root, cleaned)
	if abs != root && !strings.HasPrefix(abs, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("path escapes assets directory")
	}
	return abs, nil
}

// ServeFile handles GET /api/assets/*.
func (h *AssetHandler) ServeFile(w http.ResponseWriter, r *http.Request) {
	rel := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	abs, err := h.safeRel(rel)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, statErr := os.Stat(abs); os.IsNotExist(statErr) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, abs)
}

// Upload handles POST /api/assets (multipart/form-data, field "file").
// A name collision never overwrites; the new file gets a short unique
// suffix instead.
func (h *AssetHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("file too large or invalid multipart"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("missing 'file' field in multipart form"))
		return
	}
	defer file.Close()

	name := filepath.Base(filepath.Clean(header.Filename))
	ext := strings.ToLower(filepath.Ext(name))
	if !assetExts[ext] {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("unsupported asset type %q", ext)))
		return
	}

	now := time.Now().UTC()
	month := path.Join(now.Format("2006"), now.Format("01"))
	rel := path.Join(month, name)
	abs, err := h.safeRel(rel)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	if _, statErr := os.Stat(abs); statErr == nil {
		stem := strings.TrimSuffix(name, ext)
		name = fmt.Sprintf("%s-%s%s", stem, uuid.NewString()[:8], ext)
		rel = path.Join(month, name)
		if abs, err = h.safeRel(rel); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create assets dir"))
		return
	}
	dst, err := os.Create(abs)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to create file"))
		return
	}
	defer dst.Close()

	written, err := io.Copy(dst, file)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorBody("failed to write file"))
		return
	}

	writeJSON(w, http.StatusCreated, AssetUploadResponse{
		Filename: name,
		Size:     written,
		URL:      "/assets/" + rel,
	})
}
