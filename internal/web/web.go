// Package web serves the browser pages and JavaScript clients that drive the
// relay, plus a JSON lookup for transfer metadata.
package web

import (
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/httpserver"
	"github.com/wilsonzlin/aero/proxy/ws-file-relay/internal/transfer"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

var ErrNoResolver = errors.New("web: resolver is required")

// Resolver looks up announced transfers.
type Resolver interface {
	Get(transferID string) (transfer.Info, bool)
}

type Handler struct {
	resolver Resolver
	log      *slog.Logger
	pages    *template.Template
	static   http.Handler
}

type receivePage struct {
	TransferID string
	FileName   string
	FileSize   uint64
}

type transferResponse struct {
	TransferID string `json:"transfer_id"`
	FileName   string `json:"file_name"`
	FileSize   uint64 `json:"file_size"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func New(resolver Resolver, logger *slog.Logger) (*Handler, error) {
	if resolver == nil {
		return nil, ErrNoResolver
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pages, err := template.New("pages").Funcs(template.FuncMap{
		"humanSize": humanSize,
	}).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, err
	}
	assets, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, err
	}
	return &Handler{
		resolver: resolver,
		log:      logger,
		pages:    pages,
		static:   http.StripPrefix("/static/", http.FileServerFS(assets)),
	}, nil
}

func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.page("index.html"))
	mux.HandleFunc("GET /upload", h.page("upload.html"))
	mux.HandleFunc("GET /receive/{transfer_id}", h.receive)
	mux.Handle("GET /static/", h.static)
	mux.HandleFunc("GET /api/transfers/{transfer_id}", h.lookup)
}

func (h *Handler) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render(w, http.StatusOK, name, nil)
	}
}

// receive renders the receive page for a known transfer. Unknown ids get the
// not-found page.
func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("transfer_id")
	info, ok := h.resolver.Get(id)
	if !ok {
		h.render(w, http.StatusNotFound, "not_found.html", nil)
		return
	}
	h.render(w, http.StatusOK, "receive.html", receivePage{
		TransferID: id,
		FileName:   info.FileName,
		FileSize:   info.FileSize,
	})
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("transfer_id")
	info, ok := h.resolver.Get(id)
	if !ok {
		httpserver.WriteJSON(w, http.StatusNotFound, errorResponse{Code: "not_found", Message: "unknown transfer"})
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, transferResponse{
		TransferID: id,
		FileName:   info.FileName,
		FileSize:   info.FileSize,
	})
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := h.pages.ExecuteTemplate(w, name, data); err != nil {
		h.log.Error("render page", "page", name, "err", err)
	}
}

func humanSize(n uint64) string {
	const unit = 1024
	units := []string{"Bytes", "KB", "MB", "GB", "TB", "PB"}
	if n < unit {
		return formatSize(float64(n), units[0])
	}
	v := float64(n)
	i := 0
	for v >= unit && i < len(units)-1 {
		v /= unit
		i++
	}
	return formatSize(v, units[i])
}

func formatSize(v float64, unit string) string {
	s := strconv.FormatFloat(v, 'f', 2, 64)
	s = strings.TrimRight(s, "0")
	s = strings.TrimSuffix(s, ".")
	return s + " " + unit
}
