// Package web serves the staged artifacts over HTTP: the metadata document
// the website renders its mosque list from, and the ICS feeds for calendar
// clients that subscribe directly instead of through Google Calendar.
package web

import (
	"embed"
	"net/http"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"mosquee-agenda/internal/cache"
	"mosquee-agenda/internal/logging"
	"mosquee-agenda/internal/store"
)

//go:embed templates/index.html
var templates embed.FS

// Handler holds the HTTP handlers and their dependencies.
type Handler struct {
	store        store.Store
	cache        *cache.Cache
	metadataPath string
	log          *logrus.Logger
}

// New creates a Handler serving feeds from st and the metadata file at
// metadataPath. A nil cache disables caching, which is fine when the store
// is local disk.
func New(st store.Store, c *cache.Cache, metadataPath string, log *logrus.Logger) *Handler {
	if log == nil {
		log = logging.Discard()
	}
	return &Handler{
		store:        st,
		cache:        c,
		metadataPath: metadataPath,
		log:          log,
	}
}

// RegisterRoutes registers all HTTP routes on the given mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/", h.noCache(h.handleIndex))
	mux.HandleFunc("/mosques", h.noCache(h.handleMosques))
	mux.HandleFunc("/feeds/", h.handleFeed)
	mux.HandleFunc("/health", h.handleHealth)
}

func (h *Handler) noCache(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, proxy-revalidate")
		w.Header().Set("Pragma", "no-cache")
		w.Header().Set("Expires", "0")
		next(w, r)
	}
}

func (h *Handler) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	data, _ := templates.ReadFile("templates/index.html")
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// handleMosques serves the metadata document written by the last successful
// run.
func (h *Handler) handleMosques(w http.ResponseWriter, r *http.Request) {
	data, ok := h.cached("metadata", func() ([]byte, bool) {
		data, err := os.ReadFile(h.metadataPath)
		if err != nil {
			return nil, false
		}
		return data, true
	})
	if !ok {
		http.Error(w, "no metadata published yet", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Write(data)
}

// handleFeed serves one mosque's staged ICS feed as /feeds/<key>.ics.
func (h *Handler) handleFeed(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/feeds/")
	if !strings.HasSuffix(name, ".ics") {
		http.NotFound(w, r)
		return
	}
	key := strings.TrimSuffix(name, ".ics")
	if key == "" || strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") {
		http.NotFound(w, r)
		return
	}

	data, ok := h.cached("feed_"+key, func() ([]byte, bool) {
		return h.store.GetICS(key)
	})
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Cache-Control", "max-age=3600")
	w.Write(data)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// cached runs fetch through the TTL cache when one is configured.
func (h *Handler) cached(name string, fetch func() ([]byte, bool)) ([]byte, bool) {
	if h.cache == nil {
		return fetch()
	}
	if data, ok := h.cache.Get(name); ok {
		return data, true
	}
	data, ok := fetch()
	if !ok {
		return nil, false
	}
	if err := h.cache.Set(name, data); err != nil {
		h.log.WithError(err).Warn("caching served artifact")
	}
	return data, true
}
