// Package debug serves a read-mostly HTTP view of the resource cache.
package debug

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/docker/go-units"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/spaghettifunk/reverie/engine/core"
	"github.com/spaghettifunk/reverie/engine/resources"
)

// Scheduler runs fn on the engine's main thread.
type Scheduler func(fn func())

type Server struct {
	cache    *resources.ResourceCache
	schedule Scheduler
	srv      *http.Server
	router   http.Handler
}

type HandleSummary struct {
	Uuid        core.Uuid              `json:"uuid"`
	Name        string                 `json:"name"`
	Type        string                 `json:"type"`
	Path        string                 `json:"path,omitempty"`
	Paths       []string               `json:"additionalPaths,omitempty"`
	Cost        int64                  `json:"cost"`
	Behavior    resources.BehaviorFlag `json:"behaviorFlags"`
	Loading     bool                   `json:"loading"`
	Constructed bool                   `json:"constructed"`
	NeedsReload bool                   `json:"needsReload"`
	Children    []HandleSummary        `json:"children,omitempty"`
}

type Stats struct {
	Handles                 int                `json:"handles"`
	TopLevel                int                `json:"topLevel"`
	CurrentCost             int64              `json:"currentCost"`
	MaxCost                 int64              `json:"maxCost"`
	Usage                   string             `json:"usage"`
	Loading                 int64              `json:"loading"`
	PendingPostConstruction int                `json:"pendingPostConstruction"`
	Resources               core.ResourceStats `json:"resources"`
	FPS                     float64            `json:"fps"`
	FrameMS                 float64            `json:"frameMs"`
}

// NewServer creates the inspector for cache. Reloads and removals are handed
// to schedule, or run on the request goroutine when schedule is nil.
func NewServer(addr string, cache *resources.ResourceCache, schedule Scheduler) *Server {
	if schedule == nil {
		schedule = func(fn func()) { fn() }
	}
	s := &Server{cache: cache, schedule: schedule}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/stats", s.handleStats)
	r.Route("/resources", func(rr chi.Router) {
		rr.Get("/", s.handleList)
		rr.Get("/{uuid}", s.handleGet)
		rr.Post("/{uuid}/reload", s.handleReload)
		rr.Delete("/{uuid}", s.handleDelete)
	})
	s.router = r
	s.srv = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Start binds the listener and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return err
	}
	core.LogInfo("resource inspector listening on http://%s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			core.LogError("resource inspector stopped: %s", err)
		}
	}()
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// GET /resources lists the top-level handles as trees, most recently used
// first. ?type= filters by resource type.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	filter := resources.ResourceTypeInvalid
	if t := r.URL.Query().Get("type"); t != "" {
		filter = resources.ParseResourceType(t)
		if filter == resources.ResourceTypeInvalid {
			writeError(w, http.StatusBadRequest, "unknown resource type "+strconv.Quote(t))
			return
		}
	}

	out := []HandleSummary{}
	for _, h := range s.cache.TopLevelHandles() {
		if filter != resources.ResourceTypeInvalid && h.Type() != filter {
			continue
		}
		out = append(out, summarize(h))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, summarize(h))
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if h.IsLoading() {
		writeError(w, http.StatusConflict, "resource is loading")
		return
	}
	s.schedule(func() { s.cache.ReloadHandle(h) })
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reloading"})
}

// DELETE /resources/{uuid} unloads a top-level handle. ?force=true removes
// core and non-removable handles, ?handle=true drops the handle too.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	h, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if h.IsChild() {
		writeError(w, http.StatusConflict, "only top-level resources can be removed")
		return
	}

	var flags resources.DeleteFlag
	q := r.URL.Query()
	if force, _ := strconv.ParseBool(q.Get("force")); force {
		flags |= resources.DeleteForce
	}
	if drop, _ := strconv.ParseBool(q.Get("handle")); drop {
		flags |= resources.DeleteHandle
	}
	if h.IsPermanent() && flags&resources.DeleteForce == 0 {
		writeError(w, http.StatusConflict, "resource is permanent, use force=true")
		return
	}
	s.schedule(func() { s.cache.Remove(h, flags) })
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "removing"})
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	fps, ms := core.MetricsFrame()
	current, limit := s.cache.CurrentCost(), s.cache.MaxCost()
	writeJSON(w, http.StatusOK, Stats{
		Handles:                 s.cache.Len(),
		TopLevel:                len(s.cache.TopLevelHandles()),
		CurrentCost:             current,
		MaxCost:                 limit,
		Usage:                   units.BytesSize(float64(current)) + " / " + units.BytesSize(float64(limit)),
		Loading:                 s.cache.LoadCount(),
		PendingPostConstruction: s.cache.PendingPostConstruction(),
		Resources:               core.MetricsResources().Snapshot(),
		FPS:                     fps,
		FrameMS:                 ms,
	})
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*resources.ResourceHandle, bool) {
	id, err := core.ParseUuid(chi.URLParam(r, "uuid"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid uuid")
		return nil, false
	}
	h := s.cache.GetHandle(id)
	if h == nil {
		writeError(w, http.StatusNotFound, "resource not found")
		return nil, false
	}
	return h, true
}

func summarize(h *resources.ResourceHandle) HandleSummary {
	out := HandleSummary{
		Uuid:        h.Uuid(),
		Name:        h.Name(),
		Type:        h.Type().String(),
		Path:        h.Path(),
		Paths:       h.AdditionalPaths(),
		Cost:        h.Cost(),
		Behavior:    h.BehaviorFlags(),
		Loading:     h.IsLoading(),
		Constructed: h.IsConstructed(),
		NeedsReload: h.NeedsReload(),
	}
	children := h.Children()
	sort.Slice(children, func(i, j int) bool { return children[i].Name() < children[j].Name() })
	for _, c := range children {
		out.Children = append(out.Children, summarize(c))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
