package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/vault-city/internal/action"
	"github.com/nidhogg/vault-city/internal/sim"
	"github.com/nidhogg/vault-city/internal/stimulus"
	"github.com/nidhogg/vault-city/internal/world"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	store    *world.Store
	stim     *stimulus.Manager
	sched    *sim.Scheduler
	bus      *sim.Bus
	registry *action.Registry
	logger   *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(
	store *world.Store,
	stim *stimulus.Manager,
	sched *sim.Scheduler,
	bus *sim.Bus,
	registry *action.Registry,
	logger *zap.Logger,
) *Handler {
	return &Handler{
		store:    store,
		stim:     stim,
		sched:    sched,
		bus:      bus,
		registry: registry,
		logger:   logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)

		r.Get("/agents", h.listAgents)
		r.Post("/agents", h.spawnAgent)
		r.Get("/agents/{id}", h.getAgent)
		r.Delete("/agents/{id}", h.despawnAgent)

		r.Get("/rooms", h.listRooms)
		r.Post("/rooms", h.createRoom)
		r.Get("/rooms/{id}", h.getRoom)

		r.Post("/stimuli", h.injectStimulus)
		r.Get("/actions", h.listActions)

		r.Get("/world/status", h.worldStatus)
		r.Post("/world/start", h.startWorld)
		r.Post("/world/stop", h.stopWorld)
		r.Post("/world/reset", h.resetWorld)
	})

	r.Get("/ws", h.serveWS)

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "world": "vault-city"})
}

func (h *Handler) listAgents(w http.ResponseWriter, r *http.Request) {
	var agents []world.AgentSnapshot
	for _, id := range h.store.EntitiesWith(world.CompAgent) {
		if snap, ok := world.SnapshotAgent(h.store, id); ok {
			agents = append(agents, snap)
		}
	}
	writeJSON(w, http.StatusOK, agents)
}

type spawnRequest struct {
	Name  string           `json:"name"`
	Bio   string           `json:"bio"`
	Room  string           `json:"room"`
	Goals []world.GoalItem `json:"goals,omitempty"`
}

func (h *Handler) spawnAgent(w http.ResponseWriter, r *http.Request) {
	var req spawnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" || req.Room == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name and room are required"})
		return
	}
	roomID, ok := h.roomByName(req.Room)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	id, err := world.SpawnAgent(h.store, world.AgentSeed{
		Name:  req.Name,
		Bio:   req.Bio,
		Goals: req.Goals,
		Room:  roomID,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	snap, _ := world.SnapshotAgent(h.store, id)
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) getAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := entityParam(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	snap, ok := world.SnapshotAgent(h.store, id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) despawnAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := entityParam(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	if _, ok := world.Get[world.Agent](h.store, world.CompAgent, id); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	h.store.DestroyEntity(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (h *Handler) listRooms(w http.ResponseWriter, r *http.Request) {
	var rooms []world.RoomSnapshot
	for _, id := range h.store.EntitiesWith(world.CompRoom) {
		if snap, ok := world.SnapshotRoom(h.store, id); ok {
			rooms = append(rooms, snap)
		}
	}
	writeJSON(w, http.StatusOK, rooms)
}

type roomRequest struct {
	Name     string `json:"name"`
	Ambience string `json:"ambience,omitempty"`
}

func (h *Handler) createRoom(w http.ResponseWriter, r *http.Request) {
	var req roomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
		return
	}
	if _, exists := h.roomByName(req.Name); exists {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "room already exists"})
		return
	}
	id, err := world.CreateRoom(h.store, req.Name, req.Ambience)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	snap, _ := world.SnapshotRoom(h.store, id)
	writeJSON(w, http.StatusCreated, snap)
}

func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := entityParam(r, "id")
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid id"})
		return
	}
	snap, ok := world.SnapshotRoom(h.store, id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type stimulusRequest struct {
	Type       string  `json:"type"`
	Room       uint64  `json:"room"`
	Source     uint64  `json:"source,omitempty"`
	SourceKind string  `json:"source_kind,omitempty"`
	Content    string  `json:"content"`
	Decay      int     `json:"decay,omitempty"`
	Intensity  float64 `json:"intensity,omitempty"`
}

func (h *Handler) injectStimulus(w http.ResponseWriter, r *http.Request) {
	var req stimulusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	kind := world.SourceKind(req.SourceKind)
	if kind == "" {
		kind = world.SourceExternal
	}
	id, err := h.stim.Create(stimulus.CreateRequest{
		Type:       world.StimulusType(req.Type),
		Source:     world.EntityID(req.Source),
		SourceKind: kind,
		Room:       world.EntityID(req.Room),
		Content:    req.Content,
		Decay:      req.Decay,
		Intensity:  req.Intensity,
	})
	if err != nil {
		var verr *stimulus.ValidationError
		switch {
		case errors.As(err, &verr):
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		case errors.Is(err, world.ErrNotFound):
			writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		}
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": uint64(id)})
}

func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Modules())
}

func (h *Handler) worldStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"running":     h.sched.Running(),
		"tick":        h.sched.TickCount(),
		"agents":      h.store.Count(world.CompAgent),
		"rooms":       h.store.Count(world.CompRoom),
		"stimuli":     h.stim.ActiveCount(),
		"subscribers": h.bus.SubscriberCount(),
	})
}

func (h *Handler) startWorld(w http.ResponseWriter, r *http.Request) {
	h.sched.Start()
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

func (h *Handler) stopWorld(w http.ResponseWriter, r *http.Request) {
	h.sched.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (h *Handler) resetWorld(w http.ResponseWriter, r *http.Request) {
	h.sched.Reset()
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (h *Handler) roomByName(name string) (world.EntityID, bool) {
	for _, id := range h.store.EntitiesWith(world.CompRoom) {
		room, _ := world.Get[world.Room](h.store, world.CompRoom, id)
		if room.Name == name {
			return id, true
		}
	}
	return 0, false
}

func entityParam(r *http.Request, key string) (world.EntityID, bool) {
	raw := chi.URLParam(r, key)
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return world.EntityID(id), true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
