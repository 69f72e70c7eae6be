// Package http provides the JSON API for the invoice dashboard.
package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ai-invoice-agent-service/internal/agent"
	"ai-invoice-agent-service/internal/api/ws"
	"ai-invoice-agent-service/internal/models"
)

// NewRouter constructs the HTTP router for the service.
func NewRouter(session *agent.Session) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	h := &handlers{session: session}
	stream := ws.NewHandler(session)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/stream", stream.ServeHTTP)

		r.Route("/job", func(r chi.Router) {
			r.Get("/", h.getJob)
			r.Post("/start", h.startJob)
			r.Post("/complete", h.completeJob)
			r.Post("/reset", h.resetJob)

			r.Route("/items", func(r chi.Router) {
				r.Post("/", h.addItem)
				r.Post("/labor", h.addLabor)
				r.Route("/{id}", func(r chi.Router) {
					r.Delete("/", h.removeItem)
					r.Post("/free", h.makeFree)
					r.Post("/restore", h.restorePrice)
					r.Put("/labor-description", h.setLaborDescription)
				})
			})
		})
	})

	return r
}

type handlers struct {
	session *agent.Session
}

func (h *handlers) getJob(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.SnapshotState())
}

func (h *handlers) startJob(w http.ResponseWriter, r *http.Request) {
	var job models.JobContext
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
			writeError(w, http.StatusBadRequest, "invalid job payload")
			return
		}
	}
	h.session.StartJob(job)
	writeJSON(w, http.StatusOK, h.session.SnapshotState())
}

func (h *handlers) completeJob(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Complete())
}

func (h *handlers) resetJob(w http.ResponseWriter, _ *http.Request) {
	h.session.Reset()
	writeJSON(w, http.StatusOK, h.session.SnapshotState())
}

func (h *handlers) addItem(w http.ResponseWriter, r *http.Request) {
	var item models.InvoiceItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item payload")
		return
	}
	if item.Name == "" {
		writeError(w, http.StatusBadRequest, "item name is required")
		return
	}
	writeJSON(w, http.StatusCreated, h.session.AddItem(item))
}

func (h *handlers) addLabor(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Description string `json:"description"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid labor payload")
			return
		}
	}
	writeJSON(w, http.StatusCreated, h.session.AddLaborHour(body.Description))
}

func (h *handlers) removeItem(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	item, found := h.session.RemoveItem(id)
	if !found {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handlers) makeFree(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	item, found := h.session.MakeFree(id)
	if !found {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handlers) restorePrice(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	item, found := h.session.RestorePrice(id)
	if !found {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (h *handlers) setLaborDescription(w http.ResponseWriter, r *http.Request) {
	id, ok := itemID(w, r)
	if !ok {
		return
	}
	var body struct {
		LaborDescription string `json:"laborDescription"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	item, found := h.session.SetLaborDescription(id, body.LaborDescription)
	if !found {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func itemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid item id")
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
