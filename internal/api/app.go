package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/wpbatch/internal/batch"
	"github.com/kalambet/wpbatch/internal/command"
	"github.com/kalambet/wpbatch/internal/metrics"
	"github.com/kalambet/wpbatch/internal/profile"
	"github.com/kalambet/wpbatch/internal/publish"
	"github.com/kalambet/wpbatch/internal/storage"
	"github.com/kalambet/wpbatch/internal/wordpress"
)

type AppDeps struct {
	Store    *storage.Store
	Profiles *profile.Manager
	Batch    *batch.Controller
	Stage    *publish.Stage
	Token    string
	// UserID owns commands queued through POST /commands.
	UserID          string
	DefaultInterval int
	// BaseContext outlives requests; batches and retries run on it.
	BaseContext context.Context
}

func (d AppDeps) baseContext() context.Context {
	if d.BaseContext != nil {
		return d.BaseContext
	}
	return context.Background()
}

// NewAppHandler returns the management API. /health and /metrics are open;
// everything else requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Handle("/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/queue", handleQueue(deps))
		r.Post("/batch", handleStartBatch(deps))
		r.Post("/pause", handlePause(deps))
		r.Post("/resume", handleResume(deps))
		r.Post("/queue/{index}/retry", handleRetry(deps))
		r.Post("/commands", handleEnqueueCommand(deps))

		r.Get("/profiles", handleListProfiles(deps))
		r.Post("/profiles", handleSaveProfile(deps))
		r.Delete("/profiles/{id}", handleDeleteProfile(deps))
		r.Post("/profiles/{id}/activate", handleActivateProfile(deps))

		r.Get("/site/test", handleSiteTest(deps))
		r.Get("/site/stats", handleSiteStats(deps))
		r.Get("/site/recent", handleSiteRecent(deps))

		r.Get("/history", handleHistory(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func handleQueue(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, deps.Batch.Snapshot())
	}
}

func handleStartBatch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req BatchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := req.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if _, err := deps.Batch.Start(deps.baseContext(), req.Topics, req.Schedule(deps.DefaultInterval)); err != nil {
			code, typ := startError(err)
			httpError(w, code, typ, "%v", err)
			return
		}

		snap := deps.Batch.Snapshot()
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":   "started",
			"total":    snap.Total,
			"schedule": snap.Schedule,
		})
	}
}

func handlePause(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changed := deps.Batch.Pause(r.Context())
		writeJSON(w, http.StatusOK, map[string]bool{"paused": true, "changed": changed})
	}
}

func handleResume(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		changed := deps.Batch.Resume(r.Context())
		writeJSON(w, http.StatusOK, map[string]bool{"paused": false, "changed": changed})
	}
}

func handleRetry(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		idx, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "index must be an integer")
			return
		}
		if _, err := deps.Batch.Retry(deps.baseContext(), idx); err != nil {
			code, typ := startError(err)
			httpError(w, code, typ, "%v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"status": "retrying", "index": idx})
	}
}

func handleEnqueueCommand(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CommandRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := req.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		c, err := deps.Store.EnqueueCommand(storage.Command{
			UserID:  deps.UserID,
			Command: command.Normalize(req.Command),
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue command: %v", err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"id": c.ID, "command": c.Command})
	}
}

func handleListProfiles(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.Profiles.Settings()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load profiles: %v", err)
			return
		}
		if s.Profiles == nil {
			s.Profiles = []profile.SiteProfile{}
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func handleSaveProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var p profile.SiteProfile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if err := p.Config.Validate(); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		saved, err := deps.Profiles.Save(p)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func handleDeleteProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := deps.Profiles.Delete(id); err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "profile %s not found", id)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete profile: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleActivateProfile(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		p, err := deps.Profiles.Switch(id)
		if err != nil {
			if errors.Is(err, profile.ErrNotFound) {
				httpError(w, http.StatusNotFound, "not_found_error", "profile %s not found", id)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "failed to switch profile: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	}
}

// activeClient builds a WordPress client for the active profile, writing
// the error response itself when that is not possible.
func activeClient(w http.ResponseWriter, deps AppDeps) (*wordpress.Client, bool) {
	p, err := deps.Profiles.Active()
	if err != nil {
		httpError(w, http.StatusBadRequest, "configuration_error", "select a site profile first")
		return nil, false
	}
	client, err := deps.Stage.Client(batch.SiteFor(p.Config))
	if err != nil {
		httpError(w, http.StatusBadRequest, "configuration_error", "%v", err)
		return nil, false
	}
	return client, true
}

// siteError reports a failed WordPress call as a bad gateway, carrying the
// failure kind as the error type.
func siteError(w http.ResponseWriter, err error) {
	httpError(w, http.StatusBadGateway, "wordpress_"+string(wordpress.KindOf(err)), "%v", err)
}

func handleSiteTest(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := activeClient(w, deps)
		if !ok {
			return
		}
		u, err := client.TestConnection(r.Context())
		if err != nil {
			siteError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": u})
	}
}

func handleSiteStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := activeClient(w, deps)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, client.Stats(r.Context()))
	}
}

func handleSiteRecent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, ok := activeClient(w, deps)
		if !ok {
			return
		}
		posts, err := client.RecentPosts(r.Context())
		if err != nil {
			siteError(w, err)
			return
		}
		if posts == nil {
			posts = []wordpress.Post{}
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func handleHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 200)
		records, err := deps.Store.RecentPublishes(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}
		type historyEntry struct {
			ID          string  `json:"id"`
			ProfileID   string  `json:"profile_id"`
			Topic       string  `json:"topic"`
			Title       string  `json:"title"`
			RemoteID    int     `json:"remote_id,omitempty"`
			Status      string  `json:"status"`
			ScheduledAt *string `json:"scheduled_at,omitempty"`
			Error       string  `json:"error,omitempty"`
			CreatedAt   string  `json:"created_at"`
		}
		out := make([]historyEntry, len(records))
		for i, rec := range records {
			out[i] = historyEntry{
				ID:        rec.ID,
				ProfileID: rec.ProfileID,
				Topic:     rec.Topic,
				Title:     rec.Title,
				RemoteID:  rec.RemoteID,
				Status:    rec.Status,
				Error:     rec.Error,
				CreatedAt: rec.CreatedAt.Format(timeLayout),
			}
			if rec.ScheduledAt != nil {
				s := rec.ScheduledAt.Format(timeLayout)
				out[i].ScheduledAt = &s
			}
		}
		writeJSON(w, http.StatusOK, out)
	}
}
