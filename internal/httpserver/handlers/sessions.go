package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/filter"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
	"github.com/MrSnakeDoc/nexus/internal/logger"
	"github.com/MrSnakeDoc/nexus/internal/orchestrator"
)

type createSessionRequest struct {
	domain.SessionSettings
	Preset  string                `json:"preset,omitempty"`
	Filters []domain.SearchFilter `json:"filters,omitempty"`
}

type hostResult struct {
	settings domain.SessionSettings
	err      error
}

// CreateSession hosts a new session.
func CreateSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createSessionRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
		if req.MaxPlayers < 0 {
			writeError(w, http.StatusBadRequest, errors.New("max_players must be >= 0"))
			return
		}

		var preset *filter.Preset
		if req.Preset != "" {
			p, ok := d.MemoryIndex.GetPreset(req.Preset)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Errorf("unknown preset %q", req.Preset))
				return
			}
			preset = p
		}

		create := orchestrator.CreateRequest{
			Settings:     req.SessionSettings,
			ExtraFilters: req.Filters,
			Preset:       preset,
		}
		res, err := await(r.Context(), d.Loop, func(report func(hostResult)) {
			d.Peer.Host(create, func(s domain.SessionSettings, err error) { report(hostResult{s, err}) })
		})
		if err == nil {
			err = res.err
		}
		if err != nil {
			d.Logger.Warn("create session request failed", logger.Error(err))
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, res.settings)
	}
}

// DestroySession leaves the local session of the type in the URL, whether
// hosted or joined.
func DestroySession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := domain.ParseSessionType(chi.URLParam(r, "type"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		derr, err := await(r.Context(), d.Loop, func(report func(error)) {
			d.Peer.Leave(t, report)
		})
		if err == nil {
			err = derr
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

type sessionView struct {
	Name           string                  `json:"name"`
	SessionID      string                  `json:"session_id,omitempty"`
	Handle         string                  `json:"handle"`
	Host           bool                    `json:"host"`
	NetMode        string                  `json:"net_mode"`
	Players        []string                `json:"players"`
	CurrentPlayers int                     `json:"current_players"`
	MaxPlayers     int                     `json:"max_players"`
	Attributes     map[string]domain.Value `json:"attributes,omitempty"`
}

// GetSession describes the local session of the type in the URL.
func GetSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		t, err := domain.ParseSessionType(chi.URLParam(r, "type"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		type lookup struct {
			view sessionView
			ok   bool
		}
		res, err := read(r.Context(), d.Loop, func() lookup {
			orch := d.Peer.Orchestrator()
			ns, ok := orch.LocalSession(t)
			if !ok {
				return lookup{}
			}
			v := sessionView{
				Name:       ns.Name,
				Handle:     ns.SessionID,
				Host:       ns.Host,
				NetMode:    d.Peer.World().NetMode().String(),
				Players:    ns.RegisteredPlayers,
				MaxPlayers: ns.Settings.NumPublicConnections,
				Attributes: ns.Settings.Attributes,
			}
			if id, ok := ns.Settings.Attributes[domain.KeySessionID]; ok {
				v.SessionID = id.String()
			}
			if pc, err := orch.PlayerCounts(t); err == nil {
				v.CurrentPlayers = pc.Current
			}
			return lookup{view: v, ok: true}
		})
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		if !res.ok {
			writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, t.Name()))
			return
		}
		writeJSON(w, http.StatusOK, res.view)
	}
}

type joinRequest struct {
	SessionID   string `json:"session_id"`
	SessionType string `json:"session_type,omitempty"`
}

type findResult struct {
	result domain.SearchResult
	err    error
}

// JoinSession looks a session up by its public ID and joins it.
func JoinSession(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req joinRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}
		t, err := domain.ParseSessionType(req.SessionType)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		found, err := await(r.Context(), d.Loop, func(report func(findResult)) {
			d.Peer.Orchestrator().FindByID(req.SessionID, t, func(res domain.SearchResult, err error) {
				report(findResult{res, err})
			})
		})
		if err == nil {
			err = found.err
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}

		jerr, err := await(r.Context(), d.Loop, func(report func(error)) {
			d.Peer.Join(found.result, t, report)
		})
		if err == nil {
			err = jerr
		}
		if err != nil {
			d.Logger.Warn("join request failed",
				logger.String("session_id", req.SessionID),
				logger.Error(err))
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, found.result)
	}
}
