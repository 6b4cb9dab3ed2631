package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nexus/internal/domain"
	"github.com/MrSnakeDoc/nexus/internal/httpserver/deps"
)

type banView struct {
	domain.Ban
	Permanent        bool `json:"permanent"`
	RemainingMinutes int  `json:"remaining_minutes,omitempty"`
}

type banListResponse struct {
	Count int       `json:"count"`
	Bans  []banView `json:"bans"`
}

func viewBan(b domain.Ban, now time.Time) banView {
	v := banView{Ban: b, Permanent: b.Permanent()}
	if !v.Permanent {
		v.RemainingMinutes = b.RemainingMinutes(now)
	}
	return v
}

func timeNow(d deps.Deps) time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}

// ListBans returns the bans still in force.
func ListBans(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		bans, err := read(r.Context(), d.Loop, d.Gate.List)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		now := timeNow(d)
		out := make([]banView, 0, len(bans))
		for _, b := range bans {
			out = append(out, viewBan(b, now))
		}
		writeJSON(w, http.StatusOK, banListResponse{Count: len(out), Bans: out})
	}
}

type banRequest struct {
	PlayerID string `json:"player_id"`
	Reason   string `json:"reason"`
	// Duration is a Go duration ("90m", "24h"). Empty means permanent.
	Duration string `json:"duration,omitempty"`
}

type banResult struct {
	ban domain.Ban
	err error
}

// CreateBan bans a player, permanently or for the requested duration.
func CreateBan(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req banRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid body: %w", err))
			return
		}

		var dur time.Duration
		if req.Duration != "" {
			var err error
			if dur, err = time.ParseDuration(req.Duration); err != nil || dur <= 0 {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid duration %q", req.Duration))
				return
			}
		}

		ctx := r.Context()
		res, err := read(ctx, d.Loop, func() banResult {
			if dur > 0 {
				b, err := d.Gate.TempBan(ctx, req.PlayerID, req.Reason, dur)
				return banResult{b, err}
			}
			b, err := d.Gate.Ban(ctx, req.PlayerID, req.Reason)
			return banResult{b, err}
		})
		if err == nil {
			err = res.err
		}
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, viewBan(res.ban, timeNow(d)))
	}
}

// DeleteBan lifts the ban on the player in the URL.
func DeleteBan(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		ctx := r.Context()
		uerr, err := read(ctx, d.Loop, func() error { return d.Gate.Unban(ctx, id) })
		if err == nil {
			err = uerr
		}
		if err != nil {
			if errors.Is(err, domain.ErrBanNotFound) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, statusFor(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
