package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sauresha/sauresha/pkg/log"
	"github.com/sauresha/sauresha/pkg/saures"
	"github.com/sauresha/sauresha/pkg/types"
)

type updateResponse struct {
	Flats    int `json:"flats"`
	Readings int `json:"readings"`
}

// handleUpdate runs a full refresh, publishes the readings and stores them.
// It's meant to be hit by a scheduler every few minutes.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if err := s.saures.RefreshAll(ctx); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "refresh failed", slog.Any("error", err))
		if errors.Is(err, saures.ErrAuthentication) {
			writeJSONError(w, "saures authentication failed", http.StatusBadGateway)
			return
		}
		writeJSONError(w, "refresh failed", http.StatusBadGateway)
		return
	}

	snap := s.saures.Snapshot()
	readings := snap.Readings()

	if s.publisher != nil {
		if err := s.publisher.PublishSnapshot(ctx, snap); err != nil {
			// readings are still stored below
			log.Ctx(ctx).WarnContext(ctx, "failed to publish snapshot", slog.Any("error", err))
		}
	}

	for _, flat := range snap.Flats {
		flatReadings := readingsOf(readings, flat.ID)
		if len(flatReadings) == 0 {
			continue
		}
		if err := s.storage.InsertReadings(ctx, flat.ID, flatReadings); err != nil {
			log.Ctx(ctx).ErrorContext(ctx, "failed to store readings", slog.String("flatID", flat.ID), slog.Any("error", err))
			writeJSONError(w, "failed to store readings", http.StatusInternalServerError)
			return
		}
	}

	log.Ctx(ctx).InfoContext(ctx, "update complete", slog.Int("flats", len(snap.Flats)), slog.Int("readings", len(readings)))
	writeJSON(w, updateResponse{Flats: len(snap.Flats), Readings: len(readings)})
}

func readingsOf(readings []types.Reading, flatID string) []types.Reading {
	var out []types.Reading
	for _, r := range readings {
		if r.FlatID == flatID {
			out = append(out, r)
		}
	}
	return out
}
