package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/sauresha/sauresha/pkg/log"
	"github.com/sauresha/sauresha/pkg/types"
)

type flatResponse struct {
	ID        string    `json:"id"`
	Label     string    `json:"label"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

// handleListFlats returns the flats of the last refresh. Before the first
// refresh the flat list is fetched on demand.
func (s *Server) handleListFlats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	snap := s.saures.Snapshot()
	flats := make([]flatResponse, 0, len(snap.Flats))
	for _, flat := range snap.Flats {
		flats = append(flats, flatResponse{ID: flat.ID, Label: flat.Label, UpdatedAt: flat.UpdatedAt})
	}
	if len(flats) == 0 {
		for id, label := range s.saures.ListFlats(ctx) {
			flats = append(flats, flatResponse{ID: id, Label: label})
		}
		sort.Slice(flats, func(i, j int) bool { return flats[i].ID < flats[j].ID })
	}
	writeJSON(w, flats)
}

type controllerResponse struct {
	SerialNumber string `json:"sn"`
	HardwareID   string `json:"hardware"`
	Firmware     string `json:"firmware"`
	Model        string `json:"model"`
	Meters       int    `json:"meters"`
}

func (s *Server) handleListControllers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flatID := r.PathValue("flatID")

	controllers := s.saures.Controllers(ctx, flatID)
	resp := make([]controllerResponse, 0, len(controllers))
	for _, ctrl := range controllers {
		info := s.saures.Controller(flatID, ctrl.SerialNumber())
		meters, _ := ctrl.Meters()
		resp = append(resp, controllerResponse{
			SerialNumber: ctrl.SerialNumber(),
			HardwareID:   ctrl.HardwareID(),
			Firmware:     ctrl.Firmware(),
			Model:        info.Model,
			Meters:       len(meters),
		})
	}
	writeJSON(w, resp)
}

func (s *Server) handleListMeters(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flatID := r.PathValue("flatID")

	bucket, ok := types.ParseBucket(r.URL.Query().Get("bucket"))
	if !ok {
		writeJSONError(w, "invalid bucket", http.StatusBadRequest)
		return
	}

	buckets, err := s.saures.Classify(ctx, flatID)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to classify flat", slog.String("flatID", flatID), slog.Any("error", err))
		writeJSONError(w, "failed to classify flat", http.StatusBadGateway)
		return
	}
	meters := buckets.Get(bucket)
	if meters == nil {
		meters = []types.Meter{}
	}
	writeJSON(w, meters)
}

// handleGetMeter answers from the last classification only.
func (s *Server) handleGetMeter(w http.ResponseWriter, r *http.Request) {
	flatID := r.PathValue("flatID")
	meterID := r.PathValue("meterID")

	bucket, ok := types.ParseBucket(r.URL.Query().Get("bucket"))
	if !ok {
		writeJSONError(w, "invalid bucket", http.StatusBadRequest)
		return
	}

	sensor := s.saures.Lookup(flatID, meterID, bucket)
	if !sensor.Found() {
		writeJSONError(w, "meter not found", http.StatusNotFound)
		return
	}
	writeJSON(w, sensor.Meter)
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	meterID := r.PathValue("meterID")

	var req commandRequest
	// Limit body size to 1MB to prevent DoS
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		// since we failed to read, don't return JSON error
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		writeJSONError(w, "command required", http.StatusBadRequest)
		return
	}

	if !s.saures.SendCommand(ctx, meterID, req.Command) {
		writeJSONError(w, "command rejected", http.StatusBadGateway)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "command sent", slog.String("meterID", meterID), slog.String("command", req.Command))
	writeJSON(w, struct {
		OK bool `json:"ok"`
	}{OK: true})
}
