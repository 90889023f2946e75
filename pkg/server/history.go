package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sauresha/sauresha/pkg/log"
)

const maxHistoryRange = 31 * 24 * time.Hour

func (s *Server) handleHistoryReadings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	flatID := r.URL.Query().Get("flatID")
	meterID := r.URL.Query().Get("meterID")
	if flatID == "" || meterID == "" {
		writeJSONError(w, "flatID and meterID required", http.StatusBadRequest)
		return
	}

	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}

	readings, err := s.storage.GetReadingHistory(ctx, flatID, meterID, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get readings", slog.String("flatID", flatID), slog.String("meterID", meterID), slog.Any("error", err))
		writeJSONError(w, "failed to get readings", http.StatusInternalServerError)
		return
	}

	writeJSON(w, readings)
}

func parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		// Default to last 24 hours if not specified
		end := time.Now()
		start := end.Add(-24 * time.Hour)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxHistoryRange {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 31 days")
	}

	return start, end, nil
}
