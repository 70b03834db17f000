// Copyright IBM Corp. All Rights Reserved.
//
// SPDX-License-Identifier: Apache-2.0
//

// Package status serves the ingestion progress and metrics over HTTP.
package status

import (
	"encoding/hex"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/streamverify/ingest/internal/downloader"
	"github.com/streamverify/ingest/pkg/api"
	"github.com/streamverify/ingest/pkg/checkpoint"
	"github.com/streamverify/ingest/pkg/types"
)

// ReportSource exposes the outcome of the last cycle of a stream type.
type ReportSource interface {
	LastReport() (downloader.Report, bool)
}

// Stream is an ingested stream type and where its reports come from.
type Stream struct {
	Type    types.StreamType
	Reports ReportSource
}

// Handler contains the HTTP handlers of the status endpoint.
type Handler struct {
	Streams        []Stream
	Checkpoints    *checkpoint.Tracker
	BypassFallback string
	Metrics        http.Handler // optional
	Logger         api.Logger
}

type checkpointView struct {
	Filename     string `json:"filename"`
	FileHash     string `json:"fileHash"`
	BypassMarker string `json:"bypassMarker,omitempty"`
}

type streamView struct {
	Stream     string             `json:"stream"`
	Checkpoint checkpointView     `json:"checkpoint"`
	LastReport *downloader.Report `json:"lastReport,omitempty"`
}

// RegisterRoutes sets up the status routes.
func RegisterRoutes(r *mux.Router, h *Handler) {
	// Checkpoint and last cycle report of every ingested stream type
	r.HandleFunc("/status", h.Status).Methods("GET")

	// Liveness, fails when the checkpoint store cannot be read
	r.HandleFunc("/healthz", h.Health).Methods("GET")

	if h.Metrics != nil {
		r.Handle("/metrics", h.Metrics).Methods("GET")
	}
}

// NewRouter returns a router serving the status routes.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	RegisterRoutes(r, h)
	return r
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	views := make([]streamView, 0, len(h.Streams))
	for _, s := range h.Streams {
		cp, err := h.Checkpoints.Load(s.Type, h.BypassFallback)
		if err != nil {
			h.Logger.Errorf("Failed reading checkpoint of %s: %v", s.Type, err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		view := streamView{
			Stream: s.Type.String(),
			Checkpoint: checkpointView{
				Filename:     cp.Filename,
				FileHash:     hex.EncodeToString(cp.FileHash),
				BypassMarker: cp.BypassMarker,
			},
		}
		if s.Reports != nil {
			if report, ok := s.Reports.LastReport(); ok {
				view.LastReport = &report
			}
		}
		views = append(views, view)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"streams": views})
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	for _, s := range h.Streams {
		if _, err := h.Checkpoints.Load(s.Type, h.BypassFallback); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
