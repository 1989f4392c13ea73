// Package handlers provides HTTP request handlers for the API endpoints.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/avaria-tracker/backend/internal/storage"
	"github.com/avaria-tracker/backend/internal/websocket"
)

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status      string `json:"status"`
	DBConnected bool   `json:"db_connected"`
}

// HealthCheck returns a handler that performs a health check.
func HealthCheck(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbConnected := db.PingContext(r.Context()) == nil

		status := "healthy"
		if !dbConnected {
			status = "degraded"
		}

		w.Header().Set("Content-Type", "application/json")
		if !dbConnected {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(HealthResponse{Status: status, DBConnected: dbConnected})
	}
}

// StatusResponse represents the chat status response.
type StatusResponse struct {
	Version string                  `json:"version"`
	Chat    websocket.RegistryStats `json:"chat"`
}

// Status returns a handler reporting the live chat registry counts.
func Status(registry *websocket.Registry, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(StatusResponse{
			Version: version,
			Chat:    registry.Stats(),
		})
	}
}
