// Package handlers implements the worker's API operations.
package handlers

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
)

// WorkerState exposes the acquirer's runtime state to handlers.
type WorkerState interface {
	Busy() bool
	QueueConnected() bool
}

// HealthHandler handles the health endpoint.
type HealthHandler struct {
	state WorkerState
}

// NewHealthHandler creates a health handler.
func NewHealthHandler(state WorkerState) *HealthHandler {
	return &HealthHandler{state: state}
}

// HealthOutput is the health endpoint response.
type HealthOutput struct {
	Body struct {
		Status         string `json:"status" example:"ok"`
		QueueConnected bool   `json:"queueConnected"`
		Busy           bool   `json:"busy"`
	}
}

// Register registers the health operation.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      "GET",
		Path:        "/health",
		Summary:     "Health check",
		Description: "Reports worker liveness, queue connectivity, and whether a job is in flight.",
		Tags:        []string{"System"},
	}, h.GetHealth)
}

// GetHealth returns the worker's health.
func (h *HealthHandler) GetHealth(_ context.Context, _ *struct{}) (*HealthOutput, error) {
	out := &HealthOutput{}
	out.Body.Status = "ok"
	out.Body.QueueConnected = h.state.QueueConnected()
	out.Body.Busy = h.state.Busy()
	return out, nil
}
