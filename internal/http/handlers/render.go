package handlers

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"

	"github.com/clipforge/clipforge/internal/models"
)

// Submitter pushes a job into the worker under the busy-flag discipline.
type Submitter interface {
	Submit(jobID models.ULID) bool
}

// RenditionGenerator produces clip renditions.
type RenditionGenerator interface {
	Generate(ctx context.Context, clipID, sourceURL string, resolutions []string) error
}

// RenderHandler handles direct render invocation and rendition generation.
type RenderHandler struct {
	sharedSecret string
	submitter    Submitter
	renditions   RenditionGenerator
	log          *slog.Logger
}

// NewRenderHandler creates a render handler. An empty shared secret
// disables both push operations.
func NewRenderHandler(sharedSecret string, submitter Submitter, renditions RenditionGenerator, log *slog.Logger) *RenderHandler {
	return &RenderHandler{
		sharedSecret: sharedSecret,
		submitter:    submitter,
		renditions:   renditions,
		log:          log,
	}
}

// RenderInput is the direct render request.
type RenderInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		JobID     string `json:"jobId" required:"false"`
		ProjectID string `json:"projectId" required:"false"`
	}
}

// RenderOutput is the accepted response.
type RenderOutput struct {
	Status int
	Body   struct {
		Status string `json:"status" example:"accepted"`
		JobID  string `json:"jobId"`
	}
}

// RenditionsInput is the rendition generation request.
type RenditionsInput struct {
	Authorization string `header:"Authorization"`
	Body          struct {
		ClipID            string   `json:"clipId" required:"false"`
		SourceURL         string   `json:"sourceUrl" required:"false"`
		TargetResolutions []string `json:"targetResolutions" required:"false"`
	}
}

// RenditionsOutput is the accepted response.
type RenditionsOutput struct {
	Status int
	Body   struct {
		Status string `json:"status" example:"accepted"`
		ClipID string `json:"clipId"`
	}
}

// Register registers the push operations.
func (h *RenderHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "postRender",
		Method:        "POST",
		Path:          "/render",
		Summary:       "Render a job",
		Description:   "Claims the job and renders it asynchronously. Requires the worker shared secret.",
		Tags:          []string{"Render"},
		DefaultStatus: http.StatusAccepted,
	}, h.PostRender)

	huma.Register(api, huma.Operation{
		OperationID:   "postGenerateRenditions",
		Method:        "POST",
		Path:          "/generate-renditions",
		Summary:       "Generate clip renditions",
		Description:   "Transcodes a public clip into the target resolutions. Fire-and-forget.",
		Tags:          []string{"Render"},
		DefaultStatus: http.StatusAccepted,
	}, h.PostGenerateRenditions)
}

// PostRender accepts a pushed render job.
func (h *RenderHandler) PostRender(_ context.Context, input *RenderInput) (*RenderOutput, error) {
	if err := h.authorize(input.Authorization); err != nil {
		return nil, err
	}
	if input.Body.JobID == "" || input.Body.ProjectID == "" {
		return nil, huma.Error400BadRequest("jobId and projectId are required")
	}
	jobID, err := models.ParseULID(input.Body.JobID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid jobId")
	}

	if !h.submitter.Submit(jobID) {
		return nil, huma.Error409Conflict("a job is already in flight")
	}

	out := &RenderOutput{Status: http.StatusAccepted}
	out.Body.Status = "accepted"
	out.Body.JobID = input.Body.JobID
	return out, nil
}

// PostGenerateRenditions accepts a rendition generation request and runs it
// in the background.
func (h *RenderHandler) PostGenerateRenditions(_ context.Context, input *RenditionsInput) (*RenditionsOutput, error) {
	if err := h.authorize(input.Authorization); err != nil {
		return nil, err
	}
	if input.Body.ClipID == "" || input.Body.SourceURL == "" || len(input.Body.TargetResolutions) == 0 {
		return nil, huma.Error400BadRequest("clipId, sourceUrl and targetResolutions are required")
	}

	clipID := input.Body.ClipID
	sourceURL := input.Body.SourceURL
	resolutions := append([]string(nil), input.Body.TargetResolutions...)
	go func() {
		if err := h.renditions.Generate(context.Background(), clipID, sourceURL, resolutions); err != nil {
			h.log.Error("rendition generation failed",
				slog.String("clip_id", clipID),
				slog.String("error", err.Error()),
			)
		}
	}()

	out := &RenditionsOutput{Status: http.StatusAccepted}
	out.Body.Status = "accepted"
	out.Body.ClipID = clipID
	return out, nil
}

// authorize checks the bearer shared secret in constant time.
func (h *RenderHandler) authorize(header string) error {
	if h.sharedSecret == "" {
		return huma.Error401Unauthorized("push surface disabled")
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return huma.Error401Unauthorized("missing bearer token")
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(h.sharedSecret)) != 1 {
		return huma.Error401Unauthorized("invalid token")
	}
	return nil
}
