// Package deployapi implements the Deployment HTTP surface:
// submit DSL for build, query job status, look up and manage deployments.
package deployapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"go.uber.org/zap"

	"zkgate/internal/apperrors"
	"zkgate/internal/buildqueue"
	"zkgate/internal/dsl"
	"zkgate/internal/registry"
)

// Handlers wires the Deployment HTTP surface's dependencies.
type Handlers struct {
	queue    *buildqueue.Queue
	registry *registry.Registry
	log      *zap.Logger
}

// New constructs Handlers.
func New(queue *buildqueue.Queue, reg *registry.Registry, log *zap.Logger) *Handlers {
	return &Handlers{queue: queue, registry: reg, log: log}
}

// submitJobRequest is the POST /jobs request body.
type submitJobRequest struct {
	CustomerID string       `json:"customer_id"`
	WebhookURL string       `json:"webhook_url,omitempty"`
	DSL        dsl.Document `json:"dsl"`
}

type submitJobResponse struct {
	JobID string `json:"job_id"`
}

// SubmitJob validates the posted DSL and enqueues a build job.
func (h *Handlers) SubmitJob(w http.ResponseWriter, r *http.Request) {
	var req submitJobRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		h.renderError(w, r, apperrors.ErrInvalidArgument.Wrap(err))
		return
	}
	if req.CustomerID == "" {
		h.renderError(w, r, apperrors.ErrInvalidArgument.Wrap(errors.New("customer_id is required")))
		return
	}
	if err := dsl.Validate(req.DSL); err != nil {
		h.renderError(w, r, apperrors.ErrInvalidArgument.Wrap(err))
		return
	}

	job := buildqueue.NewJob(req.CustomerID, req.DSL, req.WebhookURL)
	if err := h.queue.Enqueue(r.Context(), job); err != nil {
		h.renderError(w, r, err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, submitJobResponse{JobID: job.ID})
}

// jobStatusResponse wraps a build job with its derived timing fields.
type jobStatusResponse struct {
	buildqueue.Job
	QueueWaitSeconds float64 `json:"queue_wait_seconds"`
	BuildSeconds     float64 `json:"build_seconds"`
}

// JobStatus returns a build job's current record, including its queue wait
// time and build duration computed from the persisted status timestamps.
func (h *Handlers) JobStatus(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, found, err := h.queue.Get(r.Context(), jobID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if !found {
		h.renderError(w, r, apperrors.ErrNotFound)
		return
	}
	render.JSON(w, r, jobStatusResponse{
		Job:              job,
		QueueWaitSeconds: job.QueueWaitDuration().Seconds(),
		BuildSeconds:     job.BuildDuration().Seconds(),
	})
}

// GetDeploymentByCustomer looks up a deployment by tenant id.
func (h *Handlers) GetDeploymentByCustomer(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	d, found, err := h.registry.Get(r.Context(), customerID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if !found {
		h.renderError(w, r, apperrors.ErrNotFound)
		return
	}
	render.JSON(w, r, d)
}

// GetDeploymentByImageID looks up a deployment by its reverse mapping.
func (h *Handlers) GetDeploymentByImageID(w http.ResponseWriter, r *http.Request) {
	imageID := chi.URLParam(r, "imageID")
	d, found, err := h.registry.GetByImageID(r.Context(), imageID)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if !found {
		h.renderError(w, r, apperrors.ErrNotFound)
		return
	}
	render.JSON(w, r, d)
}

// ListDeployments lists every registered deployment in full.
func (h *Handlers) ListDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := h.registry.ListDeployments(r.Context())
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	render.JSON(w, r, map[string][]registry.Deployment{"deployments": deployments})
}

// UpsertDeployment creates a deployment if absent, or updates it otherwise.
func (h *Handlers) UpsertDeployment(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	var d registry.Deployment
	if err := render.DecodeJSON(r.Body, &d); err != nil {
		h.renderError(w, r, apperrors.ErrInvalidArgument.Wrap(err))
		return
	}
	d.CustomerID = customerID

	created, err := h.registry.Register(r.Context(), d)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if created {
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, d)
		return
	}

	updated, err := h.registry.Update(r.Context(), customerID, d)
	if err != nil {
		h.renderError(w, r, err)
		return
	}
	if !updated {
		h.renderError(w, r, apperrors.ErrConflict)
		return
	}
	render.JSON(w, r, d)
}

// DeleteDeployment removes a deployment and its reverse mapping.
func (h *Handlers) DeleteDeployment(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	if err := h.registry.Delete(r.Context(), customerID); err != nil {
		h.renderError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) renderError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatusFor(err)
	h.log.Warn("deployapi request failed", zap.Int("status", status), zap.Error(err), zap.String("path", r.URL.Path))
	render.Status(r, status)
	render.JSON(w, r, errorResponse{Error: errMessage(err)})
}

type errorResponse struct {
	Error string `json:"error"`
}

func errMessage(err error) string {
	var e *apperrors.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}
