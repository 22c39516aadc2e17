package handlers

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"menu3d/internal/domain"
	"menu3d/internal/generation"
)

// multipartMemory is how much of a multipart body is buffered in memory;
// the remainder spills to temporary files.
const multipartMemory = 8 << 20

type jobResponse struct {
	ID          string     `json:"id"`
	DishID      string     `json:"dishId"`
	Status      string     `json:"status"`
	Progress    int        `json:"progress"`
	InputImages []string   `json:"inputImages"`
	ResultURL   *string    `json:"resultUrl"`
	Error       *string    `json:"error"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	CompletedAt *time.Time `json:"completedAt"`
}

func toJobResponse(job *domain.GenerationJob) jobResponse {
	resp := jobResponse{
		ID:          job.ID,
		DishID:      job.DishID,
		Status:      string(job.Status),
		Progress:    job.Progress,
		InputImages: job.InputImages,
		CreatedAt:   job.CreatedAt,
		UpdatedAt:   job.UpdatedAt,
		CompletedAt: job.CompletedAt,
	}
	if resp.InputImages == nil {
		resp.InputImages = []string{}
	}
	if job.ResultURL != "" {
		url := job.ResultURL
		resp.ResultURL = &url
	}
	if job.Error != "" {
		msg := job.Error
		resp.Error = &msg
	}
	return resp
}

// CreateGenerationJob accepts a multipart submission with a dishId field and
// one or more files under "image" or "images".
func (a *App) CreateGenerationJob(w http.ResponseWriter, r *http.Request) {
	arity := a.Generation.ImageArity()
	r.Body = http.MaxBytesReader(w, r.Body, int64(arity)*a.MaxUploadBytes+multipartMemory)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusBadRequest, "invalid_request", "request body is too large")
			return
		}
		a.error(w, http.StatusBadRequest, "invalid_request", "expected a multipart/form-data body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	req := generation.SubmitRequest{DishID: strings.TrimSpace(r.FormValue("dishId"))}
	for _, field := range []string{"image", "images"} {
		for _, fh := range r.MultipartForm.File[field] {
			req.Images = append(req.Images, uploadFromHeader(fh))
		}
	}

	job, err := a.Generation.Submit(r.Context(), req)
	if err != nil {
		a.writeSubmitError(w, err)
		return
	}
	a.json(w, http.StatusAccepted, toJobResponse(job))
}

func uploadFromHeader(fh *multipart.FileHeader) generation.ImageUpload {
	return generation.ImageUpload{
		Filename: fh.Filename,
		Size:     fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

func (a *App) writeSubmitError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, domain.ErrQueueFull):
		w.Header().Set("Retry-After", "5")
		a.error(w, http.StatusServiceUnavailable, "queue_full", "generation queue is full, retry later")
	case errors.Is(err, domain.ErrServiceUnavailable):
		a.error(w, http.StatusServiceUnavailable, "provider_unavailable", "3D generation is not available")
	default:
		a.Logger.Error().Err(err).Msg("submit generation job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to create generation job")
	}
}

func (a *App) ListGenerationJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.Generation.ListJobs(r.Context())
	if err != nil {
		a.Logger.Error().Err(err).Msg("list generation jobs")
		a.error(w, http.StatusInternalServerError, "internal", "failed to list generation jobs")
		return
	}
	out := make([]jobResponse, 0, len(jobs))
	for i := range jobs {
		out = append(out, toJobResponse(&jobs[i]))
	}
	a.json(w, http.StatusOK, out)
}

// GetGenerationJob returns one job. With ?wait=<duration> it holds the
// request until the job is terminal or the wait elapses.
func (a *App) GetGenerationJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	wait, err := parseWait(r.URL.Query().Get("wait"))
	if err != nil {
		a.error(w, http.StatusBadRequest, "invalid_request", "wait must be a duration such as 20s or a number of seconds")
		return
	}

	var job *domain.GenerationJob
	if wait > 0 {
		job, err = a.Generation.WaitJob(r.Context(), id, wait)
	} else {
		job, err = a.Generation.GetJob(r.Context(), id)
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			a.error(w, http.StatusNotFound, "not_found", "generation job not found")
			return
		}
		a.Logger.Error().Err(err).Str("job_id", id).Msg("get generation job")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load generation job")
		return
	}
	a.json(w, http.StatusOK, toJobResponse(job))
}

func parseWait(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs < 0 {
			return 0, errors.New("negative wait")
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, errors.New("negative wait")
	}
	return d, nil
}
