package mesh

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"menu3d/internal/infra"
)

var (
	// ErrMissingAPIKey indicates that the client was configured without credentials.
	ErrMissingAPIKey = errors.New("mesh: api token is required")
	// ErrUnauthorized is returned when the provider rejects the credential.
	ErrUnauthorized = errors.New("mesh: credential rejected by provider")
	// ErrMissingOutput is returned when a finished prediction has no asset reference.
	ErrMissingOutput = errors.New("mesh: prediction returned no model asset")
)

// APIError is a non-auth HTTP failure reported by the provider.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("mesh: status %d", e.StatusCode)
	}
	return fmt.Sprintf("mesh: status %d: %s", e.StatusCode, e.Detail)
}

// PredictionError is returned when the provider finishes a prediction
// unsuccessfully.
type PredictionError struct {
	ID      string
	Status  string
	Message string
}

func (e *PredictionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "no detail"
	}
	return fmt.Sprintf("mesh: prediction %s %s: %s", e.ID, e.Status, msg)
}

// Options configures the image-to-3D prediction client.
type Options struct {
	APIKey           string
	BaseURL          string
	Model            string
	Version          string
	Seed             int
	TextureSize      int
	MeshSimplify     float64
	RemoveBackground bool
	PollInterval     time.Duration
	HTTPClient       *http.Client
	Logger           *infra.Logger
	RequestTimeout   time.Duration
}

// Client submits photographs to a Replicate-style predictions API and waits
// for the resulting mesh.
type Client struct {
	apiKey       string
	baseURL      string
	model        string
	version      string
	params       fixedParams
	pollInterval time.Duration
	httpClient   *http.Client
	logger       *infra.Logger
}

type fixedParams struct {
	seed             int
	textureSize      int
	meshSimplify     float64
	removeBackground bool
}

// InputImage is one photograph of the dish.
type InputImage struct {
	Data []byte
	MIME string
}

// MeshRequest captures the inputs of one prediction.
type MeshRequest struct {
	Images    []InputImage
	RequestID string
}

// MeshResult is the normalized outcome of a successful prediction.
type MeshResult struct {
	PredictionID string
	AssetURL     string
}

type predictionRequest struct {
	Version string          `json:"version,omitempty"`
	Input   predictionInput `json:"input"`
}

type predictionInput struct {
	Images           []string `json:"images"`
	Seed             int      `json:"seed"`
	TextureSize      int      `json:"texture_size"`
	MeshSimplify     float64  `json:"mesh_simplify"`
	RemoveBackground bool     `json:"remove_background"`
	GenerateModel    bool     `json:"generate_model"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  any             `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

type errorResponse struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

const maxResponseBytes = 1 << 20

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 90 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = "https://api.replicate.com/v1"
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("mesh: invalid base url: %w", err)
	}
	model := strings.Trim(strings.TrimSpace(opts.Model), "/")
	version := strings.TrimSpace(opts.Version)
	if model == "" && version == "" {
		model = "firtoz/trellis"
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = 2 * time.Second
	}
	textureSize := opts.TextureSize
	if textureSize <= 0 {
		textureSize = 1024
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		baseURL: baseURL,
		model:   model,
		version: version,
		params: fixedParams{
			seed:             opts.Seed,
			textureSize:      textureSize,
			meshSimplify:     opts.MeshSimplify,
			removeBackground: opts.RemoveBackground,
		},
		pollInterval: poll,
		httpClient:   httpClient,
		logger:       logger,
	}, nil
}

// Model returns the pipeline identifier, model@version when pinned.
func (c *Client) Model() string {
	if c.version == "" {
		return c.model
	}
	if c.model == "" {
		return c.version
	}
	return c.model + "@" + c.version
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// GenerateMesh submits the images and blocks until the prediction finishes or
// ctx ends. Callers bound the wait with ctx.
func (c *Client) GenerateMesh(ctx context.Context, req MeshRequest) (*MeshResult, error) {
	if !c.HasCredentials() {
		return nil, ErrMissingAPIKey
	}
	if len(req.Images) == 0 {
		return nil, errors.New("mesh: at least one image is required")
	}

	payload := predictionRequest{
		Version: c.version,
		Input: predictionInput{
			Images:           make([]string, 0, len(req.Images)),
			Seed:             c.params.seed,
			TextureSize:      c.params.textureSize,
			MeshSimplify:     c.params.meshSimplify,
			RemoveBackground: c.params.removeBackground,
			GenerateModel:    true,
		},
	}
	for _, img := range req.Images {
		payload.Input.Images = append(payload.Input.Images, dataURI(img))
	}

	endpoint := c.baseURL + "/predictions"
	if c.version == "" {
		endpoint = c.baseURL + "/models/" + c.model + "/predictions"
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("mesh: encode request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("mesh: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")
	if req.RequestID != "" {
		httpReq.Header.Set("X-Request-ID", req.RequestID)
	}

	pred, err := c.do(httpReq)
	if err != nil {
		return nil, err
	}
	c.logger.Debug().
		Str("model", c.Model()).
		Str("prediction_id", pred.ID).
		Str("status", pred.Status).
		Msg("mesh: prediction created")

	pred, err = c.await(ctx, pred)
	if err != nil {
		return nil, err
	}
	assetURL := extractAssetURL(pred.Output)
	if assetURL == "" {
		return nil, ErrMissingOutput
	}
	c.logger.Info().
		Str("model", c.Model()).
		Str("prediction_id", pred.ID).
		Str("url", assetURL).
		Msg("mesh: prediction succeeded")
	return &MeshResult{PredictionID: pred.ID, AssetURL: assetURL}, nil
}

// await polls until the prediction reaches a terminal status.
func (c *Client) await(ctx context.Context, pred *prediction) (*prediction, error) {
	for {
		switch pred.Status {
		case "succeeded":
			return pred, nil
		case "failed", "canceled":
			return nil, &PredictionError{ID: pred.ID, Status: pred.Status, Message: errorText(pred.Error)}
		}

		pollURL := pred.URLs.Get
		if pollURL == "" {
			if pred.ID == "" {
				return nil, errors.New("mesh: prediction has neither id nor poll url")
			}
			pollURL = c.baseURL + "/predictions/" + url.PathEscape(pred.ID)
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("mesh: waiting for prediction %s: %w", pred.ID, ctx.Err())
		case <-timer.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pollURL, nil)
		if err != nil {
			return nil, fmt.Errorf("mesh: build poll request: %w", err)
		}
		next, err := c.do(req)
		if err != nil {
			return nil, err
		}
		pred = next
	}
}

func (c *Client) do(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, fmt.Errorf("mesh: http request: %w", ctxErr)
		}
		return nil, fmt.Errorf("mesh: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("mesh: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && (detail.Detail != "" || detail.Title != "") {
			msg := detail.Detail
			if msg == "" {
				msg = detail.Title
			}
			return nil, &APIError{StatusCode: resp.StatusCode, Detail: msg}
		}
		return nil, &APIError{StatusCode: resp.StatusCode, Detail: strings.TrimSpace(string(raw))}
	}

	var pred prediction
	if err := json.Unmarshal(raw, &pred); err != nil {
		return nil, fmt.Errorf("mesh: decode response: %w", err)
	}
	return &pred, nil
}

func dataURI(img InputImage) string {
	mime := strings.TrimSpace(img.MIME)
	if mime == "" {
		mime = http.DetectContentType(img.Data)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
}

// extractAssetURL finds the mesh reference in the prediction output, which
// may be a bare URL, a list of URLs, or an object keyed by artifact kind.
func extractAssetURL(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return strings.TrimSpace(single)
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if strings.HasSuffix(strings.ToLower(pathOf(item)), ".glb") {
				return strings.TrimSpace(item)
			}
		}
		for _, item := range list {
			if item = strings.TrimSpace(item); item != "" {
				return item
			}
		}
		return ""
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"model_file", "glb", "mesh", "model"} {
			if s, ok := obj[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

func pathOf(raw string) string {
	if u, err := url.Parse(strings.TrimSpace(raw)); err == nil {
		return u.Path
	}
	return raw
}

func errorText(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		b, _ := json.Marshal(e)
		return string(b)
	}
}
