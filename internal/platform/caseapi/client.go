// Package caseapi is the HTTP client for the theatre-case backend. It
// implements the case, reference and legacy-route ports of the theatre
// workflow.
package caseapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/theatre/internal/domain/theatre"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the backend API (e.g. "https://ehr.example/api/v1").
	BaseURL string

	// Token is sent as a bearer token when set.
	Token string

	// HTTPClient is optional. If nil, a client with Timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual requests. Defaults to 15 seconds.
	Timeout time.Duration

	Logger zerolog.Logger
}

// Client talks to the theatre-case backend. All methods are safe for
// concurrent use.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	logger  zerolog.Logger
}

var (
	_ theatre.CaseAPI             = (*Client)(nil)
	_ theatre.ReferenceAPI        = (*Client)(nil)
	_ theatre.LegacyRouteResolver = (*Client)(nil)
)

// NewClient creates a Client. Returns an error if BaseURL is empty or not
// an absolute URL.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("caseapi: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("caseapi: invalid BaseURL %q", cfg.BaseURL)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  httpClient,
		logger:  cfg.Logger.With().Str("component", "caseapi").Logger(),
	}, nil
}

const flowsPath = "/theatre-flows"

func casePath(id string, parts ...string) string {
	p := flowsPath + "/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// ---------------------------------------------------------------------------
// Cases
// ---------------------------------------------------------------------------

func (c *Client) List(ctx context.Context, params theatre.Params) (*theatre.CaseList, error) {
	var resp theatre.CaseList
	if err := c.get(ctx, flowsPath, params, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Get(ctx context.Context, id string, opts theatre.GetOptions) (*theatre.TheatreCase, error) {
	var q theatre.Params
	if opts.IncludeTimeline {
		q = theatre.Params{"include_timeline": "true"}
	}
	return c.getCase(ctx, casePath(id), q)
}

func (c *Client) Start(ctx context.Context, in theatre.StartInput) (*theatre.TheatreCase, error) {
	return c.sendCase(ctx, http.MethodPost, flowsPath, in)
}

func (c *Client) UpdateStage(ctx context.Context, id string, in theatre.StageInput) (*theatre.TheatreCase, error) {
	return c.sendCase(ctx, http.MethodPatch, casePath(id, "stage"), in)
}

func (c *Client) ToggleChecklistItem(ctx context.Context, id string, in theatre.ChecklistToggleInput) (*theatre.TheatreCase, error) {
	return c.sendCase(ctx, http.MethodPut, casePath(id, "checklist-items"), in)
}

// UpsertAnesthesiaRecord updates the record named by in.ID, or creates one.
func (c *Client) UpsertAnesthesiaRecord(ctx context.Context, id string, in theatre.AnesthesiaRecordInput) (*theatre.TheatreCase, error) {
	if in.ID != "" {
		return c.sendCase(ctx, http.MethodPut, casePath(id, "anesthesia-records", url.PathEscape(in.ID)), in)
	}
	return c.sendCase(ctx, http.MethodPost, casePath(id, "anesthesia-records"), in)
}

func (c *Client) AddAnesthesiaObservation(ctx context.Context, id string, in theatre.ObservationInput) (*theatre.TheatreCase, error) {
	return c.sendCase(ctx, http.MethodPost, casePath(id, "anesthesia-observations"), in)
}

// UpsertPostOpNote updates the note named by in.ID, or creates one.
func (c *Client) UpsertPostOpNote(ctx context.Context, id string, in theatre.PostOpNoteInput) (*theatre.TheatreCase, error) {
	if in.ID != "" {
		return c.sendCase(ctx, http.MethodPut, casePath(id, "post-op-notes", url.PathEscape(in.ID)), in)
	}
	return c.sendCase(ctx, http.MethodPost, casePath(id, "post-op-notes"), in)
}

func (c *Client) AssignResource(ctx context.Context, id string, in theatre.AssignResourceInput) (*theatre.TheatreCase, error) {
	return c.sendCase(ctx, http.MethodPost, casePath(id, "resource-allocations"), in)
}

func (c *Client) ReleaseResource(ctx context.Context, id string, in theatre.ReleaseResourceInput) (*theatre.TheatreCase, error) {
	return c.sendCase(ctx, http.MethodPost, casePath(id, "resource-allocations", "release"), in)
}

func (c *Client) FinalizeRecord(ctx context.Context, id string, in theatre.FinalizeInput) (*theatre.TheatreCase, error) {
	return c.sendCase(ctx, http.MethodPost, casePath(id, "finalize"), in)
}

func (c *Client) ReopenRecord(ctx context.Context, id string, in theatre.ReopenInput) (*theatre.TheatreCase, error) {
	return c.sendCase(ctx, http.MethodPost, casePath(id, "reopen"), in)
}

// ResolveLegacyRoute asks the backend which case a legacy record id belongs to.
func (c *Client) ResolveLegacyRoute(ctx context.Context, kind, legacyID string) (*theatre.LegacyRoute, error) {
	q := theatre.Params{"resource": kind, "legacy_id": legacyID}
	var resp theatre.LegacyRoute
	if err := c.get(ctx, flowsPath+"/resolve-legacy-route", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Reference data
// ---------------------------------------------------------------------------

func (c *Client) ListRooms(ctx context.Context, params theatre.Params) ([]theatre.Room, error) {
	var rows []theatre.Room
	if err := c.getList(ctx, "/rooms", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListStaff(ctx context.Context, params theatre.Params) ([]theatre.StaffProfile, error) {
	var rows []theatre.StaffProfile
	if err := c.getList(ctx, "/staff-profiles", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListEquipment(ctx context.Context, params theatre.Params) ([]theatre.Equipment, error) {
	var rows []theatre.Equipment
	if err := c.getList(ctx, "/equipment-registries", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *Client) ListEncounters(ctx context.Context, params theatre.Params) ([]theatre.Encounter, error) {
	var rows []theatre.Encounter
	if err := c.getList(ctx, "/encounters", params, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// listPage accepts both a bare array and an {items: [...]} page.
type listPage struct {
	Items json.RawMessage `json:"items"`
}

func (c *Client) getList(ctx context.Context, path string, params theatre.Params, dest any) error {
	var raw json.RawMessage
	if err := c.get(ctx, path, params, &raw); err != nil {
		return err
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] == '{' {
		var page listPage
		if err := json.Unmarshal(trimmed, &page); err != nil {
			return fmt.Errorf("caseapi: decode %s page: %w", path, err)
		}
		if len(page.Items) == 0 {
			return nil
		}
		trimmed = page.Items
	}
	if err := json.Unmarshal(trimmed, dest); err != nil {
		return fmt.Errorf("caseapi: decode %s: %w", path, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// HTTP transport
// ---------------------------------------------------------------------------

// apiEnvelope is the backend's standard response wrapper.
type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

// apiErrorEnvelope is the backend's standard error response wrapper.
type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Message string `json:"message"`
}

func (c *Client) getCase(ctx context.Context, path string, params theatre.Params) (*theatre.TheatreCase, error) {
	var snap *theatre.TheatreCase
	if err := c.get(ctx, path, params, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

// sendCase writes a body and decodes the returned snapshot. A response
// without a snapshot yields (nil, nil); the workflow treats that as not
// applied.
func (c *Client) sendCase(ctx context.Context, method, path string, body any) (*theatre.TheatreCase, error) {
	var snap *theatre.TheatreCase
	if err := c.send(ctx, method, path, body, &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (c *Client) get(ctx context.Context, path string, params theatre.Params, dest any) error {
	full := c.baseURL + path
	if len(params) > 0 {
		q := url.Values{}
		for k, v := range params {
			q.Set(k, v)
		}
		full += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
	if err != nil {
		return fmt.Errorf("caseapi: create request: %w", err)
	}
	return c.doRequest(req, dest)
}

func (c *Client) send(ctx context.Context, method, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("caseapi: marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("caseapi: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("caseapi: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	c.logger.Debug().
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("case backend request")

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("caseapi: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	if resp.StatusCode == http.StatusNoContent || dest == nil || len(bytes.TrimSpace(bodyBytes)) == 0 {
		return nil
	}

	if trimmed := bytes.TrimSpace(bodyBytes); trimmed[0] != '{' {
		return json.Unmarshal(trimmed, dest)
	}

	// Unwrap the { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("caseapi: decode response envelope: %w", err)
	}
	if envelope.Data == nil {
		return json.Unmarshal(bodyBytes, dest)
	}
	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	switch err := json.Unmarshal(body, &envelope); {
	case err == nil && envelope.Error.Message != "":
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	case err == nil && envelope.Message != "":
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = envelope.Message
	default:
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}
	return apiErr
}
