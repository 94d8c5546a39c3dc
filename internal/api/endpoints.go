package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"

	"finboard/internal/core"
)

var (
	// ErrInvalidPassword is returned by Login when the backend rejects the password.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrPasswordRejected is returned by SetPassword when the backend refuses
	// the new password (already set or too short).
	ErrPasswordRejected = errors.New("password rejected")
)

type AuthStatus struct {
	PasswordSet bool `json:"password_set"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type passwordRequest struct {
	Password string `json:"password"`
}

// ImportResult is the backend's answer to a CSV upload.
type ImportResult struct {
	Imported int         `json:"imported"`
	Totals   core.Totals `json:"totals"`
}

func (c *Client) AuthStatus(ctx context.Context) (AuthStatus, error) {
	var st AuthStatus
	if err := c.JSON(ctx, http.MethodGet, "/api/auth/status", nil, &st); err != nil {
		return AuthStatus{}, fmt.Errorf("auth status: %w", err)
	}
	return st, nil
}

// Login exchanges the password for a token and stores it in the client.
func (c *Client) Login(ctx context.Context, password string) (string, error) {
	var out tokenResponse
	err := c.JSON(ctx, http.MethodPost, "/api/auth/login", passwordRequest{Password: password}, &out)
	if IsStatus(err, http.StatusUnauthorized) {
		return "", ErrInvalidPassword
	}
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// SetPassword creates the first password and stores the returned token.
func (c *Client) SetPassword(ctx context.Context, password string) (string, error) {
	var out tokenResponse
	err := c.JSON(ctx, http.MethodPost, "/api/auth/set", passwordRequest{Password: password}, &out)
	if IsStatus(err, http.StatusBadRequest) {
		return "", fmt.Errorf("%w: %v", ErrPasswordRejected, err)
	}
	if err != nil {
		return "", fmt.Errorf("set password: %w", err)
	}
	c.SetToken(out.Token)
	return out.Token, nil
}

// Analytics fetches a snapshot. Only non-empty period bounds are sent.
func (c *Client) Analytics(ctx context.Context, q core.AnalyticsQuery) (*core.Snapshot, error) {
	params := url.Values{}
	if q.Period.Start != "" {
		params.Set("start_date", q.Period.Start)
	}
	if q.Period.End != "" {
		params.Set("end_date", q.Period.End)
	}
	params.Set("exclude_transfers", strconv.FormatBool(q.ExcludeTransfers))

	var snap core.Snapshot
	if err := c.JSON(ctx, http.MethodGet, "/api/analytics?"+params.Encode(), nil, &snap); err != nil {
		return nil, fmt.Errorf("analytics: %w", err)
	}
	return &snap, nil
}

// MerchantBreakdown fetches merchant rows inside one aggregate bucket.
// An empty opType requests every operation type.
func (c *Client) MerchantBreakdown(ctx context.Context, baseID, opType string) ([]core.MerchantRow, error) {
	params := url.Values{}
	params.Set("base_id", baseID)
	if opType != "" {
		params.Set("op_type", opType)
	}

	var out struct {
		Items []core.MerchantRow `json:"items"`
	}
	if err := c.JSON(ctx, http.MethodGet, "/api/merchant-breakdown?"+params.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("merchant breakdown: %w", err)
	}
	if out.Items == nil {
		out.Items = []core.MerchantRow{}
	}
	return out.Items, nil
}

func (c *Client) Operations(ctx context.Context, q core.OperationsQuery) ([]core.Operation, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Period.Start != "" {
		params.Set("start_date", q.Period.Start)
	}
	if q.Period.End != "" {
		params.Set("end_date", q.Period.End)
	}
	if q.Type != "" && q.Type != "all" {
		params.Set("type", q.Type)
	}
	if q.ExcludeTransfers {
		params.Set("exclude_transfers", "true")
	}

	var out struct {
		Items []core.Operation `json:"items"`
	}
	if err := c.JSON(ctx, http.MethodGet, "/api/operations?"+params.Encode(), nil, &out); err != nil {
		return nil, fmt.Errorf("operations: %w", err)
	}
	return out.Items, nil
}

func (c *Client) Files(ctx context.Context) ([]core.File, error) {
	var out struct {
		Files []core.File `json:"files"`
	}
	if err := c.JSON(ctx, http.MethodGet, "/api/files", nil, &out); err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	return out.Files, nil
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	if err := c.Raw(ctx, http.MethodDelete, "/api/files/"+url.PathEscape(id), nil, ""); err != nil {
		return fmt.Errorf("delete file %s: %w", id, err)
	}
	return nil
}

// Import uploads one bank statement as multipart form data.
func (c *Client) Import(ctx context.Context, bank, filename string, r io.Reader) (ImportResult, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("bank", bank); err != nil {
		return ImportResult{}, fmt.Errorf("failed to write bank field: %w", err)
	}
	part, err := writer.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return ImportResult{}, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return ImportResult{}, fmt.Errorf("failed to copy file data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return ImportResult{}, fmt.Errorf("failed to close writer: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, "/api/import", &buf, writer.FormDataContentType())
	if err != nil {
		return ImportResult{}, fmt.Errorf("import: %w", err)
	}
	defer resp.Body.Close()

	var out ImportResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return ImportResult{}, fmt.Errorf("failed to decode import response: %w", err)
	}
	return out, nil
}

func (c *Client) ImportDemo(ctx context.Context) error {
	if err := c.Raw(ctx, http.MethodPost, "/api/import-demo", nil, ""); err != nil {
		return fmt.Errorf("import demo: %w", err)
	}
	return nil
}

// Reset deletes every imported operation and file on the backend.
func (c *Client) Reset(ctx context.Context) error {
	if err := c.Raw(ctx, http.MethodPost, "/api/reset", nil, ""); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func (c *Client) AgentAnswer(ctx context.Context, question string) (string, error) {
	var out struct {
		Answer string `json:"answer"`
	}
	in := struct {
		Question string `json:"question"`
	}{Question: question}
	if err := c.JSON(ctx, http.MethodPost, "/api/agent-answer", in, &out); err != nil {
		return "", fmt.Errorf("agent answer: %w", err)
	}
	return out.Answer, nil
}
