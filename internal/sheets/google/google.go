package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	ports "finboard/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client exports tables to one spreadsheet. Every table goes to its own
// sheet named "<prefix> <table>", created on first write.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	prefix        string
}

// Ensure interface conformance
var (
	_ ports.TableWriter = (*Client)(nil)
	_ ports.TableReader = (*Client)(nil)
)

// New creates a Sheets client authenticated with the service account
// credentials in credentialsFile.
func New(ctx context.Context, spreadsheetID, prefix, credentialsFile string) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx, credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return NewWithService(svc, spreadsheetID, prefix), nil
}

// NewWithService wraps an existing Sheets service.
func NewWithService(svc *gsheet.Service, spreadsheetID, prefix string) *Client {
	return &Client{svc: svc, spreadsheetID: spreadsheetID, prefix: strings.TrimSpace(prefix)}
}

// newSheetsService initializes a Sheets Service from a service account file.
func newSheetsService(ctx context.Context, credentialsFile string) (*gsheet.Service, error) {
	credentialsFile = strings.TrimSpace(credentialsFile)
	if credentialsFile == "" {
		credentialsFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if credentialsFile == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_CREDENTIALS_FILE or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	slog.InfoContext(ctx, "Creating Google Sheets service",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// newHTTPClientWithPooling creates an HTTP client with connection pooling
// and keep-alive for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          20,
		MaxIdleConnsPerHost:   5,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

func (c *Client) sheetName(table string) string {
	if c.prefix == "" {
		return table
	}
	return c.prefix + " " + table
}

// WriteTable clears the target sheet and writes the header and rows from A1.
func (c *Client) WriteTable(ctx context.Context, t ports.Table) (string, error) {
	if err := t.Validate(); err != nil {
		return "", fmt.Errorf("validation failed: %w", err)
	}
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	name := c.sheetName(t.Sheet)
	if err := c.ensureSheet(ctx, name); err != nil {
		return "", err
	}

	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, quote(name), &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to clear sheet %s: %w", name, err)
	}

	grid := t.Values()
	values := make([][]any, len(grid))
	for i, row := range grid {
		values[i] = make([]any, len(row))
		for j, cell := range row {
			values[i][j] = cell
		}
	}
	rng := fmt.Sprintf("%s!A1", quote(name))
	resp, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("failed to update sheet %s: %w", name, err)
	}

	slog.InfoContext(ctx, "Table exported to Google Sheets",
		"sheet", name,
		"rows", len(t.Rows),
		"range", resp.UpdatedRange)
	return resp.UpdatedRange, nil
}

func (c *Client) ReadTable(ctx context.Context, sheet string) ([][]string, error) {
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}
	name := c.sheetName(sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, quote(name)).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	out := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		out[i] = toStrings(row)
	}
	return out, nil
}

// ensureSheet adds the sheet when the spreadsheet does not have it yet.
func (c *Client) ensureSheet(ctx context.Context, name string) error {
	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}
	for _, s := range ss.Sheets {
		if s.Properties != nil && s.Properties.Title == name {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: name}},
	}}}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", name, err)
	}
	slog.InfoContext(ctx, "Sheet created", "sheet", name)
	return nil
}

// quote wraps a sheet name for A1 notation.
func quote(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func toStrings(in []interface{}) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = strings.TrimSpace(fmt.Sprint(v))
	}
	return out
}
