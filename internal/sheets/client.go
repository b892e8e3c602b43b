// Package sheets keeps the per-client and per-prospect outreach
// spreadsheets in sync: it reads the identifier column, filters out podcasts
// already listed and appends the rest.
package sheets

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/oauth2/google"

	"github.com/ignite/podmatch/internal/config"
	"github.com/ignite/podmatch/internal/pkg/httpretry"
)

const scopeSpreadsheets = "https://www.googleapis.com/auth/spreadsheets"

// APIError is a non-2xx response from the Sheets API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("sheets api: status %d: %s", e.Status, e.Message)
}

// Client is a minimal Google Sheets v4 values client.
type Client struct {
	baseURL    string
	httpClient httpretry.HTTPDoer
}

// NewClient authenticates with the service-account key from cfg. When
// cfg.ImpersonateSubject is set the token is issued for that user through
// domain-wide delegation.
func NewClient(ctx context.Context, cfg config.SheetsConfig) (*Client, error) {
	key, err := cfg.Credentials()
	if err != nil {
		return nil, err
	}
	jwtCfg, err := google.JWTConfigFromJSON(key, scopeSpreadsheets)
	if err != nil {
		return nil, fmt.Errorf("parse service account key: %w", err)
	}
	if cfg.ImpersonateSubject != "" {
		jwtCfg.Subject = cfg.ImpersonateSubject
	}
	return NewClientWithHTTP(cfg.BaseURL, jwtCfg.Client(ctx)), nil
}

// NewClientWithHTTP uses an already-authenticated HTTP client.
func NewClientWithHTTP(baseURL string, httpClient httpretry.HTTPDoer) *Client {
	if baseURL == "" {
		baseURL = "https://sheets.googleapis.com"
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), httpClient: httpClient}
}

type valueRange struct {
	Range          string  `json:"range,omitempty"`
	MajorDimension string  `json:"majorDimension,omitempty"`
	Values         [][]any `json:"values"`
}

type appendResponse struct {
	Updates struct {
		UpdatedRange string `json:"updatedRange"`
		UpdatedRows  int    `json:"updatedRows"`
	} `json:"updates"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

// ReadColumn returns the non-empty cell values of a single-column range
// such as "Podcasts!A2:A", as strings.
func (c *Client) ReadColumn(ctx context.Context, spreadsheetID, a1Range string) ([]string, error) {
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s?majorDimension=COLUMNS",
		c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(a1Range))

	var vr valueRange
	if err := c.do(ctx, http.MethodGet, u, nil, &vr); err != nil {
		return nil, err
	}
	if len(vr.Values) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(vr.Values[0]))
	for _, v := range vr.Values[0] {
		s := strings.TrimSpace(fmt.Sprint(v))
		if s != "" {
			out = append(out, s)
		}
	}
	return out, nil
}

// AppendRows appends rows after the last row of a1Range and returns the
// number of rows the API reports as written.
func (c *Client) AppendRows(ctx context.Context, spreadsheetID, a1Range string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	q := url.Values{}
	// RAW keeps ids like "00123" and names like "=Mind" as typed text.
	q.Set("valueInputOption", "RAW")
	q.Set("insertDataOption", "INSERT_ROWS")
	u := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s:append?%s",
		c.baseURL, url.PathEscape(spreadsheetID), url.PathEscape(a1Range), q.Encode())

	body, err := json.Marshal(valueRange{MajorDimension: "ROWS", Values: rows})
	if err != nil {
		return 0, fmt.Errorf("marshal rows: %w", err)
	}
	var resp appendResponse
	if err := c.do(ctx, http.MethodPost, u, body, &resp); err != nil {
		return 0, err
	}
	return resp.Updates.UpdatedRows, nil
}

func (c *Client) do(ctx context.Context, method, u string, body []byte, dst any) error {
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sheets api: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return fmt.Errorf("sheets api: read body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		msg := strings.TrimSpace(string(respBody))
		if json.Unmarshal(respBody, &er) == nil && er.Error.Message != "" {
			msg = er.Error.Message
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if dst == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, dst); err != nil {
		return fmt.Errorf("sheets api: decode: %w", err)
	}
	return nil
}
