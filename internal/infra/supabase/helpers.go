package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

// ============================================================
// HTTP helpers for POST, PATCH, DELETE
// ============================================================

// doPost inserts one row. With returnRows the inserted representation is
// returned, otherwise the body is empty.
func (c *Client) doPost(ctx context.Context, table string, data map[string]any, bearer string, returnRows bool) ([]byte, error) {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.restURL(table), bytes.NewReader(jsonBody))
	if err != nil {
		return nil, err
	}

	c.setHeaders(req, bearer)
	if returnRows {
		req.Header.Set("Prefer", "return=representation")
	} else {
		req.Header.Set("Prefer", "return=minimal")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: POST request failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("supabase: POST non-2xx",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, &apiError{Method: http.MethodPost, Path: table, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: POST OK", zap.String("table", table), zap.Int("status", resp.StatusCode))
	return body, nil
}

func (c *Client) doPatch(ctx context.Context, table string, filter url.Values, data map[string]any, bearer string) error {
	jsonBody, err := json.Marshal(data)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.restURL(table+"?"+filter.Encode()), bytes.NewReader(jsonBody))
	if err != nil {
		return err
	}

	c.setHeaders(req, bearer)
	req.Header.Set("Prefer", "return=minimal")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: PATCH request failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readBody(resp)
		c.logger.Warn("supabase: PATCH non-2xx",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return &apiError{Method: http.MethodPatch, Path: table, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: PATCH OK", zap.String("table", table))
	return nil
}

func (c *Client) doDelete(ctx context.Context, table string, filter url.Values, bearer string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.restURL(table+"?"+filter.Encode()), nil)
	if err != nil {
		return err
	}

	c.setHeaders(req, bearer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("supabase: DELETE request failed",
			zap.String("table", table),
			zap.Error(err),
		)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := readBody(resp)
		c.logger.Warn("supabase: DELETE non-2xx",
			zap.String("table", table),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return &apiError{Method: http.MethodDelete, Path: table, Status: resp.StatusCode, Body: string(body)}
	}

	c.logger.Debug("supabase: DELETE OK", zap.String("table", table))
	return nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// eq builds a PostgREST equality filter value.
func eq(v string) string {
	return "eq." + v
}
