package lastfm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// apiError is the JSON error body returned by Last.fm.
type apiError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// call makes a single GET request to the Last.fm API and returns the
// raw JSON body.
//
// It handles:
// - Request construction with proper headers and format=json
// - Detection of Last.fm error bodies (which may arrive with any status)
// - Mapping of other non-200 statuses to *StatusError
// - Context cancellation
//
// call does not retry. Callers decide what is retry-worthy with
// IsTemporary.
func (c *Client) call(ctx context.Context, method string, params map[string]string) ([]byte, error) {
	query := url.Values{}
	for k, v := range params {
		query.Set(k, v)
	}
	query.Set("method", method)
	query.Set("api_key", c.apiKey)
	query.Set("format", "json")

	endpoint := c.baseURL + "?" + query.Encode()

	c.logDebugf("lastfm: calling %s (%s)", method, describeParams(params))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	// Last.fm reports API errors as a JSON body, sometimes with a 4xx
	// status, so look for one before judging the status code.
	if lastfmErr := parseAPIError(body); lastfmErr != nil {
		c.logDebugf("lastfm: %s failed: %v", method, lastfmErr)
		return nil, lastfmErr
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}

	c.logDebugf("lastfm: %s succeeded", method)
	return body, nil
}

// parseAPIError returns the Last.fm error carried by body, or nil.
func parseAPIError(body []byte) *Error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !bytes.Contains(trimmed, []byte(`"error"`)) {
		return nil
	}

	var apiErr apiError
	if err := json.Unmarshal(trimmed, &apiErr); err != nil || apiErr.Error == 0 {
		return nil
	}

	return &Error{Code: apiErr.Error, Message: apiErr.Message}
}

// describeParams renders params for debug logs.
func describeParams(params map[string]string) string {
	return fmt.Sprintf("user=%s page=%s", params["user"], params["page"])
}

// flexInt decodes Last.fm numbers, which arrive as JSON strings or numbers.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = 0
		return nil
	}

	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
	} else {
		s = string(data)
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", s, err)
	}
	*f = flexInt(n)
	return nil
}
