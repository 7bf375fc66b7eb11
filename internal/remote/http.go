package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"unicode/utf8"
)

// Doer is satisfied by *http.Client.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Request describes one JSON call to a collaborator.
type Request struct {
	Service string
	Op      string
	Method  string
	URL     string
	Header  http.Header
	Body    interface{} // marshalled as JSON when non-nil
	// OK lists accepted status codes; defaults to 200 and 201.
	OK []int
}

// Call executes req and decodes a successful JSON body into out (when out is non-nil).
// Non-accepted statuses become Remote failures whose Detail is extracted from the body.
func Call(ctx context.Context, client Doer, req Request, out interface{}) error {
	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return DataError(req.Service, req.Op, "encode request body", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return TransportError(req.Service, req.Op, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.Body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return TransportError(req.Service, req.Op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return TransportError(req.Service, req.Op, fmt.Errorf("read body: %w", err))
	}

	if !accepted(resp.StatusCode, req.OK) {
		return RemoteError(req.Service, req.Op, resp.StatusCode, ErrorDetail(raw))
	}
	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return TransportError(req.Service, req.Op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func accepted(status int, ok []int) bool {
	if len(ok) == 0 {
		ok = []int{http.StatusOK, http.StatusCreated}
	}
	for _, s := range ok {
		if s == status {
			return true
		}
	}
	return false
}

// errorBody covers the error envelopes of the services we talk to:
// Directus {"errors":[{"message":..}]}, JSON:API {"errors":[{"status":..,"detail":..}]},
// Listmonk {"message":..}.
type errorBody struct {
	Message string `json:"message"`
	Errors  []struct {
		Status  interface{} `json:"status"`
		Message string      `json:"message"`
		Detail  string      `json:"detail"`
	} `json:"errors"`
}

const maxDetail = 200

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// ErrorDetail extracts a human-readable message from a collaborator error body.
func ErrorDetail(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return truncate(strings.TrimSpace(string(raw)), maxDetail)
	}
	parts := make([]string, 0, len(eb.Errors)+1)
	if eb.Message != "" {
		parts = append(parts, eb.Message)
	}
	for _, e := range eb.Errors {
		switch {
		case e.Message != "":
			parts = append(parts, e.Message)
		case e.Detail != "":
			parts = append(parts, e.Detail)
		}
	}
	return strings.Join(parts, "; ")
}
