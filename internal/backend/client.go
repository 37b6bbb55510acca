package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cleared-dev/picker/internal/buildinfo"
	"github.com/cleared-dev/picker/internal/model"
)

// DefaultBaseURL is the statement backend the web client talks to.
const DefaultBaseURL = "https://axim-backend.onrender.com/api"

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// maxErrorBody bounds how much of a failed response is kept for the error message.
const maxErrorBody = 512

// TransportError reports a failed backend call.
type TransportError struct {
	Op         string // "upload", "manual", "submit"
	StatusCode int    // 0 when no response was received
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: backend returned %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Client talks to the statement backend over HTTP. It implements the
// upload, manual-entry and submission services the session depends on.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a Client for baseURL. A zero timeout leaves requests
// bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Upload posts a statement file as multipart field "file" and returns the
// transactions the backend extracted, in statement order.
func (c *Client) Upload(ctx context.Context, name string, data []byte) ([]model.Transaction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, &TransportError{Op: "upload", Err: fmt.Errorf("building form: %w", err)}
	}
	if _, err := part.Write(data); err != nil {
		return nil, &TransportError{Op: "upload", Err: fmt.Errorf("building form: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return nil, &TransportError{Op: "upload", Err: fmt.Errorf("building form: %w", err)}
	}

	var resp uploadResponse
	if err := c.do(ctx, "upload", "/upload", mw.FormDataContentType(), &body, &resp); err != nil {
		return nil, err
	}

	txns := make([]model.Transaction, len(resp.Transactions))
	for i, w := range resp.Transactions {
		txns[i] = fromWire(w)
	}
	return txns, nil
}

// Persist records one manually entered transaction with the backend.
func (c *Client) Persist(ctx context.Context, t model.Transaction) error {
	payload, err := json.Marshal(toWire(t))
	if err != nil {
		return &TransportError{Op: "manual", Err: fmt.Errorf("encoding transaction: %w", err)}
	}
	return c.do(ctx, "manual", "/manual", "application/json", bytes.NewReader(payload), nil)
}

// Submit sends the selected transactions, in order.
func (c *Client) Submit(ctx context.Context, txns []model.Transaction) error {
	req := submitRequest{FinalSelected: make([]wireTransaction, len(txns))}
	for i, t := range txns {
		req.FinalSelected[i] = toWire(t)
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return &TransportError{Op: "submit", Err: fmt.Errorf("encoding selection: %w", err)}
	}
	return c.do(ctx, "submit", "/submit", "application/json", bytes.NewReader(payload), nil)
}

// do POSTs body to path and decodes a JSON response into out when out is non-nil.
func (c *Client) do(ctx context.Context, op, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("building request: %w", err)}
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", buildinfo.UserAgent())
	req.Header.Set(RequestIDHeader, uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := strings.TrimSpace(string(msg))
		if text == "" {
			text = http.StatusText(resp.StatusCode)
		}
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(text)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
