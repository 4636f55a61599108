package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

var (
	// timeout is the timeout for webhook request. Default to 10 seconds.
	timeout = 10 * time.Second
)

// TicketPayload is the body posted when a session is handed to a human.
type TicketPayload struct {
	TicketID   string `json:"ticketId"`
	SessionID  string `json:"sessionId"`
	CustomerID string `json:"customerId,omitempty"`
	Priority   string `json:"priority"`
	Category   string `json:"category"`
	Summary    string `json:"summary"`
	TurnSeq    int    `json:"turnSeq"`
	CreatedTs  int64  `json:"createdTs"`
}

// Response is the acknowledgement expected from the webhook server.
type Response struct {
	Message  string `json:"message"`
	TicketID string `json:"ticketId,omitempty"`
	Code     int    `json:"code"`
}

// Post posts payload to url and decodes the acknowledgement.
func Post(ctx context.Context, url string, payload *TicketPayload) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal webhook request to %s", url)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to construct webhook request to %s", url)
	}

	req.Header.Set("Content-Type", "application/json")
	client := &http.Client{
		Timeout: timeout,
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to post webhook to %s", url)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read webhook response from %s", url)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Errorf("failed to post webhook %s, status code: %d, response body: %s", url, resp.StatusCode, b)
	}

	response := &Response{}
	if len(bytes.TrimSpace(b)) == 0 {
		return response, nil
	}
	if err := json.Unmarshal(b, response); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal webhook response from %s", url)
	}

	if response.Code != 0 {
		return nil, errors.Errorf("receive error code sent by webhook server, code %d, msg: %s", response.Code, response.Message)
	}

	return response, nil
}

// PostAsync posts payload without waiting for the response.
func PostAsync(url string, payload *TicketPayload) {
	go func() {
		if _, err := Post(context.Background(), url, payload); err != nil {
			slog.Warn("Failed to dispatch webhook asynchronously",
				slog.String("url", url),
				slog.String("ticketId", payload.TicketID),
				slog.Any("err", err))
		}
	}()
}
