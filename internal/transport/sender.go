package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sender delivers outbound side effects (delivery receipts, group info
// requests) to the message service over HTTP.
type Sender struct {
	client  *http.Client
	baseURL string
}

// NewSender creates a Sender for the given service base URL.
func NewSender(baseURL string) *Sender {
	return &Sender{
		client:  &http.Client{Timeout: 30 * time.Second},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type deliveryReceiptRequest struct {
	Recipient string `json:"recipient"`
	Timestamp int64  `json:"timestamp"`
}

type groupInfoRequest struct {
	Recipient string `json:"recipient"`
	GroupID   []byte `json:"groupId"`
}

// SendDeliveryReceipt acknowledges receipt of the message sent at
// timestamp to the given recipient.
func (s *Sender) SendDeliveryReceipt(ctx context.Context, recipient string, timestamp int64) error {
	return s.post(ctx, "/v1/receipts/delivery", deliveryReceiptRequest{Recipient: recipient, Timestamp: timestamp})
}

// RequestGroupInfo asks the given recipient for the metadata of an
// unknown group.
func (s *Sender) RequestGroupInfo(ctx context.Context, recipient string, groupID []byte) error {
	return s.post(ctx, "/v1/groups/info-request", groupInfoRequest{Recipient: recipient, GroupID: groupID})
}

func (s *Sender) post(ctx context.Context, path string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return &NetworkError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Code: resp.StatusCode}
	}

	return nil
}
