package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client provides typed access to the availability poll API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option customises client instantiation.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		if h != nil {
			c.httpClient = h
		}
	}
}

// New constructs a Client pointing at the provided API base URL.
func New(base string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimSpace(base)
	if trimmed == "" {
		trimmed = "http://localhost:4000"
	}
	if !strings.HasPrefix(trimmed, "http://") && !strings.HasPrefix(trimmed, "https://") {
		trimmed = "http://" + trimmed
	}
	if _, err := url.Parse(trimmed); err != nil {
		return nil, fmt.Errorf("invalid api base url: %w", err)
	}
	cli := &Client{
		baseURL:    strings.TrimRight(trimmed, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(cli)
	}
	return cli, nil
}

// APIError represents an error response from the API.
type APIError struct {
	Status  int
	Message string
}

func (e APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api request failed with status %d", e.Status)
	}
	return fmt.Sprintf("api request failed (%d): %s", e.Status, e.Message)
}

// IsNotFound reports whether err is an API 404.
func IsNotFound(err error) bool {
	var apiErr APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body any, v any) error {
	if c == nil {
		return fmt.Errorf("client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	endpoint := c.baseURL + path
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg := extractError(resp.Body)
		return APIError{Status: resp.StatusCode, Message: msg}
	}

	if v == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func extractError(body io.Reader) string {
	if body == nil {
		return ""
	}
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(body)
	if err != nil || len(data) == 0 {
		return ""
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return strings.TrimSpace(string(data))
	}
	return strings.TrimSpace(payload.Error)
}

// Poll mirrors the API poll payload. Dates use the YYYY-MM-DD layout.
type Poll struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	StartDate *string   `json:"start_date"`
	EndDate   *string   `json:"end_date"`
	CreatedAt time.Time `json:"created_at"`
}

// PollDetail is a poll with its participants and common slots.
type PollDetail struct {
	Poll
	Participants []Participant `json:"participants"`
	CommonSlots  []CommonSlot  `json:"common_slots"`
}

// Participant is a member of a poll.
type Participant struct {
	ID        string    `json:"id"`
	PollID    string    `json:"poll_id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	Slots     []Slot    `json:"slots,omitempty"`
}

// Slot is a participant's availability range; End is exclusive.
type Slot struct {
	ID            string    `json:"id"`
	ParticipantID string    `json:"participant_id"`
	Start         time.Time `json:"start"`
	End           time.Time `json:"end"`
	CreatedAt     time.Time `json:"created_at"`
}

// CommonSlot is a window shared by at least two participants.
type CommonSlot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
	Count int       `json:"count"`
	Names []string  `json:"names"`
}

// CreatePollInput captures poll creation attributes.
type CreatePollInput struct {
	Name      string `json:"name"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// UpdatePollInput lists the attributes to change.
type UpdatePollInput struct {
	Name      *string `json:"name,omitempty"`
	StartDate *string `json:"start_date,omitempty"`
	EndDate   *string `json:"end_date,omitempty"`
}

// CreatePoll creates a poll.
func (c *Client) CreatePoll(ctx context.Context, input CreatePollInput) (Poll, error) {
	var poll Poll
	if err := c.do(ctx, http.MethodPost, "/polls", input, &poll); err != nil {
		return Poll{}, err
	}
	return poll, nil
}

// ListPolls returns every poll, newest first.
func (c *Client) ListPolls(ctx context.Context) ([]Poll, error) {
	var polls []Poll
	if err := c.do(ctx, http.MethodGet, "/polls", nil, &polls); err != nil {
		return nil, err
	}
	return polls, nil
}

// GetPoll fetches a poll with its participants and common slots.
func (c *Client) GetPoll(ctx context.Context, pollID string) (PollDetail, error) {
	var detail PollDetail
	if err := c.do(ctx, http.MethodGet, "/polls/"+url.PathEscape(pollID), nil, &detail); err != nil {
		return PollDetail{}, err
	}
	return detail, nil
}

// UpdatePoll changes the supplied poll attributes.
func (c *Client) UpdatePoll(ctx context.Context, pollID string, input UpdatePollInput) (Poll, error) {
	var poll Poll
	if err := c.do(ctx, http.MethodPatch, "/polls/"+url.PathEscape(pollID), input, &poll); err != nil {
		return Poll{}, err
	}
	return poll, nil
}

// DeletePoll removes a poll with its participants and slots.
func (c *Client) DeletePoll(ctx context.Context, pollID string) error {
	return c.do(ctx, http.MethodDelete, "/polls/"+url.PathEscape(pollID), nil, nil)
}

// CommonSlots returns the poll's common slots. order is "start" (default)
// or "participants".
func (c *Client) CommonSlots(ctx context.Context, pollID, order string) ([]CommonSlot, error) {
	path := fmt.Sprintf("/polls/%s/common-slots", url.PathEscape(pollID))
	if order = strings.TrimSpace(order); order != "" {
		path += "?order=" + url.QueryEscape(order)
	}
	var slots []CommonSlot
	if err := c.do(ctx, http.MethodGet, path, nil, &slots); err != nil {
		return nil, err
	}
	return slots, nil
}

// ListParticipants returns the participants of a poll.
func (c *Client) ListParticipants(ctx context.Context, pollID string) ([]Participant, error) {
	var participants []Participant
	path := fmt.Sprintf("/polls/%s/participants", url.PathEscape(pollID))
	if err := c.do(ctx, http.MethodGet, path, nil, &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

// AddParticipant joins a named participant to a poll.
func (c *Client) AddParticipant(ctx context.Context, pollID, name string) (Participant, error) {
	body := map[string]string{"poll_id": pollID, "name": name}
	var participant Participant
	if err := c.do(ctx, http.MethodPost, "/participants", body, &participant); err != nil {
		return Participant{}, err
	}
	return participant, nil
}

// GetParticipant fetches a participant with their slots.
func (c *Client) GetParticipant(ctx context.Context, participantID string) (Participant, error) {
	var participant Participant
	if err := c.do(ctx, http.MethodGet, "/participants/"+url.PathEscape(participantID), nil, &participant); err != nil {
		return Participant{}, err
	}
	return participant, nil
}

// RenameParticipant changes a participant's name.
func (c *Client) RenameParticipant(ctx context.Context, participantID, name string) (Participant, error) {
	var participant Participant
	body := map[string]string{"name": name}
	if err := c.do(ctx, http.MethodPatch, "/participants/"+url.PathEscape(participantID), body, &participant); err != nil {
		return Participant{}, err
	}
	return participant, nil
}

// DeleteParticipant removes a participant and their slots.
func (c *Client) DeleteParticipant(ctx context.Context, participantID string) error {
	return c.do(ctx, http.MethodDelete, "/participants/"+url.PathEscape(participantID), nil, nil)
}

// AddSlot declares availability for a participant over [start, end).
func (c *Client) AddSlot(ctx context.Context, participantID string, start, end time.Time) (Slot, error) {
	body := map[string]string{
		"participant_id": participantID,
		"start":          start.UTC().Format(time.RFC3339),
		"end":            end.UTC().Format(time.RFC3339),
	}
	var slot Slot
	if err := c.do(ctx, http.MethodPost, "/slots", body, &slot); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// GetSlot fetches a slot.
func (c *Client) GetSlot(ctx context.Context, slotID string) (Slot, error) {
	var slot Slot
	if err := c.do(ctx, http.MethodGet, "/slots/"+url.PathEscape(slotID), nil, &slot); err != nil {
		return Slot{}, err
	}
	return slot, nil
}

// DeleteSlot removes a slot.
func (c *Client) DeleteSlot(ctx context.Context, slotID string) error {
	return c.do(ctx, http.MethodDelete, "/slots/"+url.PathEscape(slotID), nil, nil)
}
