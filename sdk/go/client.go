package flatpacksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Flatpack HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Project represents the API project model.
type Project struct {
	ID            string  `json:"id"`
	CreatorID     string  `json:"creator_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	FurnitureType string  `json:"furniture_type"`
	Location      string  `json:"location,omitempty"`
	Budget        float64 `json:"budget"`
	Status        string  `json:"status"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

// Profile represents a user profile.
type Profile struct {
	ActorID       string  `json:"actor_id"`
	Bio           string  `json:"bio,omitempty"`
	Location      string  `json:"location,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	IsAssembler   bool    `json:"is_assembler"`
	AverageRating float64 `json:"average_rating"`
	JoinedAt      string  `json:"joined_at"`
}

// Message represents a direct message.
type Message struct {
	ID         int64  `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	IsRead     bool   `json:"is_read"`
	CreatedAt  string `json:"created_at"`
}

// Conversation pairs a counterpart with the latest message and unread count.
type Conversation struct {
	CounterpartID string  `json:"counterpart_id"`
	LatestMessage Message `json:"latest_message"`
	UnreadCount   int     `json:"unread_count"`
}

// Review represents a rating left on a completed project.
type Review struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	ReviewerID string `json:"reviewer_id"`
	RevieweeID string `json:"reviewee_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// PaginatedProjects wraps list responses with cursors.
type PaginatedProjects struct {
	Items      []Project `json:"items"`
	NextCursor string    `json:"next_cursor"`
}

// CreateProject posts a project.
func (c *Client) CreateProject(ctx context.Context, title, furnitureType string, budget float64) (Project, error) {
	body := map[string]any{
		"title":          title,
		"furniture_type": furnitureType,
		"budget":         budget,
	}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects", body, &resp)
	return resp, err
}

// GetProject fetches a project by id.
func (c *Client) GetProject(ctx context.Context, id string) (Project, error) {
	var resp Project
	err := c.do(ctx, http.MethodGet, "v0/projects/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// Projects returns a paginated project listing.
func (c *Client) Projects(ctx context.Context, status string, limit int, cursor string) (PaginatedProjects, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "v0/projects"
	if enc := q.Encode(); enc != "" {
		endpoint += "?" + enc
	}
	var resp PaginatedProjects
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// AssignProject assigns a project to an assembler.
func (c *Client) AssignProject(ctx context.Context, id, assigneeID string) (Project, error) {
	body := map[string]any{"assigned_to": assigneeID}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects/"+url.PathEscape(id)+"/assign", body, &resp)
	return resp, err
}

// SetProjectStatus transitions a project.
func (c *Client) SetProjectStatus(ctx context.Context, id, status string) (Project, error) {
	body := map[string]any{"status": status}
	var resp Project
	err := c.do(ctx, http.MethodPost, "v0/projects/"+url.PathEscape(id)+"/status", body, &resp)
	return resp, err
}

// Me returns the current actor's profile.
func (c *Client) Me(ctx context.Context) (Profile, error) {
	var resp Profile
	err := c.do(ctx, http.MethodGet, "v0/me", nil, &resp)
	return resp, err
}

// SendMessage sends a direct message.
func (c *Client) SendMessage(ctx context.Context, receiverID, content string) (Message, error) {
	body := map[string]any{
		"receiver_id": receiverID,
		"content":     content,
	}
	var resp Message
	err := c.do(ctx, http.MethodPost, "v0/messages", body, &resp)
	return resp, err
}

// Conversations lists the current actor's conversations.
func (c *Client) Conversations(ctx context.Context) ([]Conversation, error) {
	var resp []Conversation
	err := c.do(ctx, http.MethodGet, "v0/messages/conversations", nil, &resp)
	return resp, err
}

// History returns a conversation with another user and marks it read.
func (c *Client) History(ctx context.Context, actorID string) ([]Message, error) {
	var resp []Message
	err := c.do(ctx, http.MethodGet, "v0/messages/with/"+url.PathEscape(actorID), nil, &resp)
	return resp, err
}

// CreateReview reviews a participant of a completed project.
func (c *Client) CreateReview(ctx context.Context, projectID, revieweeID string, rating int, comment string) (Review, error) {
	body := map[string]any{
		"project_id":  projectID,
		"reviewee_id": revieweeID,
		"rating":      rating,
		"comment":     comment,
	}
	var resp Review
	err := c.do(ctx, http.MethodPost, "v0/reviews", body, &resp)
	return resp, err
}

// ReviewsFor lists reviews received by a user.
func (c *Client) ReviewsFor(ctx context.Context, actorID string) ([]Review, error) {
	var resp []Review
	err := c.do(ctx, http.MethodGet, "v0/users/"+url.PathEscape(actorID)+"/reviews", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
