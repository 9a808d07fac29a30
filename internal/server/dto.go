package server

import (
	"encoding/json"

	"flatpack/internal/domain"
)

// Request payloads

type CreateProjectRequest struct {
	Title         string  `json:"title"`
	Description   *string `json:"description,omitempty"`
	FurnitureType string  `json:"furniture_type"`
	Location      *string `json:"location,omitempty"`
	Budget        float64 `json:"budget" minimum:"0"`
}

type AssignProjectRequest struct {
	AssignedTo string `json:"assigned_to"`
}

type UpdateProjectStatusRequest struct {
	Status string `json:"status"`
}

type CreateServiceRequest struct {
	Title           string  `json:"title"`
	Description     *string `json:"description,omitempty"`
	HourlyRate      float64 `json:"hourly_rate" exclusiveMinimum:"0"`
	ExperienceYears *int    `json:"experience_years,omitempty" minimum:"0"`
	IsAvailable     *bool   `json:"is_available,omitempty"`
}

type UpdateServiceRequest struct {
	Title           *string  `json:"title,omitempty"`
	Description     *string  `json:"description,omitempty"`
	HourlyRate      *float64 `json:"hourly_rate,omitempty" exclusiveMinimum:"0"`
	ExperienceYears *int     `json:"experience_years,omitempty" minimum:"0"`
	IsAvailable     *bool    `json:"is_available,omitempty"`
}

type UpdateProfileRequest struct {
	Bio         *string `json:"bio,omitempty"`
	Location    *string `json:"location,omitempty"`
	Phone       *string `json:"phone,omitempty"`
	IsAssembler *bool   `json:"is_assembler,omitempty"`
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

type CreateReviewRequest struct {
	ProjectID  string  `json:"project_id"`
	RevieweeID string  `json:"reviewee_id"`
	Rating     int     `json:"rating" minimum:"1" maximum:"5"`
	Comment    *string `json:"comment,omitempty"`
}

type DevLoginRequest struct {
	ActorID string `json:"actor_id"`
}

// Response payloads

type ProjectResponse struct {
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

type ProjectListResponse struct {
	Items      []ProjectResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type ServiceResponse struct {
	ID              string  `json:"id"`
	ProviderID      string  `json:"provider_id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	HourlyRate      float64 `json:"hourly_rate"`
	ExperienceYears int     `json:"experience_years"`
	IsAvailable     bool    `json:"is_available"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
}

type ServiceListResponse struct {
	Items      []ServiceResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

type ProfileResponse struct {
	ActorID       string  `json:"actor_id"`
	Bio           string  `json:"bio,omitempty"`
	Location      string  `json:"location,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	IsAssembler   bool    `json:"is_assembler"`
	AverageRating float64 `json:"average_rating"`
	JoinedAt      string  `json:"joined_at"`
}

type MessageResponse struct {
	ID         int64  `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	IsRead     bool   `json:"is_read"`
	CreatedAt  string `json:"created_at"`
}

type ConversationResponse struct {
	CounterpartID string          `json:"counterpart_id"`
	LatestMessage MessageResponse `json:"latest_message"`
	UnreadCount   int             `json:"unread_count"`
}

type ReviewResponse struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	ReviewerID string `json:"reviewer_id"`
	RevieweeID string `json:"reviewee_id"`
	Rating     int    `json:"rating"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  string `json:"created_at"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type EventListResponse struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type APIKeyResponse struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	CreatedAt string `json:"created_at"`
}

type CreatedAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// Mappers

func projectResponse(p domain.Project) ProjectResponse {
	return ProjectResponse{
		ID:            p.ID,
		CreatorID:     p.CreatorID,
		Title:         p.Title,
		Description:   p.Description,
		FurnitureType: p.FurnitureType,
		Location:      p.Location,
		Budget:        p.Budget,
		Status:        p.Status,
		AssignedTo:    p.AssignedTo,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func mapProjects(items []domain.Project) []ProjectResponse {
	res := make([]ProjectResponse, 0, len(items))
	for _, p := range items {
		res = append(res, projectResponse(p))
	}
	return res
}

func serviceResponse(s domain.ServiceListing) ServiceResponse {
	return ServiceResponse{
		ID:              s.ID,
		ProviderID:      s.ProviderID,
		Title:           s.Title,
		Description:     s.Description,
		HourlyRate:      s.HourlyRate,
		ExperienceYears: s.ExperienceYears,
		IsAvailable:     s.IsAvailable,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
}

func mapServices(items []domain.ServiceListing) []ServiceResponse {
	res := make([]ServiceResponse, 0, len(items))
	for _, s := range items {
		res = append(res, serviceResponse(s))
	}
	return res
}

func profileResponse(p domain.Profile) ProfileResponse {
	return ProfileResponse{
		ActorID:       p.ActorID,
		Bio:           p.Bio,
		Location:      p.Location,
		Phone:         p.Phone,
		IsAssembler:   p.IsAssembler,
		AverageRating: p.AverageRating,
		JoinedAt:      p.JoinedAt,
	}
}

func mapProfiles(items []domain.Profile) []ProfileResponse {
	res := make([]ProfileResponse, 0, len(items))
	for _, p := range items {
		res = append(res, profileResponse(p))
	}
	return res
}

func messageResponse(m domain.Message) MessageResponse {
	return MessageResponse{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		IsRead:     m.IsRead,
		CreatedAt:  m.CreatedAt,
	}
}

func mapMessages(items []domain.Message) []MessageResponse {
	res := make([]MessageResponse, 0, len(items))
	for _, m := range items {
		res = append(res, messageResponse(m))
	}
	return res
}

func mapConversations(items []domain.ConversationSummary) []ConversationResponse {
	res := make([]ConversationResponse, 0, len(items))
	for _, c := range items {
		res = append(res, ConversationResponse{
			CounterpartID: c.CounterpartID,
			LatestMessage: messageResponse(c.Latest),
			UnreadCount:   c.UnreadCount,
		})
	}
	return res
}

func reviewResponse(rv domain.Review) ReviewResponse {
	return ReviewResponse{
		ID:         rv.ID,
		ProjectID:  rv.ProjectID,
		ReviewerID: rv.ReviewerID,
		RevieweeID: rv.RevieweeID,
		Rating:     rv.Rating,
		Comment:    rv.Comment,
		CreatedAt:  rv.CreatedAt,
	}
}

func mapReviews(items []domain.Review) []ReviewResponse {
	res := make([]ReviewResponse, 0, len(items))
	for _, rv := range items {
		res = append(res, reviewResponse(rv))
	}
	return res
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func apiKeyResponse(k domain.APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:        k.ID,
		ActorID:   k.ActorID,
		Name:      k.Name,
		CreatedAt: k.CreatedAt,
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var tmp any
	if err := json.Unmarshal([]byte(raw), &tmp); err != nil {
		return nil
	}
	if obj, ok := tmp.(map[string]any); ok {
		return obj
	}
	return nil
}

func stringOrEmpty(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
