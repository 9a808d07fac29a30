package domain

// Profile carries the marketplace-facing attributes of an actor. Identity
// and credentials live outside this service; the profile row is provisioned
// on first contact.
type Profile struct {
	ActorID       string  `json:"actor_id"`
	Bio           string  `json:"bio,omitempty"`
	Location      string  `json:"location,omitempty"`
	Phone         string  `json:"phone,omitempty"`
	IsAssembler   bool    `json:"is_assembler"`
	AverageRating float64 `json:"average_rating"`
	JoinedAt      string  `json:"joined_at" format:"date-time"`
}

type ServiceListing struct {
	ID              string  `json:"id"`
	ProviderID      string  `json:"provider_id"`
	Title           string  `json:"title"`
	Description     string  `json:"description,omitempty"`
	HourlyRate      float64 `json:"hourly_rate"`
	ExperienceYears int     `json:"experience_years"`
	IsAvailable     bool    `json:"is_available"`
	CreatedAt       string  `json:"created_at" format:"date-time"`
	UpdatedAt       string  `json:"updated_at" format:"date-time"`
}

type Project struct {
	ID            string  `json:"id"`
	CreatorID     string  `json:"creator_id"`
	Title         string  `json:"title"`
	Description   string  `json:"description,omitempty"`
	FurnitureType string  `json:"furniture_type"`
	Location      string  `json:"location,omitempty"`
	Budget        float64 `json:"budget"`
	Status        string  `json:"status" enum:"open,in_progress,completed,cancelled"`
	AssignedTo    *string `json:"assigned_to,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
	UpdatedAt     string  `json:"updated_at" format:"date-time"`
}

type Message struct {
	ID         int64  `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
	IsRead     bool   `json:"is_read"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

type Review struct {
	ID         string `json:"id"`
	ProjectID  string `json:"project_id"`
	ReviewerID string `json:"reviewer_id"`
	RevieweeID string `json:"reviewee_id"`
	Rating     int    `json:"rating" minimum:"1" maximum:"5"`
	Comment    string `json:"comment,omitempty"`
	CreatedAt  string `json:"created_at" format:"date-time"`
}

// ConversationSummary is derived at read time from the message log; nothing
// stores a conversation row.
type ConversationSummary struct {
	CounterpartID string  `json:"counterpart_id"`
	Latest        Message `json:"latest_message"`
	UnreadCount   int     `json:"unread_count"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// Project status tokens. Only the engine writes Status/AssignedTo.
const (
	StatusOpen       = "open"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusCancelled  = "cancelled"
)

// KnownStatus reports whether s is one of the four recognized tokens.
func KnownStatus(s string) bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}
