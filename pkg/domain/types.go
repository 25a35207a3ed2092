package domain

import "time"

type AccessLevel string

const (
	AccessFree     AccessLevel = "free"
	AccessPremium  AccessLevel = "premium"
	AccessEducator AccessLevel = "educator"
)

// Rank orders access levels. Unknown levels rank lowest.
func (l AccessLevel) Rank() int {
	switch l {
	case AccessPremium:
		return 1
	case AccessEducator:
		return 2
	default:
		return 0
	}
}

// Valid reports whether l is one of the known tiers.
func (l AccessLevel) Valid() bool {
	switch l {
	case AccessFree, AccessPremium, AccessEducator:
		return true
	}
	return false
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type ArtifactType string

const (
	ArtifactLessonPlan  ArtifactType = "lesson-plan"
	ArtifactActivity    ArtifactType = "activity"
	ArtifactAssessment  ArtifactType = "assessment"
	ArtifactDecodable   ArtifactType = "decodable"
	ArtifactPhonicsGame ArtifactType = "phonics-game"
)

type User struct {
	ID          string      `json:"id"`
	Email       string      `json:"email"`
	Name        string      `json:"name,omitempty"`
	AccessLevel AccessLevel `json:"accessLevel"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type Artifact struct {
	ID          string       `json:"id"`
	Type        ArtifactType `json:"type"`
	Title       string       `json:"title"`
	Content     string       `json:"content"`
	DownloadURL string       `json:"downloadUrl,omitempty"`
	CreatedAt   time.Time    `json:"createdAt"`
}

type Message struct {
	ID             string     `json:"id"`
	ConversationID string     `json:"conversationId,omitempty"`
	UserID         string     `json:"userId,omitempty"`
	Content        string     `json:"content"`
	Role           Role       `json:"role"`
	CreatedAt      time.Time  `json:"createdAt"`
	Mode           ChatMode   `json:"mode"`
	Artifacts      []Artifact `json:"artifacts,omitempty"`
}

// Conversation can hold messages from several modes; Mode is the primary one.
type Conversation struct {
	ID        string     `json:"id"`
	UserID    string     `json:"userId"`
	Mode      ChatMode   `json:"mode"`
	Title     string     `json:"title"`
	Messages  []Message  `json:"messages"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	Artifacts []Artifact `json:"artifacts,omitempty"`
}

// CloneMessages returns a copy of msgs that shares no slices with the input.
func CloneMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, msg := range msgs {
		out[i] = msg
		if msg.Artifacts != nil {
			out[i].Artifacts = append([]Artifact(nil), msg.Artifacts...)
		}
	}
	return out
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	out := c
	out.Messages = CloneMessages(c.Messages)
	if c.Artifacts != nil {
		out.Artifacts = append([]Artifact(nil), c.Artifacts...)
	}
	return out
}
