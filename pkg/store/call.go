package store

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type Role string

const (
	RoleHost        Role = "host"
	RoleParticipant Role = "participant"
)

// Participant is one member of a call. Exactly one participant holds
// RoleHost, assigned at creation and never reassigned.
type Participant struct {
	UserID   string    `firestore:"userId" json:"userId"`
	UserName string    `firestore:"userName" json:"userName"`
	Role     Role      `firestore:"role" json:"role"`
	JoinedAt time.Time `firestore:"joinedAt" json:"joinedAt"`
}

// FileRef points at a shared file in blob storage.
type FileRef struct {
	Name       string    `firestore:"name" json:"name"`
	URL        string    `firestore:"url" json:"url"`
	UploadedBy string    `firestore:"uploadedBy" json:"uploadedBy"`
	UploadedAt time.Time `firestore:"uploadedAt" json:"uploadedAt"`
}

// Call is one voice session. Status only ever transitions
// active -> completed; records are never deleted.
type Call struct {
	ID           string        `firestore:"-" json:"id"`
	Scope        string        `firestore:"-" json:"scope"`
	StartedAt    time.Time     `firestore:"startedAt" json:"startedAt"`
	EndedAt      *time.Time    `firestore:"endedAt,omitempty" json:"endedAt,omitempty"`
	Status       Status        `firestore:"status" json:"status"`
	HostID       string        `firestore:"hostId" json:"hostId"`
	Participants []Participant `firestore:"participants" json:"participants"`
	Documents    []FileRef     `firestore:"documents" json:"documents"`
	RecordingURL string        `firestore:"recordingUrl,omitempty" json:"recordingUrl,omitempty"`
}

// HasParticipant reports whether userID is already listed.
func (c *Call) HasParticipant(userID string) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type MessageType string

const (
	MessageText MessageType = "text"
	MessageFile MessageType = "file"
)

// Message is one chat message in a call. Immutable once written.
type Message struct {
	ID        string      `firestore:"-" json:"id"`
	UserID    string      `firestore:"userId" json:"userId"`
	UserName  string      `firestore:"userName" json:"userName"`
	Content   string      `firestore:"content" json:"content"`
	Type      MessageType `firestore:"type" json:"type"`
	FileURL   string      `firestore:"fileUrl,omitempty" json:"fileUrl,omitempty"`
	FileName  string      `firestore:"fileName,omitempty" json:"fileName,omitempty"`
	Timestamp time.Time   `firestore:"timestamp" json:"timestamp"`
}

// Membership is a user's standing within a scope. It is the single
// source of truth for call authorization.
type Membership struct {
	UserID string `firestore:"userId" json:"userId"`
	Role   string `firestore:"role" json:"role"`
}

const (
	MemberOwner         = "owner"
	MemberAdministrator = "administrator"
	MemberRegular       = "member"
)

// CanManageCalls reports whether this member may start or join calls.
func (m *Membership) CanManageCalls() bool {
	return m.Role == MemberOwner || m.Role == MemberAdministrator
}
