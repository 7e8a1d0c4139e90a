// Package store is the document-store boundary: call records,
// participant lists and message subcollections with push-on-write
// change notification.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrSignaling    = errors.New("document store failure")
	ErrCallNotFound = errors.New("call not found")
)

// DefaultMessagePage bounds feed queries, newest first.
const DefaultMessagePage = 100

// Subscription is a live change-feed handle. Cancel stops delivery;
// it is safe to call more than once.
type Subscription interface {
	Cancel()
}

// CallStore persists calls and their message feeds. Participant-list
// mutations are read-modify-write inside a transaction so concurrent
// joins cannot lose updates.
type CallStore interface {
	CreateCall(ctx context.Context, call *Call) error
	GetCall(ctx context.Context, scope, id string) (*Call, error)

	// AddParticipant appends p unless their user id is already listed;
	// an already-listed participant is a silent no-op.
	AddParticipant(ctx context.Context, scope, id string, p Participant) error
	RemoveParticipant(ctx context.Context, scope, id, userID string) error

	// CompleteCall marks the call completed. recordingURL may be empty
	// when the recording upload failed or nothing was recorded.
	// Completing an already-completed call is a no-op.
	CompleteCall(ctx context.Context, scope, id string, endedAt time.Time, recordingURL string) error

	AppendDocument(ctx context.Context, scope, id string, ref FileRef) error

	AppendMessage(ctx context.Context, scope, id string, msg *Message) error
	Messages(ctx context.Context, scope, id string, limit int) ([]Message, error)

	// SubscribeMessages delivers the newest-first message page on every
	// change until the subscription is cancelled.
	SubscribeMessages(ctx context.Context, scope, id string, limit int, fn func([]Message)) (Subscription, error)

	// Membership returns the caller's standing in the scope, or nil if
	// they are not a member.
	Membership(ctx context.Context, scope, userID string) (*Membership, error)
}
