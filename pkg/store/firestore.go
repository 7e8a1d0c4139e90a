package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/gommon/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// firestoreStore keeps calls at scopes/{scope}/calls/{id} with a
// messages subcollection, and memberships at scopes/{scope}/members.
type firestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) CallStore {
	return &firestoreStore{client: client}
}

func (s *firestoreStore) callRef(scope, id string) *firestore.DocumentRef {
	return s.client.Collection("scopes").Doc(scope).Collection("calls").Doc(id)
}

func (s *firestoreStore) CreateCall(ctx context.Context, call *Call) error {
	_, err := s.callRef(call.Scope, call.ID).Create(ctx, call)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	return nil
}

func (s *firestoreStore) GetCall(ctx context.Context, scope, id string) (*Call, error) {
	doc, err := s.callRef(scope, id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrCallNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignaling, err)
	}

	var call Call
	if err = doc.DataTo(&call); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	call.ID = id
	call.Scope = scope
	return &call, nil
}

func (s *firestoreStore) AddParticipant(ctx context.Context, scope, id string, p Participant) error {
	ref := s.callRef(scope, id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var call Call
		if err = doc.DataTo(&call); err != nil {
			return err
		}
		if call.HasParticipant(p.UserID) {
			return nil
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "participants", Value: append(call.Participants, p)},
		})
	})
	if status.Code(err) == codes.NotFound {
		return ErrCallNotFound
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	return nil
}

func (s *firestoreStore) RemoveParticipant(ctx context.Context, scope, id, userID string) error {
	ref := s.callRef(scope, id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var call Call
		if err = doc.DataTo(&call); err != nil {
			return err
		}
		remaining := make([]Participant, 0, len(call.Participants))
		for _, part := range call.Participants {
			if part.UserID != userID {
				remaining = append(remaining, part)
			}
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "participants", Value: remaining},
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	return nil
}

func (s *firestoreStore) CompleteCall(ctx context.Context, scope, id string, endedAt time.Time, recordingURL string) error {
	ref := s.callRef(scope, id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var call Call
		if err = doc.DataTo(&call); err != nil {
			return err
		}
		if call.Status == StatusCompleted {
			return nil
		}
		updates := []firestore.Update{
			{Path: "status", Value: StatusCompleted},
			{Path: "endedAt", Value: endedAt},
		}
		if recordingURL != "" {
			updates = append(updates, firestore.Update{Path: "recordingUrl", Value: recordingURL})
		}
		return tx.Update(ref, updates)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	return nil
}

func (s *firestoreStore) AppendDocument(ctx context.Context, scope, id string, fileRef FileRef) error {
	ref := s.callRef(scope, id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var call Call
		if err = doc.DataTo(&call); err != nil {
			return err
		}
		return tx.Update(ref, []firestore.Update{
			{Path: "documents", Value: append(call.Documents, fileRef)},
		})
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	return nil
}

func (s *firestoreStore) AppendMessage(ctx context.Context, scope, id string, msg *Message) error {
	_, err := s.callRef(scope, id).Collection("messages").Doc(msg.ID).Create(ctx, msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	return nil
}

func (s *firestoreStore) messagesQuery(scope, id string, limit int) firestore.Query {
	if limit <= 0 {
		limit = DefaultMessagePage
	}
	return s.callRef(scope, id).Collection("messages").
		OrderBy("timestamp", firestore.Desc).
		Limit(limit)
}

func (s *firestoreStore) Messages(ctx context.Context, scope, id string, limit int) ([]Message, error) {
	docs, err := s.messagesQuery(scope, id, limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	msgs := make([]Message, 0, len(docs))
	for _, doc := range docs {
		var m Message
		if err = doc.DataTo(&m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSignaling, err)
		}
		m.ID = doc.Ref.ID
		msgs = append(msgs, m)
	}
	return msgs, nil
}

type snapshotSubscription struct {
	cancel context.CancelFunc
}

func (s *snapshotSubscription) Cancel() { s.cancel() }

func (s *firestoreStore) SubscribeMessages(ctx context.Context, scope, id string, limit int, fn func([]Message)) (Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	snaps := s.messagesQuery(scope, id, limit).Snapshots(ctx)

	go func() {
		defer snaps.Stop()
		for {
			snap, err := snaps.Next()
			if err != nil {
				if ctx.Err() == nil {
					log.Warnf("message feed ended | call: %s, error: %v", id, err)
				}
				return
			}
			docs, err := snap.Documents.GetAll()
			if err != nil {
				log.Warnf("cannot read message snapshot | call: %s, error: %v", id, err)
				continue
			}
			msgs := make([]Message, 0, len(docs))
			for _, doc := range docs {
				var m Message
				if err = doc.DataTo(&m); err != nil {
					continue
				}
				m.ID = doc.Ref.ID
				msgs = append(msgs, m)
			}
			fn(msgs)
		}
	}()

	return &snapshotSubscription{cancel: cancel}, nil
}

func (s *firestoreStore) Membership(ctx context.Context, scope, userID string) (*Membership, error) {
	doc, err := s.client.Collection("scopes").Doc(scope).Collection("members").Doc(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	var m Membership
	if err = doc.DataTo(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignaling, err)
	}
	m.UserID = userID
	return &m, nil
}
