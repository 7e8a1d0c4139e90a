package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func activeCall(scope, id, host string) *Call {
	return &Call{
		ID:        id,
		Scope:     scope,
		StartedAt: time.Now(),
		Status:    StatusActive,
		HostID:    host,
		Participants: []Participant{
			{UserID: host, UserName: "Host", Role: RoleHost, JoinedAt: time.Now()},
		},
	}
}

func TestAddParticipantDeduplicates(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCall(ctx, activeCall("club", "c1", "u1")))

	p := Participant{UserID: "u2", UserName: "V", Role: RoleParticipant, JoinedAt: time.Now()}
	require.NoError(t, s.AddParticipant(ctx, "club", "c1", p))
	require.NoError(t, s.AddParticipant(ctx, "club", "c1", p))

	call, err := s.GetCall(ctx, "club", "c1")
	require.NoError(t, err)
	require.Len(t, call.Participants, 2)
}

func TestAddParticipantUnknownCall(t *testing.T) {
	s := NewMemoryStore()
	err := s.AddParticipant(context.Background(), "club", "nope", Participant{UserID: "u"})
	require.ErrorIs(t, err, ErrCallNotFound)
}

func TestRemoveParticipant(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCall(ctx, activeCall("club", "c1", "u1")))
	require.NoError(t, s.AddParticipant(ctx, "club", "c1", Participant{UserID: "u2", Role: RoleParticipant}))

	require.NoError(t, s.RemoveParticipant(ctx, "club", "c1", "u2"))

	call, _ := s.GetCall(ctx, "club", "c1")
	require.Len(t, call.Participants, 1)
	require.Equal(t, "u1", call.Participants[0].UserID)
	require.Equal(t, StatusActive, call.Status)
}

func TestCompleteCallIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCall(ctx, activeCall("club", "c1", "u1")))

	first := time.Now()
	require.NoError(t, s.CompleteCall(ctx, "club", "c1", first, "https://blob/rec.webm"))

	// A second completion must not move endedAt or clear the URL.
	require.NoError(t, s.CompleteCall(ctx, "club", "c1", first.Add(time.Hour), ""))

	call, _ := s.GetCall(ctx, "club", "c1")
	require.Equal(t, StatusCompleted, call.Status)
	require.True(t, call.EndedAt.Equal(first))
	require.Equal(t, "https://blob/rec.webm", call.RecordingURL)
}

func TestCompleteCallWithoutRecordingURL(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.CreateCall(ctx, activeCall("club", "c1", "u1")))
	require.NoError(t, s.CompleteCall(ctx, "club", "c1", time.Now(), ""))

	call, _ := s.GetCall(ctx, "club", "c1")
	require.Equal(t, StatusCompleted, call.Status)
	require.Empty(t, call.RecordingURL)
}

func TestMessagesNewestFirstBounded(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.AppendMessage(ctx, "club", "c1", &Message{
			ID:        string(rune('a' + i)),
			Content:   string(rune('a' + i)),
			Type:      MessageText,
			Timestamp: base.Add(time.Duration(i) * time.Second),
		}))
	}

	msgs, err := s.Messages(ctx, "club", "c1", 3)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "e", msgs[0].Content)
	require.Equal(t, "d", msgs[1].Content)
	require.Equal(t, "c", msgs[2].Content)
}

func TestSubscribeDeliversChanges(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var pages [][]Message
	sub, err := s.SubscribeMessages(ctx, "club", "c1", 10, func(msgs []Message) {
		pages = append(pages, msgs)
	})
	require.NoError(t, err)

	require.NoError(t, s.AppendMessage(ctx, "club", "c1", &Message{ID: "m1", Content: "hi", Timestamp: time.Now()}))
	require.Len(t, pages, 2) // initial snapshot + one change
	require.Len(t, pages[1], 1)

	sub.Cancel()
	require.NoError(t, s.AppendMessage(ctx, "club", "c1", &Message{ID: "m2", Content: "bye", Timestamp: time.Now()}))
	require.Len(t, pages, 2)

	// Cancelling twice is safe.
	sub.Cancel()
}

func TestMembershipLookup(t *testing.T) {
	s := NewMemoryStore()
	s.SetMembership("club", Membership{UserID: "u1", Role: MemberAdministrator})

	m, err := s.Membership(context.Background(), "club", "u1")
	require.NoError(t, err)
	require.True(t, m.CanManageCalls())

	missing, err := s.Membership(context.Background(), "club", "ghost")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestCanManageCalls(t *testing.T) {
	require.True(t, (&Membership{Role: MemberOwner}).CanManageCalls())
	require.True(t, (&Membership{Role: MemberAdministrator}).CanManageCalls())
	require.False(t, (&Membership{Role: MemberRegular}).CanManageCalls())
}
