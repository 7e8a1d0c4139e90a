// Package call drives one admin voice call end to end: authorization,
// call record lifecycle, media wiring and graceful or forced teardown.
package call

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/lithammer/shortuuid/v4"

	"github.com/commune-app/callengine/pkg/identity"
	"github.com/commune-app/callengine/pkg/level"
	"github.com/commune-app/callengine/pkg/media"
	"github.com/commune-app/callengine/pkg/record"
	"github.com/commune-app/callengine/pkg/store"
	"github.com/commune-app/callengine/pkg/upload"
)

// Connection owns the local device and peer connection for one call.
type Connection interface {
	Initialize(ctx context.Context) (*media.Stream, error)
	Cleanup()
}

// Analyzer reports a speaking level for a local audio source.
type Analyzer interface {
	Attach(src level.FrameSource, onLevel func(float64)) error
	Detach()
}

// Deps carries the orchestrator's collaborators. NewConnection,
// NewAnalyzer and NewRecorder build the per-call components; one
// instance of each is owned exclusively for the lifetime of one call.
type Deps struct {
	Store    store.CallStore
	Uploader upload.Uploader

	NewConnection func() Connection
	NewAnalyzer   func() Analyzer
	NewRecorder   func() record.Pipeline

	// OnLevel receives speaking levels for the local participant.
	OnLevel func(userID string, lvl float64)
	// OnMessages receives the newest-first message page on every feed
	// change.
	OnMessages func(msgs []store.Message)
}

// Orchestrator is the call state machine. All state-mutating
// operations are serialized: a second start/join/leave cannot begin
// while a prior one is in flight.
type Orchestrator struct {
	scope string
	self  identity.Identity
	deps  Deps

	mu       sync.Mutex
	state    State
	callID   string
	conn     Connection
	analyzer Analyzer
	recorder record.Pipeline
	stream   *media.Stream
	sub      store.Subscription
}

func New(scope string, self identity.Identity, deps Deps) *Orchestrator {
	if deps.OnLevel == nil {
		deps.OnLevel = func(string, float64) {}
	}
	if deps.OnMessages == nil {
		deps.OnMessages = func([]store.Message) {}
	}
	return &Orchestrator{
		scope: scope,
		self:  self,
		deps:  deps,
		state: StateIdle,
	}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// CallID returns the id of the current call, if any.
func (o *Orchestrator) CallID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.callID
}

// authorize checks the caller's standing in the scope membership
// record before anything is acquired. Fails with ErrPermission and no
// side effects.
func (o *Orchestrator) authorize(ctx context.Context) error {
	m, err := o.deps.Store.Membership(ctx, o.scope, o.self.UserID)
	if err != nil {
		return err
	}
	if m == nil || !m.CanManageCalls() {
		return ErrPermission
	}
	return nil
}

// StartCall creates a new call with the caller as host, acquires
// media, starts level analysis and recording, and subscribes to the
// message feed.
func (o *Orchestrator) StartCall(ctx context.Context) (*store.Call, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.startable() {
		return nil, ErrCallInProgress
	}
	if err := o.authorize(ctx); err != nil {
		return nil, err
	}
	o.state = StateStarting

	stream, err := o.acquireLocked(ctx)
	if err != nil {
		return nil, o.failLocked(err)
	}

	now := time.Now()
	call := &store.Call{
		ID:        shortuuid.New(),
		Scope:     o.scope,
		StartedAt: now,
		Status:    store.StatusActive,
		HostID:    o.self.UserID,
		Participants: []store.Participant{{
			UserID:   o.self.UserID,
			UserName: o.self.Name,
			Role:     store.RoleHost,
			JoinedAt: now,
		}},
	}
	if err = o.deps.Store.CreateCall(ctx, call); err != nil {
		return nil, o.failLocked(err)
	}
	o.callID = call.ID

	if err = o.recorder.Start(ctx, stream); err != nil {
		return nil, o.failLocked(err)
	}
	if err = o.subscribeLocked(ctx); err != nil {
		return nil, o.failLocked(err)
	}

	o.state = StateActiveHost
	log.Infof("call started | call: %s, host: %s", call.ID, o.self.UserID)
	return call, nil
}

// JoinCall adds the caller to an existing call. Joining a call the
// caller is already active in is a no-op success. Only the host
// records, so no recording is started here.
func (o *Orchestrator) JoinCall(ctx context.Context, callID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state.Active() && o.callID == callID {
		return nil
	}
	if !o.state.startable() {
		return ErrCallInProgress
	}
	if err := o.authorize(ctx); err != nil {
		return err
	}

	existing, err := o.deps.Store.GetCall(ctx, o.scope, callID)
	if err != nil {
		return err
	}
	if existing.Status != store.StatusActive {
		return ErrCallCompleted
	}
	o.state = StateStarting

	if err = o.deps.Store.AddParticipant(ctx, o.scope, callID, store.Participant{
		UserID:   o.self.UserID,
		UserName: o.self.Name,
		Role:     store.RoleParticipant,
		JoinedAt: time.Now(),
	}); err != nil {
		return o.failLocked(err)
	}
	o.callID = callID

	if _, err = o.acquireLocked(ctx); err != nil {
		o.evictSelfLocked(ctx)
		return o.failLocked(err)
	}
	if err = o.subscribeLocked(ctx); err != nil {
		o.evictSelfLocked(ctx)
		return o.failLocked(err)
	}

	o.state = StateActiveParticipant
	log.Infof("call joined | call: %s, participant: %s", callID, o.self.UserID)
	return nil
}

// acquireLocked builds the per-call components, acquires media and
// wires the analyser. The recorder is built but not started.
func (o *Orchestrator) acquireLocked(ctx context.Context) (*media.Stream, error) {
	o.conn = o.deps.NewConnection()
	o.analyzer = o.deps.NewAnalyzer()
	o.recorder = o.deps.NewRecorder()

	stream, err := o.conn.Initialize(ctx)
	if err != nil {
		return nil, err
	}
	o.stream = stream

	userID := o.self.UserID
	onLevel := o.deps.OnLevel
	if err = o.analyzer.Attach(stream, func(lvl float64) {
		onLevel(userID, lvl)
	}); err != nil {
		return nil, err
	}
	return stream, nil
}

// evictSelfLocked removes the caller from the participant list after a
// join that could not finish. Best effort: the record must not keep a
// member who never went live, or the last real leaver would see a
// ghost and leave the call active.
func (o *Orchestrator) evictSelfLocked(ctx context.Context) {
	if err := o.deps.Store.RemoveParticipant(ctx, o.scope, o.callID, o.self.UserID); err != nil {
		log.Warnf("cannot remove failed joiner | call: %s, participant: %s, error: %v", o.callID, o.self.UserID, err)
	}
}

func (o *Orchestrator) subscribeLocked(ctx context.Context) error {
	sub, err := o.deps.Store.SubscribeMessages(ctx, o.scope, o.callID, store.DefaultMessagePage, o.deps.OnMessages)
	if err != nil {
		return err
	}
	o.sub = sub
	return nil
}

// LeaveCall removes the caller from the call. The host, or the last
// remaining participant, ends the call for everyone.
func (o *Orchestrator) LeaveCall(ctx context.Context) error {
	return o.leave(ctx, false)
}

// EndCall ends the call for everyone regardless of remaining
// participants.
func (o *Orchestrator) EndCall(ctx context.Context) error {
	return o.leave(ctx, true)
}

func (o *Orchestrator) leave(ctx context.Context, force bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Active() {
		return ErrNoActiveCall
	}
	isHost := o.state == StateActiveHost
	o.state = StateEnding

	current, err := o.deps.Store.GetCall(ctx, o.scope, o.callID)
	if err != nil {
		return o.failLocked(err)
	}

	if force || isHost || len(current.Participants) <= 1 {
		return o.endLocked(ctx)
	}

	err = o.deps.Store.RemoveParticipant(ctx, o.scope, o.callID, o.self.UserID)
	o.cleanupLocked()
	o.state = StateEnded
	log.Infof("call left | call: %s, participant: %s", o.callID, o.self.UserID)
	return err
}

// endLocked finalises the recording, uploads it and marks the call
// completed. An upload failure degrades to a completed call without a
// recording URL; a call is never left active because storage failed.
func (o *Orchestrator) endLocked(ctx context.Context) error {
	now := time.Now()

	var recordingURL string
	blob, err := o.recorder.Stop(ctx)
	if err != nil {
		if errors.Is(err, record.ErrRecording) {
			log.Warnf("recording unavailable | call: %s, error: %v", o.callID, err)
		} else {
			log.Errorf("cannot stop recording | call: %s, error: %v", o.callID, err)
		}
	}
	if blob != nil {
		key := upload.RecordingKey(o.scope, o.callID, now)
		recordingURL, err = o.deps.Uploader.Upload(ctx, key, bytes.NewReader(blob.Data))
		if err != nil {
			// Degrade: the call still completes, only the URL is lost.
			log.Errorf("cannot upload recording | call: %s, key: %s, error: %v", o.callID, key, err)
			recordingURL = ""
		}
	}

	err = o.deps.Store.CompleteCall(ctx, o.scope, o.callID, now, recordingURL)
	o.cleanupLocked()
	o.state = StateEnded
	if err != nil {
		return err
	}
	log.Infof("call ended | call: %s, recording: %t", o.callID, recordingURL != "")
	return nil
}

// SendMessage appends a text message to the call's feed.
func (o *Orchestrator) SendMessage(ctx context.Context, content string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Active() {
		return ErrNoActiveCall
	}
	return o.deps.Store.AppendMessage(ctx, o.scope, o.callID, &store.Message{
		ID:        uuid.NewString(),
		UserID:    o.self.UserID,
		UserName:  o.self.Name,
		Content:   content,
		Type:      store.MessageText,
		Timestamp: time.Now(),
	})
}

// UploadFile stores a shared file and announces it on the feed.
func (o *Orchestrator) UploadFile(ctx context.Context, name string, body io.Reader) (*store.FileRef, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Active() {
		return nil, ErrNoActiveCall
	}

	key := upload.FileKey(o.scope, o.callID, name)
	url, err := o.deps.Uploader.Upload(ctx, key, body)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	ref := store.FileRef{Name: name, URL: url, UploadedBy: o.self.UserID, UploadedAt: now}
	if err = o.deps.Store.AppendDocument(ctx, o.scope, o.callID, ref); err != nil {
		return nil, err
	}
	err = o.deps.Store.AppendMessage(ctx, o.scope, o.callID, &store.Message{
		ID:        uuid.NewString(),
		UserID:    o.self.UserID,
		UserName:  o.self.Name,
		Content:   name,
		Type:      store.MessageFile,
		FileURL:   url,
		FileName:  name,
		Timestamp: now,
	})
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

// Messages returns the newest-first message page for the active call.
func (o *Orchestrator) Messages(ctx context.Context) ([]store.Message, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.state.Active() {
		return nil, ErrNoActiveCall
	}
	return o.deps.Store.Messages(ctx, o.scope, o.callID, store.DefaultMessagePage)
}

// Cleanup forces teardown from any state. Never raises; safe to call
// repeatedly, including mid-start.
func (o *Orchestrator) Cleanup() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.cleanupLocked()
	o.state = StateEnded
}

// failLocked tears everything down and returns the original error.
func (o *Orchestrator) failLocked(err error) error {
	o.cleanupLocked()
	o.state = StateEnded
	return err
}

// cleanupLocked releases all owned resources: the feed subscription
// first so no further work is triggered, then the connection and
// analyser concurrently, then the recorder.
func (o *Orchestrator) cleanupLocked() {
	if o.sub != nil {
		o.sub.Cancel()
		o.sub = nil
	}

	var wg sync.WaitGroup
	if o.conn != nil {
		wg.Add(1)
		go func(c Connection) {
			defer wg.Done()
			c.Cleanup()
		}(o.conn)
	}
	if o.analyzer != nil {
		wg.Add(1)
		go func(a Analyzer) {
			defer wg.Done()
			a.Detach()
		}(o.analyzer)
	}
	wg.Wait()

	if o.recorder != nil {
		o.recorder.Cleanup()
	}

	o.conn = nil
	o.analyzer = nil
	o.recorder = nil
	o.stream = nil
}
