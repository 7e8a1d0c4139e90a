// Package record captures a local audio stream into a segmented
// encoder and assembles the segments into one durable blob on demand.
package record

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/commune-app/callengine/pkg/media"
	"github.com/labstack/gommon/log"
)

var ErrRecording = errors.New("recording failed")

var (
	ErrNoSupportedCodec = fmt.Errorf("%w: no supported recording codec", ErrRecording)
	ErrEmptyRecording   = fmt.Errorf("%w: empty recording", ErrRecording)
)

// Blob is one assembled recording.
type Blob struct {
	Data     []byte
	MimeType string
}

// Pipeline captures a stream's audio into encoded segments.
// Stop returns nil when no recording was active; that is the normal
// "left without recording" path, not an error.
type Pipeline interface {
	Start(ctx context.Context, stream *media.Stream) error
	Stop(ctx context.Context) (*Blob, error)
	Cleanup()
}

type pipeline struct {
	enc media.Encoder

	mu      sync.Mutex
	mime    string
	session media.Session
	buf     *segmentBuffer
	cancel  context.CancelFunc
	done    chan struct{}
	active  bool
}

func NewPipeline(enc media.Encoder) Pipeline {
	return &pipeline{enc: enc}
}

func (p *pipeline) Start(ctx context.Context, stream *media.Stream) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.active {
		return fmt.Errorf("%w: already recording", ErrRecording)
	}

	mime, err := media.NegotiateMime(p.enc)
	if err != nil {
		return ErrNoSupportedCodec
	}

	constraints := media.DefaultConstraints()
	constraints.SampleRate = stream.SampleRate()

	ctx, cancel := context.WithCancel(ctx)
	session, err := p.enc.Start(ctx, mime, constraints)
	if err != nil {
		cancel()
		return fmt.Errorf("%w: %v", ErrRecording, err)
	}

	p.mime = mime
	p.session = session
	p.buf = newSegmentBuffer()
	p.cancel = cancel
	p.done = make(chan struct{})
	p.active = true

	go p.feed(ctx, session, stream.Frames())
	go p.collect(session, p.buf, p.done)

	log.Debugf("recording started | mime: %s", mime)
	return nil
}

// feed pumps PCM from the stream into the encoder until cancelled or
// the stream ends.
func (p *pipeline) feed(ctx context.Context, session media.Session, frames <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if err := session.Write(frame); err != nil {
				log.Debugf("encoder rejected frame | error: %v", err)
				return
			}
		}
	}
}

// collect appends encoded segments as the encoder emits them. It holds
// its own references: Cleanup may clear the pipeline fields while a
// stopping encoder is still flushing, and a closed buffer rejecting
// the append is what ends the loop.
func (p *pipeline) collect(session media.Session, buf *segmentBuffer, done chan struct{}) {
	defer close(done)
	for segment := range session.Segments() {
		if err := buf.Append(segment); err != nil {
			return
		}
	}
}

func (p *pipeline) Stop(ctx context.Context) (*Blob, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.active {
		log.Debug("stop called with no active recording")
		return nil, nil
	}
	p.active = false

	// Stop the encoder and wait for its final segments.
	if err := p.session.Stop(ctx); err != nil {
		log.Warnf("encoder finalisation | error: %v", err)
	}
	select {
	case <-p.done:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", ErrRecording, ctx.Err())
	}
	p.cancel()

	if p.buf.Len() == 0 {
		return nil, ErrEmptyRecording
	}

	blob := &Blob{Data: p.buf.Assemble(), MimeType: p.mime}
	log.Debugf("recording assembled | mime: %s, bytes: %d", blob.MimeType, len(blob.Data))
	return blob, nil
}

// Cleanup discards any buffered recording. Always safe, including on a
// pipeline that never started or was already cleaned.
func (p *pipeline) Cleanup() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.session != nil && p.active {
		// Best effort: release the encoder without waiting for flush.
		session := p.session
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := session.Stop(ctx); err != nil {
				log.Debugf("encoder cleanup | error: %v", err)
			}
		}()
	}
	if p.buf != nil {
		if err := p.buf.Close(); err == nil {
			log.Debug("discarded recording buffer")
		}
		p.buf = nil
	}
	p.session = nil
	p.active = false
}
