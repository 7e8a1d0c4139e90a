package media

import (
	"context"
	"errors"
)

// Recording container mime types, in preference order.
const (
	MimeWebMOpus = "audio/webm;codecs=opus"
	MimeWebM     = "audio/webm"
	MimeOggOpus  = "audio/ogg;codecs=opus"
	MimeOgg      = "audio/ogg"
)

var preferredMimes = []string{MimeWebMOpus, MimeWebM, MimeOggOpus, MimeOgg}

var ErrMediaNotSupported = errors.New("media not supported")

// Encoder is a platform encoding capability. Implementations negotiate
// container formats and turn PCM into encoded segments.
type Encoder interface {
	Supports(mimeType string) bool
	Start(ctx context.Context, mimeType string, c Constraints) (Session, error)
}

// Session is one live encode. Write pushes PCM frames; Segments
// delivers encoded chunks as they become available and closes after
// Stop has flushed the encoder.
type Session interface {
	Write(frame []int16) error
	Segments() <-chan []byte
	Stop(ctx context.Context) error
}

// NegotiateMime returns the first mime type in the preference order the
// encoder supports. The order is fixed: audio/webm;codecs=opus always
// wins when available, regardless of what else the encoder reports.
func NegotiateMime(enc Encoder) (string, error) {
	for _, m := range preferredMimes {
		if enc.Supports(m) {
			return m, nil
		}
	}
	return "", ErrMediaNotSupported
}
