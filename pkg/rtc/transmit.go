package rtc

import (
	"context"
	"io"
	"time"

	"github.com/commune-app/callengine/pkg/media"
	"github.com/labstack/gommon/log"
	"github.com/pion/webrtc/v3"
	webrtcmedia "github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

// transmit pumps the local stream through the encoder and writes the
// resulting opus pages onto the outgoing track.
func (m *Manager) transmit(ctx context.Context, stream *media.Stream, track *webrtc.TrackLocalStaticSample) {
	constraints := media.DefaultConstraints()
	constraints.SampleRate = stream.SampleRate()

	session, err := m.encoder.Start(ctx, media.MimeOggOpus, constraints)
	if err != nil {
		log.Errorf("cannot start transmit encoder | error: %v", err)
		return
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := session.Stop(stopCtx); err != nil {
			log.Debugf("transmit encoder stop | error: %v", err)
		}
	}()

	// PCM into the encoder.
	go func() {
		frames := stream.Frames()
		for {
			select {
			case <-ctx.Done():
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				if err := session.Write(frame); err != nil {
					return
				}
			}
		}
	}()

	// Encoded segments through an ogg parser onto the track.
	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()
		for segment := range session.Segments() {
			if _, err := pw.Write(segment); err != nil {
				return
			}
		}
	}()

	ogg, _, err := oggreader.NewWith(pr)
	if err != nil {
		log.Errorf("cannot parse encoded stream | error: %v", err)
		return
	}

	var lastGranule uint64
	clockRate := uint64(constraints.SampleRate)
	for {
		pageData, pageHeader, err := ogg.ParseNextPage()
		if err != nil {
			if err != io.EOF && ctx.Err() == nil {
				log.Debugf("transmit stream ended | error: %v", err)
			}
			return
		}

		sampleCount := pageHeader.GranulePosition - lastGranule
		lastGranule = pageHeader.GranulePosition
		duration := time.Duration(sampleCount) * time.Second / time.Duration(clockRate)

		if err = track.WriteSample(webrtcmedia.Sample{Data: pageData, Duration: duration}); err != nil {
			log.Debugf("cannot write sample | error: %v", err)
			return
		}
	}
}
