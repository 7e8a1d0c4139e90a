// Package rtc owns the local media device and one peer connection per
// call participant, together with its data channel and health stats.
package rtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/commune-app/callengine/pkg/media"
	"github.com/labstack/gommon/log"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
)

type Config struct {
	STUNServers []string

	// NewCapture acquires the local audio device. Defaults to the
	// portaudio capture; tests substitute a static one.
	NewCapture func(media.Constraints) (media.Capture, error)
}

// Manager acquires the local audio stream and owns one peer
// connection. Initialize and Cleanup bracket its whole lifecycle;
// Cleanup is idempotent and safe on a partially-initialized manager.
type Manager struct {
	cfg     Config
	encoder media.Encoder

	mu     sync.Mutex
	stream *media.Stream
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	cancel context.CancelFunc
}

func NewManager(cfg Config, encoder media.Encoder) *Manager {
	if cfg.NewCapture == nil {
		cfg.NewCapture = media.NewPortAudioCapture
	}
	return &Manager{cfg: cfg, encoder: encoder}
}

// Initialize acquires the microphone, creates the peer connection and
// starts transmission. Any failure triggers a full Cleanup before the
// error is returned.
func (m *Manager) Initialize(ctx context.Context) (*media.Stream, error) {
	stream, err := m.initialize(ctx)
	if err != nil {
		m.Cleanup()
		return nil, err
	}
	return stream, nil
}

func (m *Manager) initialize(ctx context.Context) (*media.Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil, fmt.Errorf("%w: already initialized", media.ErrAcquisition)
	}

	constraints := media.DefaultConstraints()
	capture, err := m.cfg.NewCapture(constraints)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	m.stream = media.NewStream(capture)
	if err = m.stream.Start(ctx); err != nil {
		return nil, err
	}

	engine := &webrtc.MediaEngine{}
	if err = engine.RegisterCodec(opusCodecParameters(constraints), webrtc.RTPCodecTypeAudio); err != nil {
		return nil, err
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(engine))

	m.pc, err = api.NewPeerConnection(buildConfiguration(m.cfg.STUNServers))
	if err != nil {
		return nil, err
	}
	m.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Infof("ice connection state | state: %s", state)
	})
	m.pc.OnTrack(m.drainRemote)

	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType:  webrtc.MimeTypeOpus,
		ClockRate: uint32(constraints.SampleRate),
		Channels:  uint16(constraints.Channels),
	}, "audio", "callengine")
	if err != nil {
		return nil, err
	}
	sender, err := m.pc.AddTrack(track)
	if err != nil {
		return nil, err
	}
	logSenderParameters(sender)

	m.dc, err = m.pc.CreateDataChannel(dataChannelLabel, dataChannelInit())
	if err != nil {
		return nil, err
	}
	m.dc.OnOpen(func() {
		log.Debugf("data channel open | label: %s", dataChannelLabel)
	})
	m.dc.OnClose(func() {
		log.Debugf("data channel closed | label: %s", dataChannelLabel)
	})

	go m.transmit(ctx, m.stream, track)
	go m.pollStats(ctx)

	return m.stream, nil
}

// logSenderParameters reads back the negotiated encoding parameters.
// Advisory: confirms the bitrate cap registered on the codec survived
// track attachment.
func logSenderParameters(sender *webrtc.RTPSender) {
	params := sender.GetParameters()
	for _, c := range params.Codecs {
		log.Debugf("audio sender codec | mime: %s, fmtp: %s", c.MimeType, c.SDPFmtpLine)
	}
}

// drainRemote keeps the remote audio flowing so jitter and loss stats
// stay meaningful. The payload itself goes to the OS audio stack, not
// through us.
func (m *Manager) drainRemote(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	log.Debugf("remote track | codec: %s", track.Codec().MimeType)
	var (
		pkt     *rtp.Packet
		packets int
		payload int
		err     error
	)
	for {
		pkt, _, err = track.ReadRTP()
		if err != nil {
			log.Debugf("remote track ended | packets: %d, bytes: %d, error: %v", packets, payload, err)
			return
		}
		packets++
		payload += len(pkt.Payload)
	}
}

// Cleanup stops the local tracks, closes the data channel and closes
// the connection. Safe to call multiple times and on a
// partially-initialized manager.
func (m *Manager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	if m.stream != nil {
		m.stream.Stop()
		m.stream = nil
	}
	if m.dc != nil {
		if err := m.dc.Close(); err != nil {
			log.Debugf("cannot close data channel | error: %v", err)
		}
		m.dc = nil
	}
	if m.pc != nil {
		if err := m.pc.Close(); err != nil {
			log.Debugf("cannot close peer connection | error: %v", err)
		}
		m.pc = nil
	}
}
