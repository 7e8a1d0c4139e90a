package rtc

import (
	"fmt"

	"github.com/commune-app/callengine/pkg/media"
	"github.com/pion/webrtc/v3"
)

// DefaultSTUNServers are public STUN endpoints used when no ICE
// configuration is supplied.
var DefaultSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

const (
	opusPayloadType   = 111
	candidatePoolSize = 10
	dataChannelLabel  = "signal"
	maxRetransmits    = 3
)

// buildConfiguration assembles the fixed peer-connection settings:
// bundled media over one transport, multiplexed RTCP and a pre-warmed
// candidate pool.
func buildConfiguration(stunServers []string) webrtc.Configuration {
	if len(stunServers) == 0 {
		stunServers = DefaultSTUNServers
	}
	return webrtc.Configuration{
		ICEServers:           []webrtc.ICEServer{{URLs: stunServers}},
		BundlePolicy:         webrtc.BundlePolicyMaxBundle,
		RTCPMuxPolicy:        webrtc.RTCPMuxPolicyRequire,
		ICECandidatePoolSize: candidatePoolSize,
	}
}

// opusCodecParameters caps the audio bitrate at the codec level; pion
// has no per-sender maxBitrate, so the cap travels in the fmtp line
// and is renegotiated with the codec.
func opusCodecParameters(c media.Constraints) webrtc.RTPCodecParameters {
	return webrtc.RTPCodecParameters{
		RTPCodecCapability: webrtc.RTPCodecCapability{
			MimeType:    webrtc.MimeTypeOpus,
			ClockRate:   uint32(c.SampleRate),
			Channels:    uint16(c.Channels),
			SDPFmtpLine: fmt.Sprintf("minptime=10;useinbandfec=1;maxaveragebitrate=%d", media.TargetBitrate),
		},
		PayloadType: opusPayloadType,
	}
}

// dataChannelInit configures the best-effort side channel: ordered,
// bounded retransmits, never blocking the media path.
func dataChannelInit() *webrtc.DataChannelInit {
	ordered := true
	retx := uint16(maxRetransmits)
	return &webrtc.DataChannelInit{
		Ordered:        &ordered,
		MaxRetransmits: &retx,
	}
}
