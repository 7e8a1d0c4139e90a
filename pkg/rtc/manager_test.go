package rtc

import (
	"testing"

	"github.com/commune-app/callengine/pkg/media"
	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/require"
)

func TestBuildConfiguration(t *testing.T) {
	cfg := buildConfiguration(nil)
	require.Equal(t, webrtc.BundlePolicyMaxBundle, cfg.BundlePolicy)
	require.Equal(t, webrtc.RTCPMuxPolicyRequire, cfg.RTCPMuxPolicy)
	require.EqualValues(t, candidatePoolSize, cfg.ICECandidatePoolSize)
	require.Len(t, cfg.ICEServers, 1)
	require.Equal(t, DefaultSTUNServers, cfg.ICEServers[0].URLs)
}

func TestBuildConfigurationCustomServers(t *testing.T) {
	servers := []string{"stun:stun.example.org:3478"}
	cfg := buildConfiguration(servers)
	require.Equal(t, servers, cfg.ICEServers[0].URLs)
}

func TestOpusCodecCarriesBitrateCap(t *testing.T) {
	params := opusCodecParameters(media.DefaultConstraints())
	require.Equal(t, webrtc.MimeTypeOpus, params.MimeType)
	require.EqualValues(t, 48000, params.ClockRate)
	require.EqualValues(t, 1, params.Channels)
	require.Contains(t, params.SDPFmtpLine, "maxaveragebitrate=128000")
}

func TestDataChannelInit(t *testing.T) {
	init := dataChannelInit()
	require.NotNil(t, init.Ordered)
	require.True(t, *init.Ordered)
	require.NotNil(t, init.MaxRetransmits)
	require.EqualValues(t, maxRetransmits, *init.MaxRetransmits)
}

func TestCleanupBeforeInitialize(t *testing.T) {
	m := NewManager(Config{}, nil)
	m.Cleanup()
	m.Cleanup()
}

func TestCollectStatsFiltersRemoteInbound(t *testing.T) {
	report := webrtc.StatsReport{
		"a": webrtc.RemoteInboundRTPStreamStats{PacketsLost: 7, Jitter: 0.02, RoundTripTime: 0.15},
		"b": webrtc.ICECandidateStats{},
	}
	stats := collectStats(report)
	require.Len(t, stats, 1)
	require.EqualValues(t, 7, stats[0].PacketsLost)
	require.Equal(t, 0.02, stats[0].Jitter)
	require.Equal(t, 0.15, stats[0].RoundTripTime)
}
