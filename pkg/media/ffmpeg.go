package media

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/labstack/gommon/log"
)

// Target audio bitrate for both transmission and recording.
const TargetBitrate = 128_000

// ffmpegEncoder encodes PCM through an ffmpeg subprocess: s16le on
// stdin, the negotiated container on stdout.
type ffmpegEncoder struct{}

func NewFFmpegEncoder() (Encoder, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaNotSupported, err)
	}
	return &ffmpegEncoder{}, nil
}

func containerFormat(mimeType string) string {
	switch mimeType {
	case MimeWebMOpus, MimeWebM:
		return "webm"
	case MimeOggOpus, MimeOgg:
		return "ogg"
	}
	return ""
}

func (e *ffmpegEncoder) Supports(mimeType string) bool {
	return containerFormat(mimeType) != ""
}

func (e *ffmpegEncoder) Start(ctx context.Context, mimeType string, c Constraints) (Session, error) {
	format := containerFormat(mimeType)
	if format == "" {
		return nil, ErrMediaNotSupported
	}

	// flush_packets keeps the muxer emitting segments at real-time
	// cadence instead of buffering the whole stream.
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(c.SampleRate),
		"-ac", strconv.Itoa(c.Channels),
		"-i", "pipe:0",
		"-c:a", "libopus",
		"-b:a", strconv.Itoa(TargetBitrate),
		"-flush_packets", "1",
		"-f", format,
		"pipe:1",
	)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err = cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMediaNotSupported, err)
	}

	s := &ffmpegSession{
		cmd:      cmd,
		stdin:    stdin,
		segments: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go s.read(stdout)
	return s, nil
}

type ffmpegSession struct {
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	segments chan []byte
	done     chan struct{}
}

func (s *ffmpegSession) read(stdout io.Reader) {
	defer func() {
		close(s.segments)
		close(s.done)
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			s.segments <- append([]byte(nil), buf[:n]...)
		}
		if err != nil {
			if err != io.EOF {
				log.Debugf("encoder output ended | error: %v", err)
			}
			return
		}
	}
}

func (s *ffmpegSession) Write(frame []int16) error {
	buf := make([]byte, len(frame)*2)
	for i, v := range frame {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(v))
	}
	_, err := s.stdin.Write(buf)
	return err
}

func (s *ffmpegSession) Segments() <-chan []byte { return s.segments }

// Stop closes the encoder input and waits for the final segments to be
// flushed, or for ctx to expire.
func (s *ffmpegSession) Stop(ctx context.Context) error {
	if err := s.stdin.Close(); err != nil {
		log.Debugf("cannot close encoder input | error: %v", err)
	}

	select {
	case <-s.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return s.cmd.Wait()
}
