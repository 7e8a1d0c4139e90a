package upload

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRecordingKey(t *testing.T) {
	ts := time.UnixMilli(1700000000000)
	key := RecordingKey("club", "call1", ts)
	require.Equal(t, "club/call1/recording-1700000000000.webm", key)
}

func TestFileKey(t *testing.T) {
	key := FileKey("club", "call1", "notes.pdf")
	require.Equal(t, "club/call1/files/notes.pdf", key)
}

func TestNewS3UploaderRequiresBucket(t *testing.T) {
	_, err := NewS3Uploader(context.Background(), S3Config{Region: "ap-southeast-2"})
	require.ErrorIs(t, err, ErrEmptyS3BucketName)
}
