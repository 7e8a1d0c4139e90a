// Package upload is the blob-store boundary for recordings and shared
// files.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var ErrUpload = errors.New("blob upload failed")

type Uploader interface {
	// Key is a unique identifier for the blob. Upload returns the
	// public URL of the stored object.
	Upload(ctx context.Context, key string, body io.Reader) (string, error)
}

// RecordingKey is the blob path for a call recording.
func RecordingKey(scope, callID string, ts time.Time) string {
	return fmt.Sprintf("%s/%s/recording-%d.webm", scope, callID, ts.UnixMilli())
}

// FileKey is the blob path for a file shared during a call.
func FileKey(scope, callID, name string) string {
	return fmt.Sprintf("%s/%s/files/%s", scope, callID, name)
}
