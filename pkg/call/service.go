package call

import (
	"context"
	"io"

	"github.com/commune-app/callengine/pkg/store"
)

// Service is the call control surface exposed to transports.
type Service interface {
	StartCall(ctx context.Context) (*store.Call, error)
	JoinCall(ctx context.Context, callID string) error
	LeaveCall(ctx context.Context) error
	EndCall(ctx context.Context) error

	SendMessage(ctx context.Context, content string) error
	UploadFile(ctx context.Context, name string, body io.Reader) (*store.FileRef, error)
	Messages(ctx context.Context) ([]store.Message, error)

	State() State
	CallID() string
	Cleanup()
}

var _ Service = (*Orchestrator)(nil)
