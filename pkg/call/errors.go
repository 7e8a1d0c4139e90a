package call

import "errors"

var (
	// ErrPermission means the caller is neither the scope owner nor an
	// administrator. Checked before any resource is acquired.
	ErrPermission = errors.New("caller may not manage calls")

	ErrNoActiveCall   = errors.New("no active call")
	ErrCallInProgress = errors.New("call operation already in progress")
	ErrCallCompleted  = errors.New("call already completed")
)
