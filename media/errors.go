package media

import "errors"

// ErrorKind names a failure class crossing the command protocol.
type ErrorKind string

const (
	KindInvalidFormat     ErrorKind = "invalid_format"
	KindNoMediaFound      ErrorKind = "no_media_found"
	KindMediaNotReady     ErrorKind = "media_not_ready"
	KindFrameAccessDenied ErrorKind = "frame_access_denied"
	KindInternal          ErrorKind = "internal"
)

var (
	// ErrInvalidFormat is returned for bad user-entered times or durations.
	ErrInvalidFormat = errors.New("invalid format")
	// ErrNoMediaFound means no element resolved after a synchronous attempt.
	ErrNoMediaFound = errors.New("no media found")
	// ErrMediaNotReady means the element never became usable in time.
	ErrMediaNotReady = errors.New("media not ready")
	// ErrFrameAccessDenied means a boundary's content is isolated. It is
	// expected and never surfaced as a command failure.
	ErrFrameAccessDenied = errors.New("frame access denied")
)

// KindOf maps an error to its protocol kind.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidFormat):
		return KindInvalidFormat
	case errors.Is(err, ErrNoMediaFound):
		return KindNoMediaFound
	case errors.Is(err, ErrMediaNotReady):
		return KindMediaNotReady
	case errors.Is(err, ErrFrameAccessDenied):
		return KindFrameAccessDenied
	}
	return KindInternal
}
