package protocol

import "errors"

var (
	// ErrTransport wraps socket read/write failures and peer disconnects.
	ErrTransport = errors.New("transport error")

	// ErrDecoding is returned when a decrypted message is not valid UTF-8.
	ErrDecoding = errors.New("decoding error")

	// ErrIntegrity is returned when a message digest does not match.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrAuthenticationRejected is the root of every access-denied outcome.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrKeyAssembly is returned when the key halves do not form a 16-byte key.
	ErrKeyAssembly = errors.New("session key assembly failed")

	// ErrFrameTooLarge is returned for frames above the configured limit.
	ErrFrameTooLarge = errors.New("frame too large")

	// ErrEmptyMessage is returned when sending an empty message in single-read framing.
	ErrEmptyMessage = errors.New("empty message")

	// ErrTrailingZero is returned for payloads ending in a zero byte, which
	// cannot be told apart from block padding.
	ErrTrailingZero = errors.New("message ends with a zero byte")
)

// RejectedError carries the reason access was denied.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return "authentication rejected: " + e.Reason
}

func (e *RejectedError) Unwrap() error {
	return ErrAuthenticationRejected
}
