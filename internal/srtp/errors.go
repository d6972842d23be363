package srtp

import (
	errors "golang.org/x/xerrors"
)

var (
	// Bad key lengths, or a buffer too short to carry the fields being
	// processed.
	ErrInvalidValue = errors.New("srtp: invalid value")

	// The received authentication tag does not match the one computed with
	// the remote key. The packet must be discarded.
	ErrAuthTagMismatch = errors.New("srtp: authentication tag mismatch")

	// The packet authenticated, but its index was already seen or has fallen
	// behind the replay window.
	ErrReplayDetected = errors.New("srtp: replay detected")

	// The packet authenticated, but it comes from a new SSRC and state is
	// already held for the maximum number of remote SSRCs.
	ErrTooManySSRCs = errors.New("srtp: too many remote SSRCs")
)
