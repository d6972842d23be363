//////////////////////////////////////////////////////////////////////////////
//
// Config contains configuration data for Session
//
// Copyright 2019 Lanikai Labs. All rights reserved.
//
//////////////////////////////////////////////////////////////////////////////

package rxflow

import (
	"time"

	"github.com/lanikai/rxflow/internal/flow"
	"github.com/lanikai/rxflow/internal/srtp"
)

type Config struct {
	// Reception ring budget, in bytes (default: 4 MiB)
	BufferSize int

	// Upper bound on each wait for socket readability (default: 100ms)
	PollTimeout time.Duration

	// Nice value for the receiver thread. Zero leaves it alone.
	Priority int

	// Master key material from the key exchange. Required unless Insecure.
	Keys srtp.MasterKeys

	// Accept plain RTP/RTCP. No SRTP or SRTCP handlers are installed.
	Insecure bool

	// Authenticate but do not encrypt
	NullCipher bool

	// Replay window, in packets (default: 64)
	ReplayWindow int

	// Remote SSRCs whose crypto state is remembered (default: 1024)
	MaxSSRCs int

	// If set, RTP packets with any other payload type are dropped
	PayloadTypes []uint8

	// If set, frames are passed to Hook on the processing goroutine instead
	// of being queued for ReadFrame.
	Hook func(flow.Frame)
}

func (c *Config) flowOptions() flow.Options {
	return flow.Options{
		BufferSize:  c.BufferSize,
		PollTimeout: c.PollTimeout,
		Priority:    c.Priority,
	}
}

func (c *Config) srtpConfig() srtp.Config {
	return srtp.Config{
		NullCipher:   c.NullCipher,
		ReplayWindow: c.ReplayWindow,
		MaxSSRCs:     c.MaxSSRCs,
	}
}
