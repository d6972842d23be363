package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha1"
	"crypto/subtle"
	"hash"
	"sync"
	"sync/atomic"

	errors "golang.org/x/xerrors"
)

const (
	DefaultReplayWindow = 64
	MaxReplayWindow     = 1024
	DefaultMaxSSRCs     = 1024
)

// Config tunes a transform. The zero value is usable.
type Config struct {
	// Skip encryption and decryption. Authentication still applies.
	NullCipher bool

	// Replay window size in packets, rounded up to a multiple of 64 and
	// capped at MaxReplayWindow. Defaults to DefaultReplayWindow.
	ReplayWindow int

	// Upper bound on the number of remote SSRCs whose rollover counter and
	// replay window are remembered. State is never forgotten, so packets from
	// further SSRCs are refused. Defaults to DefaultMaxSSRCs.
	MaxSSRCs int
}

func (c Config) withDefaults() Config {
	if c.ReplayWindow <= 0 {
		c.ReplayWindow = DefaultReplayWindow
	}
	if c.ReplayWindow > MaxReplayWindow {
		c.ReplayWindow = MaxReplayWindow
	}
	c.ReplayWindow = (c.ReplayWindow + 63) &^ 63
	if c.MaxSSRCs <= 0 {
		c.MaxSSRCs = DefaultMaxSSRCs
	}
	return c
}

// Stats counts packets rejected on the receive side.
type Stats struct {
	Verified     uint64
	AuthFailures uint64
	Replays      uint64
	Refused      uint64 // authentic, but from an SSRC beyond MaxSSRCs
}

type counters struct {
	verified, authFailures, replays, refused atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Verified:     c.verified.Load(),
		AuthFailures: c.authFailures.Load(),
		Replays:      c.replays.Load(),
		Refused:      c.refused.Load(),
	}
}

// direction holds the ciphers derived from one side's session keys.
type direction struct {
	block cipher.Block
	salt  []byte

	// Reusable HMAC-SHA1 instances, to reduce heap allocations.
	macs sync.Pool
}

func newDirection(k Keys) (*direction, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(k.Enc)
	if err != nil {
		return nil, err
	}
	authKey := append([]byte(nil), k.Auth...)
	d := &direction{
		block: block,
		salt:  append([]byte(nil), k.Salt...),
	}
	d.macs.New = func() interface{} {
		return hmac.New(sha1.New, authKey)
	}
	return d, nil
}

// AES in counter mode (the default encryption transform for SRTP), applied
// in place.
// See https://tools.ietf.org/html/rfc3711#section-4.1.1
func (d *direction) xorKeyStream(payload []byte, ssrc uint32, index uint64) {
	//   IV = (k_s * 2^16) XOR (SSRC * 2^64) XOR (i * 2^16)
	// Pictorally:
	//   xxxxxxxxxxxxxx00  <- salt (112 bits = 14 bytes)
	//   0000xxxx00000000  <- SSRC (32 bits = 4 bytes)
	//   00000000xxxxxx00  <- index (48 bits = 6 bytes)
	var iv [aes.BlockSize]byte
	copy(iv[:], d.salt)
	xor32(iv[4:], ssrc)
	xor64(iv[6:], trunc(index, 48))

	cipher.NewCTR(d.block, iv[:]).XORKeyStream(payload, payload)
}

// HMAC-SHA1 over the concatenation of parts, truncated to AuthTagLength.
// See https://tools.ietf.org/html/rfc3711#section-4.2
func (d *direction) tag(dst []byte, parts ...[]byte) []byte {
	mac := d.macs.Get().(hash.Hash)
	for _, p := range parts {
		mac.Write(p)
	}
	var sum [sha1.Size]byte
	dst = append(dst, mac.Sum(sum[:0])[:AuthTagLength]...)

	mac.Reset()
	d.macs.Put(mac)
	return dst
}

// base is shared by the SRTP and SRTCP transforms.
type base struct {
	cfg    Config
	local  *direction
	remote *direction
	state  *stateCache
	stats  counters
}

func newBase(keys KeyContext, cfg Config) (*base, error) {
	if err := keys.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	local, err := newDirection(keys.Local)
	if err != nil {
		return nil, err
	}
	remote, err := newDirection(keys.Remote)
	if err != nil {
		return nil, err
	}
	return &base{
		cfg:    cfg,
		local:  local,
		remote: remote,
		state:  newStateCache(cfg.MaxSSRCs, cfg.ReplayWindow),
	}, nil
}

// Compare the trailing tag of pkt against the expected one in constant time.
func (b *base) checkTag(pkt []byte, expected []byte) error {
	received := pkt[len(pkt)-AuthTagLength:]
	if subtle.ConstantTimeCompare(received, expected) != 1 {
		b.stats.authFailures.Add(1)
		return ErrAuthTagMismatch
	}
	return nil
}

// Count a state update that was refused for a new SSRC.
func (b *base) countRefused(err error) error {
	if errors.Is(err, ErrTooManySSRCs) {
		b.stats.refused.Add(1)
	}
	return err
}

func (b *base) Stats() Stats {
	return b.stats.snapshot()
}
