package srtp

import (
	errors "golang.org/x/xerrors"
)

const (
	// Default SRTP key management parameters.
	// See https://tools.ietf.org/html/rfc3711#section-8.2
	EncKeyLength  = 16 // n_e = 128 bits
	AuthKeyLength = 20 // n_a = 160 bits
	SaltLength    = 14 // n_s = 112 bits
	AuthTagLength = 10 // n_tag = 80 bits

	MasterKeyLength  = 16
	MasterSaltLength = 14
)

// Keys is the session key material for one direction.
type Keys struct {
	Enc  []byte
	Auth []byte
	Salt []byte
}

func (k Keys) validate() error {
	if len(k.Enc) != EncKeyLength {
		return errors.Errorf("encryption key is %d bytes: %w", len(k.Enc), ErrInvalidValue)
	}
	if len(k.Auth) != AuthKeyLength {
		return errors.Errorf("auth key is %d bytes: %w", len(k.Auth), ErrInvalidValue)
	}
	if len(k.Salt) != SaltLength {
		return errors.Errorf("salt is %d bytes: %w", len(k.Salt), ErrInvalidValue)
	}
	return nil
}

// KeyContext holds the session keys for both directions. Local keys protect
// outgoing packets; remote keys authenticate and decrypt incoming ones.
type KeyContext struct {
	Local  Keys
	Remote Keys
}

func (c KeyContext) Validate() error {
	if err := c.Local.validate(); err != nil {
		return errors.Errorf("local: %w", err)
	}
	if err := c.Remote.validate(); err != nil {
		return errors.Errorf("remote: %w", err)
	}
	return nil
}

// MasterKeys is the master key material handed over by the key exchange.
type MasterKeys struct {
	LocalKey   []byte
	LocalSalt  []byte
	RemoteKey  []byte
	RemoteSalt []byte
}

func (m MasterKeys) validate() error {
	if len(m.LocalKey) != MasterKeyLength || len(m.RemoteKey) != MasterKeyLength {
		return errors.Errorf("master key must be %d bytes: %w", MasterKeyLength, ErrInvalidValue)
	}
	if len(m.LocalSalt) != MasterSaltLength || len(m.RemoteSalt) != MasterSaltLength {
		return errors.Errorf("master salt must be %d bytes: %w", MasterSaltLength, ErrInvalidValue)
	}
	return nil
}

// Key derivation labels.
// See https://tools.ietf.org/html/rfc3711#section-4.3.1
const (
	labelSRTPEncryption  = 0x00
	labelSRTPAuth        = 0x01
	labelSRTPSalt        = 0x02
	labelSRTCPEncryption = 0x03
	labelSRTCPAuth       = 0x04
	labelSRTCPSalt       = 0x05
)

// DeriveKeyContexts expands master keys into the SRTP and SRTCP session keys
// for both directions, with a key derivation rate of zero.
func DeriveKeyContexts(m MasterKeys) (rtp, rtcp KeyContext, err error) {
	if err = m.validate(); err != nil {
		return
	}
	derive := func(key, salt []byte, enc, auth, s byte) Keys {
		return Keys{
			Enc:  deriveKey(key, salt, 0, enc, EncKeyLength),
			Auth: deriveKey(key, salt, 0, auth, AuthKeyLength),
			Salt: deriveKey(key, salt, 0, s, SaltLength),
		}
	}
	rtp = KeyContext{
		Local:  derive(m.LocalKey, m.LocalSalt, labelSRTPEncryption, labelSRTPAuth, labelSRTPSalt),
		Remote: derive(m.RemoteKey, m.RemoteSalt, labelSRTPEncryption, labelSRTPAuth, labelSRTPSalt),
	}
	rtcp = KeyContext{
		Local:  derive(m.LocalKey, m.LocalSalt, labelSRTCPEncryption, labelSRTCPAuth, labelSRTCPSalt),
		Remote: derive(m.RemoteKey, m.RemoteSalt, labelSRTCPEncryption, labelSRTCPAuth, labelSRTCPSalt),
	}
	return
}
