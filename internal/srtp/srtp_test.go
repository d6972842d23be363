package srtp

import (
	"bytes"
	"encoding/hex"
	"os"
	"strings"
	"testing"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanikai/rxflow/internal/flow"
	"github.com/lanikai/rxflow/internal/logging"
)

var (
	keyA  = []byte("TopSecret128bits")
	saltA = []byte("SodiumChloride")
	keyB  = []byte("AnotherKey128bit")
	saltB = []byte("PotassiumSalts")
)

// Key contexts for two peers: whatever a protects, b can unprotect.
func peerKeys(t *testing.T) (a, b struct{ rtp, rtcp KeyContext }) {
	var err error
	a.rtp, a.rtcp, err = DeriveKeyContexts(MasterKeys{
		LocalKey: keyA, LocalSalt: saltA, RemoteKey: keyB, RemoteSalt: saltB,
	})
	require.NoError(t, err)
	b.rtp, b.rtcp, err = DeriveKeyContexts(MasterKeys{
		LocalKey: keyB, LocalSalt: saltB, RemoteKey: keyA, RemoteSalt: saltA,
	})
	require.NoError(t, err)
	return
}

func srtpPair(t *testing.T, cfg Config) (sender, receiver *SRTP) {
	a, b := peerKeys(t)
	sender, err := NewSRTP(a.rtp, cfg)
	require.NoError(t, err)
	receiver, err = NewSRTP(b.rtp, cfg)
	require.NoError(t, err)
	return sender, receiver
}

func srtcpPair(t *testing.T, senderCfg, receiverCfg Config) (sender, receiver *SRTCP) {
	a, b := peerKeys(t)
	sender, err := NewSRTCP(a.rtcp, senderCfg)
	require.NoError(t, err)
	receiver, err = NewSRTCP(b.rtcp, receiverCfg)
	require.NoError(t, err)
	return sender, receiver
}

func rtpPacket(t *testing.T, ssrc uint32, seq uint16, payload []byte) []byte {
	p := rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			PayloadType:    96,
			SequenceNumber: seq,
			Timestamp:      55555555,
			SSRC:           ssrc,
		},
		Payload: payload,
	}
	buf, err := p.Marshal()
	require.NoError(t, err)
	return buf
}

func checkHex(value []byte, expectedHex string) bool {
	return hex.EncodeToString(value) == strings.ToLower(expectedHex)
}

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// AES-CM Test Vectors: https://tools.ietf.org/html/rfc3711#appendix-B.2
func TestAESCounterMode(t *testing.T) {
	d, err := newDirection(Keys{
		Enc:  mustHex("2B7E151628AED2A6ABF7158809CF4F3C"),
		Auth: make([]byte, AuthKeyLength),
		Salt: mustHex("F0F1F2F3F4F5F6F7F8F9FAFBFCFD"),
	})
	require.NoError(t, err)

	// Encrypt a block of zeros to get the keystream.
	keystream := make([]byte, 1044512)
	d.xorKeyStream(keystream, 0, 0)

	assert.True(t, checkHex(keystream[0:48],
		"E03EAD0935C95E80E166B16DD92B4EB4"+
			"D23513162B02D0F72A43A2FE4A5F97AB"+
			"41E95B3BB0A2E8DD477901E4FCA894C0"), "keystream start: %02X", keystream[0:48])
	assert.True(t, checkHex(keystream[len(keystream)-48:],
		"EC8CDF7398607CB0F2D21675EA9EA1E4"+
			"362B7C3C6773516318A077D7FC5073AE"+
			"6A2CC3787889374FBEB4C81B17BA6C44"), "keystream end: %02X", keystream[len(keystream)-48:])
}

// Key Derivation Test Vectors: https://tools.ietf.org/html/rfc3711#appendix-B.3
func TestDeriveKey(t *testing.T) {
	masterKey := mustHex("E1F97A0D3E018BE0D64FA32C06DE4139")
	masterSalt := mustHex("0EC675AD498AFEEBB6960B3AABE6")

	key := deriveKey(masterKey, masterSalt, 0, labelSRTPEncryption, 16)
	assert.True(t, checkHex(key, "C61E7A93744F39EE10734AFE3FF7A087"), "derived key: %02X", key)

	salt := deriveKey(masterKey, masterSalt, 0, labelSRTPSalt, 14)
	assert.True(t, checkHex(salt, "30CBBC08863D8C85D49DB34A9AE1"), "derived salt: %02X", salt)

	authKey := deriveKey(masterKey, masterSalt, 0, labelSRTPAuth, 94)
	assert.True(t, checkHex(authKey,
		"CEBE321F6FF7716B6FD4AB49AF256A15"+
			"6D38BAA48F0A0ACF3C34E2359E6CDBCE"+
			"E049646C43D9327AD175578EF7227098"+
			"6371C10C9A369AC2F94A8C5FBCDDDC25"+
			"6D6E919A48B610EF17C2041E47403576"+
			"6B68642C59BBFC2F34DB60DBDFB2"), "derived auth key: %02X", authKey)
}

func TestEncryptKnownCiphertext(t *testing.T) {
	masterKey := mustHex("E1F97A0D3E018BE0D64FA32C06DE4139")
	masterSalt := mustHex("0EC675AD498AFEEBB6960B3AABE6")
	keys, _, err := DeriveKeyContexts(MasterKeys{
		LocalKey: masterKey, LocalSalt: masterSalt, RemoteKey: masterKey, RemoteSalt: masterSalt,
	})
	require.NoError(t, err)
	s, err := NewSRTP(keys, Config{})
	require.NoError(t, err)

	payload := []byte{
		0x00, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07,
		0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f,
	}
	s.Encrypt(12345678, 1, payload)
	assert.Equal(t, []byte{
		0x7c, 0x64, 0x06, 0x03, 0xe8, 0x1d, 0x44, 0x0d,
		0xf2, 0x3d, 0xdb, 0xe5, 0xb0, 0x7f, 0x88, 0x7a,
	}, payload)
}

func TestKeyValidation(t *testing.T) {
	_, _, err := DeriveKeyContexts(MasterKeys{LocalKey: keyA[:8], LocalSalt: saltA, RemoteKey: keyB, RemoteSalt: saltB})
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = NewSRTP(KeyContext{}, Config{})
	assert.ErrorIs(t, err, ErrInvalidValue)

	a, _ := peerKeys(t)
	a.rtp.Remote.Salt = a.rtp.Remote.Salt[:4]
	err = a.rtp.Validate()
	assert.ErrorIs(t, err, ErrInvalidValue)
	assert.Contains(t, err.Error(), "remote")
	_, err = NewSRTCP(a.rtp, Config{})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestRoundTripAllLengths(t *testing.T) {
	sender, receiver := srtpPair(t, Config{})

	maxPayload := flow.RecvMax - rtpHeaderLength - AuthTagLength
	lengths := []int{0, 1, 15, 16, 17, 100, 1200, 1500, 32767, maxPayload}

	for i, n := range lengths {
		payload := make([]byte, n)
		for j := range payload {
			payload[j] = byte(j*7 + i)
		}
		plain := rtpPacket(t, 0x1337d00d, uint16(1000+i), payload)

		protected, err := sender.Protect(plain)
		require.NoError(t, err)
		require.Len(t, protected, len(plain)+AuthTagLength)
		assert.Len(t, protected, rtpHeaderLength+n+AuthTagLength)
		if n >= 16 {
			assert.NotEqual(t, payload, protected[rtpHeaderLength:rtpHeaderLength+n], "payload of %d bytes not encrypted", n)
		}

		out, err := receiver.Unprotect(protected)
		require.NoError(t, err, "payload of %d bytes", n)
		assert.True(t, bytes.Equal(plain, out), "payload of %d bytes did not survive", n)
	}
	assert.EqualValues(t, len(lengths), receiver.Stats().Verified)
}

func TestEncryptDecryptPrimitives(t *testing.T) {
	sender, receiver := srtpPair(t, Config{})
	const ssrc, seq = 0xcafe, 77

	plain := rtpPacket(t, ssrc, seq, []byte("abcdefghijklmnopqrstuvwxyz"))
	pkt := append(append([]byte(nil), plain...), make([]byte, AuthTagLength)...)

	sender.Encrypt(ssrc, seq, pkt[rtpHeaderLength:len(plain)])
	require.NoError(t, sender.AddAuthTag(pkt))

	require.NoError(t, receiver.VerifyAuthTag(pkt))
	require.NoError(t, receiver.Decrypt(ssrc, seq, pkt))
	assert.Equal(t, plain, pkt[:len(plain)])
}

func TestEveryBitFlipFailsAuthentication(t *testing.T) {
	sender, receiver := srtpPair(t, Config{})
	protected, err := sender.Protect(rtpPacket(t, 0x1337d00d, 4242, []byte("the quick brown fox jumps")))
	require.NoError(t, err)

	for i := 0; i < len(protected)*8; i++ {
		mutated := append([]byte(nil), protected...)
		mutated[i/8] ^= 1 << (i % 8)
		assert.ErrorIs(t, receiver.VerifyAuthTag(mutated), ErrAuthTagMismatch, "bit %d", i)
	}
	assert.EqualValues(t, len(protected)*8, receiver.Stats().AuthFailures)

	// Failed packets leave no state behind; the genuine one still passes.
	assert.Equal(t, 0, receiver.state.len())
	assert.NoError(t, receiver.VerifyAuthTag(protected))
}

func TestReplayDetected(t *testing.T) {
	sender, receiver := srtpPair(t, Config{})

	var packets [][]byte
	for seq := uint16(1); seq <= 100; seq++ {
		p, err := sender.Protect(rtpPacket(t, 7, seq, []byte("payload")))
		require.NoError(t, err)
		packets = append(packets, p)
	}
	clone := func(i int) []byte { return append([]byte(nil), packets[i]...) }

	// Out of order within the window is fine.
	for _, i := range []int{9, 11, 10} {
		require.NoError(t, receiver.VerifyAuthTag(clone(i)))
	}
	assert.ErrorIs(t, receiver.VerifyAuthTag(clone(10)), ErrReplayDetected)

	for i := 12; i < len(packets); i++ {
		require.NoError(t, receiver.VerifyAuthTag(clone(i)))
	}
	// Too old for the window, never seen.
	assert.ErrorIs(t, receiver.VerifyAuthTag(clone(0)), ErrReplayDetected)
	// Still within the window, never seen.
	assert.NoError(t, receiver.VerifyAuthTag(clone(50)))
	assert.ErrorIs(t, receiver.VerifyAuthTag(clone(50)), ErrReplayDetected)

	assert.EqualValues(t, 3, receiver.Stats().Replays)
}

func TestRolloverAcrossSequenceWrap(t *testing.T) {
	sender, receiver := srtpPair(t, Config{})
	for _, seq := range []uint16{65533, 65534, 65535, 0, 1, 2} {
		plain := rtpPacket(t, 99, seq, []byte("wrap"))
		protected, err := sender.Protect(plain)
		require.NoError(t, err)
		out, err := receiver.Unprotect(protected)
		require.NoError(t, err, "seq %d", seq)
		assert.Equal(t, plain, out)
	}
	assert.EqualValues(t, 1, sender.RolloverCounter())
}

func TestRemoteRolloverCounter(t *testing.T) {
	sender, receiver := srtpPair(t, Config{})
	sender.SetRolloverCounter(3)

	protected, err := sender.Protect(rtpPacket(t, 5, 10, []byte("late joiner")))
	require.NoError(t, err)

	assert.ErrorIs(t, receiver.VerifyAuthTag(append([]byte(nil), protected...)), ErrAuthTagMismatch)
	receiver.SetRemoteRolloverCounter(3)
	_, err = receiver.Unprotect(protected)
	assert.NoError(t, err)
}

func TestEstimateROC(t *testing.T) {
	cases := []struct {
		roc          uint32
		highest, seq uint16
		want         uint32
	}{
		{0, 100, 200, 0},
		{0, 65530, 5, 1},
		{1, 3, 65533, 0},
		{0, 3, 65533, 0},
		{2, 40000, 39000, 2},
		{2, 40000, 1000, 3},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, estimateROC(c.roc, c.highest, c.seq), "roc=%d s_l=%d seq=%d", c.roc, c.highest, c.seq)
	}
}

func TestNullCipher(t *testing.T) {
	sender, receiver := srtpPair(t, Config{NullCipher: true})
	plain := rtpPacket(t, 1, 1, []byte("in the clear"))

	protected, err := sender.Protect(plain)
	require.NoError(t, err)
	assert.Equal(t, plain, protected[:len(plain)])

	protected[len(protected)-1] ^= 0x80
	_, err = receiver.Unprotect(append([]byte(nil), protected...))
	assert.ErrorIs(t, err, ErrAuthTagMismatch)

	protected[len(protected)-1] ^= 0x80
	out, err := receiver.Unprotect(protected)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestStateBoundedBySSRCs(t *testing.T) {
	sender, receiver := srtpPair(t, Config{MaxSSRCs: 2})
	for ssrc := uint32(1); ssrc <= 3; ssrc++ {
		p, err := sender.Protect(rtpPacket(t, ssrc, 1, []byte("x")))
		require.NoError(t, err)
		err = receiver.VerifyAuthTag(p)
		if ssrc <= 2 {
			require.NoError(t, err)
		} else {
			assert.ErrorIs(t, err, ErrTooManySSRCs)
		}
	}
	assert.Equal(t, 2, receiver.state.len())
	assert.Equal(t, uint64(1), receiver.Stats().Refused)
}

func TestFullStateStillDetectsReplays(t *testing.T) {
	sender, receiver := srtpPair(t, Config{MaxSSRCs: 1})

	a, err := sender.Protect(rtpPacket(t, 0xa, 10, []byte("first")))
	require.NoError(t, err)
	b, err := sender.Protect(rtpPacket(t, 0xb, 20, []byte("second")))
	require.NoError(t, err)

	require.NoError(t, receiver.VerifyAuthTag(append([]byte(nil), a...)))
	assert.ErrorIs(t, receiver.VerifyAuthTag(b), ErrTooManySSRCs)
	assert.ErrorIs(t, receiver.VerifyAuthTag(a), ErrReplayDetected)

	// SRTCP shares the same bound.
	rtcpSender, rtcpReceiver := srtcpPair(t, Config{}, Config{MaxSSRCs: 1})
	rr := receiverReport(t)
	p, err := rtcpSender.Protect(rr)
	require.NoError(t, err)
	require.NoError(t, rtcpReceiver.VerifyAuthTag(append([]byte(nil), p...)))
	assert.ErrorIs(t, rtcpReceiver.VerifyAuthTag(p), ErrReplayDetected)

	other := append([]byte(nil), rr...)
	other[4] ^= 0xff
	p, err = rtcpSender.Protect(other)
	require.NoError(t, err)
	assert.ErrorIs(t, rtcpReceiver.VerifyAuthTag(p), ErrTooManySSRCs)
}

func TestShortPackets(t *testing.T) {
	sender, receiver := srtpPair(t, Config{})
	assert.ErrorIs(t, sender.AddAuthTag(make([]byte, 5)), ErrInvalidValue)
	assert.ErrorIs(t, receiver.VerifyAuthTag(make([]byte, rtpHeaderLength)), ErrInvalidValue)
	assert.ErrorIs(t, receiver.Decrypt(0, 0, make([]byte, 3)), ErrInvalidValue)
	_, err := sender.Protect([]byte{0x80})
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func receiverReport(t *testing.T) []byte {
	rr := rtcp.ReceiverReport{
		SSRC: 0x1234,
		Reports: []rtcp.ReceptionReport{{
			SSRC:               0x5678,
			FractionLost:       12,
			TotalLost:          3,
			LastSequenceNumber: 1000,
			Jitter:             42,
		}},
	}
	buf, err := rr.Marshal()
	require.NoError(t, err)
	return buf
}

func TestSRTCPRoundTrip(t *testing.T) {
	sender, receiver := srtcpPair(t, Config{}, Config{})
	plain := receiverReport(t)

	protected, err := sender.Protect(plain)
	require.NoError(t, err)
	require.Len(t, protected, len(plain)+srtcpTrail)
	assert.Equal(t, plain[:rtcpHeaderLength], protected[:rtcpHeaderLength])
	assert.NotEqual(t, plain[rtcpHeaderLength:], protected[rtcpHeaderLength:len(plain)])
	encrypted, index := trailer(protected)
	assert.True(t, encrypted)
	assert.EqualValues(t, 0, index)

	replay := append([]byte(nil), protected...)
	out, err := receiver.Unprotect(protected)
	require.NoError(t, err)
	assert.Equal(t, plain, out)

	assert.ErrorIs(t, receiver.VerifyAuthTag(replay), ErrReplayDetected)

	// The index advances per packet.
	next, err := sender.Protect(plain)
	require.NoError(t, err)
	_, index = trailer(next)
	assert.EqualValues(t, 1, index)
	_, err = receiver.Unprotect(next)
	assert.NoError(t, err)
}

func TestSRTCPIndexWrapNeedsRekey(t *testing.T) {
	var out bytes.Buffer
	logging.DefaultLogger.SetDestination(&out)
	defer logging.DefaultLogger.SetDestination(os.Stderr)

	sender, receiver := srtcpPair(t, Config{}, Config{})
	sender.index = indexWarn

	p, err := sender.Protect(receiverReport(t))
	require.NoError(t, err)
	_, err = receiver.Unprotect(p)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "rekey required")

	sender.index = indexMask
	last, err := sender.Protect(receiverReport(t))
	require.NoError(t, err)
	wrapped, err := sender.Protect(receiverReport(t))
	require.NoError(t, err)
	assert.Contains(t, out.String(), "wrapped")

	_, index := trailer(last)
	assert.EqualValues(t, indexMask, index)
	_, index = trailer(wrapped)
	assert.EqualValues(t, 0, index)

	_, err = receiver.Unprotect(last)
	require.NoError(t, err)
	_, err = receiver.Unprotect(wrapped)
	assert.ErrorIs(t, err, ErrReplayDetected)
}

func TestSRTCPUnencrypted(t *testing.T) {
	sender, receiver := srtcpPair(t, Config{NullCipher: true}, Config{})
	plain := receiverReport(t)

	protected, err := sender.Protect(plain)
	require.NoError(t, err)
	encrypted, _ := trailer(protected)
	assert.False(t, encrypted)
	assert.Equal(t, plain, protected[:len(plain)])

	out, err := receiver.Unprotect(protected)
	require.NoError(t, err)
	assert.Equal(t, plain, out)
}

func TestSRTCPBitFlip(t *testing.T) {
	sender, receiver := srtcpPair(t, Config{}, Config{})
	protected, err := sender.Protect(receiverReport(t))
	require.NoError(t, err)

	for i := 0; i < len(protected)*8; i++ {
		mutated := append([]byte(nil), protected...)
		mutated[i/8] ^= 1 << (i % 8)
		assert.ErrorIs(t, receiver.VerifyAuthTag(mutated), ErrAuthTagMismatch, "bit %d", i)
	}
}

func TestReplayWindow(t *testing.T) {
	w := newReplayWindow(64)
	assert.False(t, w.seen(0))
	w.accept(100)
	assert.True(t, w.seen(100))
	assert.False(t, w.seen(99))
	assert.False(t, w.seen(37))
	assert.True(t, w.seen(36))
	assert.False(t, w.seen(101))

	w.accept(99)
	assert.True(t, w.seen(99))

	w.accept(1000)
	assert.True(t, w.seen(100))
	assert.False(t, w.seen(999))
	assert.True(t, w.seen(1000))

	wide := newReplayWindow(256)
	wide.accept(300)
	assert.False(t, wide.seen(100))
	assert.True(t, wide.seen(44))
}

func TestHandlers(t *testing.T) {
	a, b := peerKeys(t)
	sendRTP, err := NewSRTP(a.rtp, Config{})
	require.NoError(t, err)
	recvRTP, err := NewSRTP(b.rtp, Config{})
	require.NoError(t, err)
	sendRTCP, err := NewSRTCP(a.rtcp, Config{})
	require.NoError(t, err)
	recvRTCP, err := NewSRTCP(b.rtcp, Config{})
	require.NoError(t, err)

	plainRTP := rtpPacket(t, 3, 30, []byte("media"))
	protectedRTP, err := sendRTP.Protect(plainRTP)
	require.NoError(t, err)
	plainRTCP := receiverReport(t)
	protectedRTCP, err := sendRTCP.Protect(plainRTCP)
	require.NoError(t, err)

	var frame flow.Frame

	d := flow.Datagram{Data: append([]byte(nil), protectedRTCP...)}
	assert.Equal(t, flow.NotHandled, recvRTP.HandlePacket(&d, &frame))
	assert.Equal(t, flow.OK, recvRTCP.HandlePacket(&d, &frame))
	assert.Equal(t, plainRTCP, d.Data)

	d = flow.Datagram{Data: append([]byte(nil), protectedRTP...)}
	assert.Equal(t, flow.NotHandled, recvRTCP.HandlePacket(&d, &frame))
	assert.Equal(t, flow.OK, recvRTP.HandlePacket(&d, &frame))
	assert.Equal(t, plainRTP, d.Data)
	assert.Nil(t, frame)

	// Replayed and corrupted packets abandon the slot.
	d = flow.Datagram{Data: append([]byte(nil), protectedRTP...)}
	assert.Equal(t, flow.GenericError, recvRTP.HandlePacket(&d, &frame))
	d = flow.Datagram{Data: []byte{0x80, 0x60}}
	assert.Equal(t, flow.GenericError, recvRTP.HandlePacket(&d, &frame))
}
