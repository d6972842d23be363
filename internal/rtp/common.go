// Package rtp turns decrypted datagrams into RTP and RTCP frames. The
// handlers here are meant to be installed on a flow after the SRTP and SRTCP
// handlers.
package rtp

import (
	"encoding/binary"

	errors "golang.org/x/xerrors"

	"github.com/lanikai/rxflow/internal/logging"
)

var log = logging.DefaultLogger.WithTag("rtp")

// RFC 3550 defines RTP version 2.
const rtpVersion = 2

// ErrMalformed is wrapped by all parse failures.
var ErrMalformed = errors.New("malformed RTP/RTCP packet")

// IdentifyPacket demultiplexes RTP and RTCP sharing one port, and returns the
// SSRC of the sender. See https://tools.ietf.org/html/rfc5761#section-4.
func IdentifyPacket(buf []byte) (rtcp bool, ssrc uint32, err error) {
	if len(buf) < 8 {
		err = errors.Errorf("%d byte packet: %w", len(buf), ErrMalformed)
		return
	}
	if v := buf[0] >> 6; v != rtpVersion {
		err = errors.Errorf("version %d: %w", v, ErrMalformed)
		return
	}
	packetType := buf[1]
	if 192 <= packetType && packetType <= 223 {
		rtcp = true
		ssrc = binary.BigEndian.Uint32(buf[4:8])
	} else {
		if len(buf) < 12 {
			err = errors.Errorf("%d byte RTP packet: %w", len(buf), ErrMalformed)
			return
		}
		ssrc = binary.BigEndian.Uint32(buf[8:12])
	}
	return
}
