package main

import (
	"context"
	"net"
	"time"

	"github.com/pion/randutil"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	"golang.org/x/net/ipv4"

	"github.com/lanikai/rxflow/internal/socket"
	"github.com/lanikai/rxflow/internal/srtp"
)

const (
	testPayloadType = 96
	reportInterval  = 50
)

// send generates protected test media: RTP packets carrying a counter, with
// an RTCP sender report every reportInterval packets.
func send(ctx context.Context, addr string, keys srtp.MasterKeys) error {
	conn, err := socket.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()

	raddr := conn.Conn().RemoteAddr().(*net.UDPAddr)
	if raddr.IP.To4() != nil {
		if err := ipv4.NewConn(conn.Conn()).SetTOS(flagDSCP << 2); err != nil {
			log.Warn("Cannot set DSCP %d: %v", flagDSCP, err)
		}
	}

	protectRTP := func(b []byte) ([]byte, error) { return b, nil }
	protectRTCP := protectRTP
	if !flagInsecure {
		rtpKeys, rtcpKeys, err := srtp.DeriveKeyContexts(keys)
		if err != nil {
			return err
		}
		cfg := srtp.Config{NullCipher: flagNullCipher}
		s, err := srtp.NewSRTP(rtpKeys, cfg)
		if err != nil {
			return err
		}
		c, err := srtp.NewSRTCP(rtcpKeys, cfg)
		if err != nil {
			return err
		}
		protectRTP, protectRTCP = s.Protect, c.Protect
	}

	rand := randutil.NewMathRandomGenerator()
	ssrc := rand.Uint32()
	seq := uint16(rand.Intn(1 << 15))
	ts := rand.Uint32()
	start := time.Now()
	var octets uint32

	ticker := time.NewTicker(flagInterval)
	defer ticker.Stop()

	log.Info("Sending %d packets to %s as %08x", flagCount, raddr, ssrc)
	for i := 0; i < flagCount; i++ {
		payload := []byte(time.Now().Format(time.RFC3339Nano))
		p := rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         true,
				PayloadType:    testPayloadType,
				SequenceNumber: seq,
				Timestamp:      ts,
				SSRC:           ssrc,
			},
			Payload: payload,
		}
		buf, err := p.Marshal()
		if err != nil {
			return err
		}
		if buf, err = protectRTP(buf); err != nil {
			return errors.Wrap(err, "protect RTP")
		}
		if _, err := conn.Write(buf); err != nil {
			return err
		}
		octets += uint32(len(payload))

		if (i+1)%reportInterval == 0 {
			sr := rtcp.SenderReport{
				SSRC:        ssrc,
				NTPTime:     ntpTime(time.Now()),
				RTPTime:     ts,
				PacketCount: uint32(i + 1),
				OctetCount:  octets,
			}
			buf, err := sr.Marshal()
			if err != nil {
				return err
			}
			if buf, err = protectRTCP(buf); err != nil {
				return errors.Wrap(err, "protect RTCP")
			}
			if _, err := conn.Write(buf); err != nil {
				return err
			}
		}

		seq++
		ts += 90 * uint32(flagInterval/time.Millisecond)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
	log.Info("Sent %d packets in %v", flagCount, time.Since(start).Round(time.Millisecond))
	return nil
}

// NTP timestamp: seconds since 1900 in the upper 32 bits, fraction below.
func ntpTime(t time.Time) uint64 {
	const ntpEpochOffset = 2208988800
	secs := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) << 32 / 1e9
	return secs<<32 | frac
}
