package main

import (
	"context"
	"encoding/hex"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pkg/errors"
	flag "github.com/spf13/pflag"

	"github.com/lanikai/rxflow"
	"github.com/lanikai/rxflow/internal/logging"
	"github.com/lanikai/rxflow/internal/relay"
	"github.com/lanikai/rxflow/internal/srtp"
)

var log = logging.DefaultLogger.WithTag("rxflowd")

var (
	flagKey          string
	flagSalt         string
	flagRemoteKey    string
	flagRemoteSalt   string
	flagInsecure     bool
	flagNullCipher   bool
	flagListen       string
	flagBufferSize   int
	flagPriority     int
	flagPayloadTypes []uint
	flagRelay        string
	flagSend         string
	flagCount        int
	flagInterval     time.Duration
	flagDSCP         int
	flagLog          string
	flagHelp         bool
	flagVersion      bool
)

func init() {
	flag.StringVarP(&flagKey, "key", "k", "", "Local SRTP master key (hex)")
	flag.StringVarP(&flagSalt, "salt", "s", "", "Local SRTP master salt (hex)")
	flag.StringVar(&flagRemoteKey, "remote-key", "", "Remote SRTP master key (hex)")
	flag.StringVar(&flagRemoteSalt, "remote-salt", "", "Remote SRTP master salt (hex)")
	flag.BoolVar(&flagInsecure, "insecure", false, "Plain RTP/RTCP")
	flag.BoolVar(&flagNullCipher, "null-cipher", false, "Authenticate without encrypting")

	flag.StringVarP(&flagListen, "listen", "l", ":5004", "UDP address to receive on")
	flag.IntVarP(&flagBufferSize, "buffer-size", "b", 4<<20, "Reception buffer, in bytes")
	flag.IntVar(&flagPriority, "priority", 0, "Nice value for the receiver thread")
	flag.UintSliceVarP(&flagPayloadTypes, "payload-type", "t", nil, "Accepted RTP payload types")
	flag.StringVarP(&flagRelay, "relay", "r", "", "WebSocket relay address")

	flag.StringVar(&flagSend, "send", "", "Send test media to this address")
	flag.IntVarP(&flagCount, "count", "n", 500, "Number of RTP packets to send")
	flag.DurationVar(&flagInterval, "interval", 20*time.Millisecond, "Delay between packets")
	flag.IntVar(&flagDSCP, "dscp", 46, "DSCP value for outgoing packets")

	flag.StringVar(&flagLog, "log", "", "Logging directives")
	flag.BoolVarP(&flagHelp, "help", "h", false, "Print usage information and exit")
	flag.BoolVarP(&flagVersion, "version", "v", false, "Print version information and exit")
}

func main() {
	flag.Parse()

	if flagHelp {
		help()
		os.Exit(0)
	}
	if flagVersion {
		version()
		os.Exit(0)
	}
	if err := logging.Configure(flagLog); err != nil {
		log.Fatal("Invalid --log: %v", err)
	}

	keys, err := masterKeys()
	if err != nil {
		log.Fatal("%v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if flagSend != "" {
		err = send(ctx, flagSend, keys)
	} else {
		err = receive(ctx, keys)
	}
	if err != nil {
		log.Fatal("%v", err)
	}
}

func masterKeys() (srtp.MasterKeys, error) {
	var keys srtp.MasterKeys
	if flagInsecure {
		return keys, nil
	}
	if flagRemoteKey == "" {
		flagRemoteKey = flagKey
	}
	if flagRemoteSalt == "" {
		flagRemoteSalt = flagSalt
	}
	for _, f := range []struct {
		name string
		hex  string
		dst  *[]byte
	}{
		{"key", flagKey, &keys.LocalKey},
		{"salt", flagSalt, &keys.LocalSalt},
		{"remote-key", flagRemoteKey, &keys.RemoteKey},
		{"remote-salt", flagRemoteSalt, &keys.RemoteSalt},
	} {
		b, err := hex.DecodeString(f.hex)
		if err != nil {
			return keys, errors.Wrapf(err, "--%s", f.name)
		}
		if len(b) == 0 {
			return keys, errors.Errorf("--%s is required (or use --insecure)", f.name)
		}
		*f.dst = b
	}
	return keys, nil
}

func receive(ctx context.Context, keys srtp.MasterKeys) error {
	cfg := rxflow.Config{
		BufferSize: flagBufferSize,
		Priority:   flagPriority,
		Keys:       keys,
		Insecure:   flagInsecure,
		NullCipher: flagNullCipher,
	}
	for _, pt := range flagPayloadTypes {
		cfg.PayloadTypes = append(cfg.PayloadTypes, uint8(pt))
	}

	if flagRelay != "" {
		hub := relay.NewHub(relay.DefaultBacklog)
		defer hub.Close()
		cfg.Hook = func(f rxflow.Frame) {
			logFrame(f)
			hub.Broadcast(f)
		}

		server := &http.Server{Addr: flagRelay, Handler: hub}
		go func() {
			log.Info("Relaying frames on ws://%s/", flagRelay)
			if err := server.ListenAndServe(); err != http.ErrServerClosed {
				log.Error("relay: %v", err)
			}
		}()
		defer server.Shutdown(context.Background())
	}

	session, err := rxflow.Listen(flagListen, cfg)
	if err != nil {
		return err
	}
	if err := session.Start(); err != nil {
		session.Close()
		return err
	}

	if cfg.Hook == nil {
		go func() {
			for {
				frame, err := session.ReadFrameContext(ctx)
				if err != nil {
					return
				}
				logFrame(frame)
			}
		}()
	}

	select {
	case <-ctx.Done():
	case <-session.Done():
	}

	st := session.Stats()
	log.Info("Received %d datagrams (%d bytes), delivered %d frames, %d rejected",
		st.Flow.Datagrams, st.Flow.Bytes, st.Flow.Frames, st.Flow.Corrupt)
	log.Info("SRTP: %d authentication failures, %d replays; SRTCP: %d authentication failures, %d replays",
		st.SRTP.AuthFailures, st.SRTP.Replays, st.SRTCP.AuthFailures, st.SRTCP.Replays)
	return session.Close()
}

func logFrame(frame rxflow.Frame) {
	switch f := frame.(type) {
	case *rtp.Packet:
		log.Debug("RTP ssrc=%08x seq=%d pt=%d ts=%d %d bytes",
			f.SSRC, f.SequenceNumber, f.PayloadType, f.Timestamp, len(f.Payload))
	case rtcp.Packet:
		log.Debug("RTCP %T for %08x", f, f.DestinationSSRC())
	default:
		log.Warn("Unexpected frame %T", frame)
	}
}
