package media

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

const maxPacketSize = 1500

// Ingest reads RTP packets from a UDP address and writes them to track until
// ctx is done. Any RTP source works, for example
//
//	ffmpeg -re -i talk.webm -an -c:v copy -f rtp rtp://127.0.0.1:5004
func Ingest(ctx context.Context, addr string, track *webrtc.TrackLocalStaticRTP, counter *Counter) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return err
	}
	return ingest(ctx, conn, track, counter)
}

func ingest(ctx context.Context, conn net.PacketConn, track *webrtc.TrackLocalStaticRTP, counter *Counter) error {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer func() {
		stop()
		conn.Close()
	}()

	log := slog.With("track", track.ID(), "addr", conn.LocalAddr().String())
	log.Debug("rtp ingest started")

	buf := make([]byte, maxPacketSize)
	for {
		n, _, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			log.Debug("dropping non-rtp datagram", "err", err)
			continue
		}
		if counter != nil {
			counter.Observe(pkt)
		}

		if err := track.WriteRTP(pkt); err != nil {
			if errors.Is(err, io.ErrClosedPipe) {
				return nil
			}
			return err
		}
	}
}
