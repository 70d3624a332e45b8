package media

import (
	"errors"
	"io"
	"log/slog"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

// RTPReader is the read side of a remote track.
type RTPReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Sink drains a remote track and counts what arrives.
type Sink struct {
	Kind    string
	Counter Counter
}

func NewSink(kind string) *Sink {
	return &Sink{Kind: kind}
}

// Run reads until the track ends.
func (s *Sink) Run(track RTPReader) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				slog.Debug("track read ended", "kind", s.Kind, "err", err)
			}
			return
		}
		s.Counter.Observe(pkt)
	}
}
