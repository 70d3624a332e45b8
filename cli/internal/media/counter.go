package media

import (
	"sync"

	"github.com/pion/rtp"
)

// Counter tracks packets of one RTP stream, including loss detected from
// sequence number gaps.
type Counter struct {
	mu      sync.Mutex
	started bool
	lastSeq uint16
	packets uint64
	bytes   uint64
	lost    uint64
}

// CounterStats is a snapshot of a Counter.
type CounterStats struct {
	Packets uint64
	Bytes   uint64
	Lost    uint64
}

// Observe records pkt. Late and duplicate packets count but do not move the
// sequence forward.
func (c *Counter) Observe(pkt *rtp.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.packets++
	c.bytes += uint64(len(pkt.Payload))

	if !c.started {
		c.started = true
		c.lastSeq = pkt.SequenceNumber
		return
	}

	delta := pkt.SequenceNumber - c.lastSeq
	if delta == 0 || delta >= 0x8000 {
		return
	}
	c.lost += uint64(delta - 1)
	c.lastSeq = pkt.SequenceNumber
}

func (c *Counter) Stats() CounterStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CounterStats{Packets: c.packets, Bytes: c.bytes, Lost: c.lost}
}
