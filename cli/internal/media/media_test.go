package media

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

func packet(seq uint16, payload int) *rtp.Packet {
	return &rtp.Packet{
		Header:  rtp.Header{Version: 2, SequenceNumber: seq, PayloadType: 96, SSRC: 1},
		Payload: make([]byte, payload),
	}
}

func TestCounterLoss(t *testing.T) {
	tests := []struct {
		name string
		seqs []uint16
		lost uint64
	}{
		{"in order", []uint16{1, 2, 3, 4}, 0},
		{"gap", []uint16{1, 2, 5, 6}, 2},
		{"wraparound", []uint16{65534, 65535, 0, 1}, 0},
		{"gap across wrap", []uint16{65535, 2}, 2},
		{"late packet", []uint16{10, 12, 11, 13}, 1},
		{"duplicate", []uint16{7, 7, 8}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Counter
			for _, s := range tt.seqs {
				c.Observe(packet(s, 10))
			}
			st := c.Stats()
			if st.Lost != tt.lost || st.Packets != uint64(len(tt.seqs)) || st.Bytes != uint64(10*len(tt.seqs)) {
				t.Fatalf("stats = %+v, want lost %d", st, tt.lost)
			}
		})
	}
}

type fakeTrack struct {
	packets []*rtp.Packet
}

func (f *fakeTrack) ReadRTP() (*rtp.Packet, interceptor.Attributes, error) {
	if len(f.packets) == 0 {
		return nil, nil, io.EOF
	}
	p := f.packets[0]
	f.packets = f.packets[1:]
	return p, nil, nil
}

func TestSinkRun(t *testing.T) {
	s := NewSink("video")
	s.Run(&fakeTrack{packets: []*rtp.Packet{packet(1, 100), packet(2, 50), packet(4, 50)}})

	st := s.Counter.Stats()
	if st.Packets != 3 || st.Bytes != 200 || st.Lost != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestIngest(t *testing.T) {
	tracks, err := NewTracks()
	if err != nil {
		t.Fatalf("NewTracks: %v", err)
	}
	if len(tracks.List()) != 2 || tracks.Video.StreamID() != StreamID {
		t.Fatalf("tracks = %+v", tracks)
	}

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var counter Counter
	done := make(chan error, 1)
	go func() { done <- ingest(ctx, conn, tracks.Video, &counter) }()

	src, err := net.Dial("udp", conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer src.Close()

	raw, err := packet(1, 20).Marshal()
	if err != nil {
		t.Fatal(err)
	}
	src.Write([]byte{0x01})
	src.Write(raw)

	deadline := time.Now().Add(2 * time.Second)
	for counter.Stats().Packets == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if st := counter.Stats(); st.Packets != 1 || st.Bytes != 20 {
		t.Fatalf("stats = %+v", st)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ingest returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ingest did not stop")
	}
}
