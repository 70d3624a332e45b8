package peer

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/instructify/liveclass/cli/internal/config"
	"github.com/instructify/liveclass/cli/internal/media"
	"github.com/instructify/liveclass/cli/internal/network"
	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// NewAPI builds a pion API with the default codecs and interceptors, plus a
// periodic keyframe request on every received video track.
func NewAPI() (*webrtc.API, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, NewError("register codecs", "", err)
	}

	i := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, NewError("register interceptors", "", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor()
	if err != nil {
		return nil, NewError("pli interceptor", "", err)
	}
	i.Add(pli)

	return webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(i)), nil
}

// Configuration builds the ICE configuration from the client config. Relay
// is forced when asked for, or when the host looks like it is behind a VPN
// or carrier NAT and a TURN server is available.
func Configuration(cfg *config.Config) webrtc.Configuration {
	var servers []webrtc.ICEServer
	if stun := cfg.GetSTUNServers(); stun != nil {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}

	turn := cfg.GetTURNServers()
	if turn != nil {
		username, password := cfg.GetTURNCredentials()
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   username,
			Credential: password,
		})
	}

	policy := webrtc.ICETransportPolicyAll
	if turn != nil && (cfg.ForceRelay || network.ShouldForceRelay()) {
		policy = webrtc.ICETransportPolicyRelay
	}

	return webrtc.Configuration{
		ICEServers:         servers,
		ICETransportPolicy: policy,
	}
}

// Media describes what a transport sends and how it reports what it gets.
type Media struct {
	// Tracks are added to every offering transport.
	Tracks []webrtc.TrackLocal
	// StreamInfo is sent on the control channel once it opens.
	StreamInfo *StreamInfo
	// OnTrack is told about each remote track as it starts.
	OnTrack func(peer, kind string)
	// OnControl receives control messages from the remote.
	OnControl func(peer string, msg ControlMessage)
}

// Factory creates pion transports for one side of the negotiation.
type Factory struct {
	api       *webrtc.API
	rtcConfig webrtc.Configuration
	side      Side
	hooks     Media
}

func NewFactory(api *webrtc.API, rtcConfig webrtc.Configuration, side Side, m Media) *Factory {
	return &Factory{api: api, rtcConfig: rtcConfig, side: side, hooks: m}
}

// New satisfies TransportFactory.
func (f *Factory) New(peer string) (Transport, error) {
	pc, err := f.api.NewPeerConnection(f.rtcConfig)
	if err != nil {
		return nil, NewError("create peer connection", peer, err)
	}

	t := &PionTransport{peer: peer, side: f.side, pc: pc, hooks: f.hooks}
	if err := t.setup(); err != nil {
		pc.Close()
		return nil, err
	}
	return t, nil
}

// PionTransport implements Transport on a pion PeerConnection.
type PionTransport struct {
	peer  string
	side  Side
	pc    *webrtc.PeerConnection
	hooks Media

	control atomic.Pointer[webrtc.DataChannel]

	mu    sync.Mutex
	sinks []*media.Sink

	pli  atomic.Uint64
	nack atomic.Uint64
}

func (t *PionTransport) setup() error {
	if t.side == Offerer {
		for _, track := range t.hooks.Tracks {
			sender, err := t.pc.AddTrack(track)
			if err != nil {
				return NewError("add track", t.peer, err)
			}
			go t.readFeedback(sender)
		}

		ordered := true
		dc, err := t.pc.CreateDataChannel(ControlLabel, &webrtc.DataChannelInit{Ordered: &ordered})
		if err != nil {
			return NewError("create data channel", t.peer, err)
		}
		t.bindControl(dc)
		return nil
	}

	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeVideo, webrtc.RTPCodecTypeAudio} {
		_, err := t.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		})
		if err != nil {
			return NewError("add transceiver", t.peer, err)
		}
	}
	t.pc.OnTrack(t.handleTrack)
	t.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() == ControlLabel {
			t.bindControl(dc)
		}
	})
	return nil
}

func (t *PionTransport) bindControl(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		t.control.Store(dc)
		if info := t.hooks.StreamInfo; info != nil {
			msg, err := NewControl(ControlStreamInfo, info)
			if err == nil {
				err = t.SendControl(msg)
			}
			if err != nil {
				slog.Warn("send stream info", "peer", t.peer, "err", err)
			}
		}
	})
	dc.OnClose(func() {
		t.control.CompareAndSwap(dc, nil)
	})
	dc.OnMessage(func(m webrtc.DataChannelMessage) {
		msg, err := decodeControl(m.Data)
		if err != nil {
			slog.Debug("dropping malformed control message", "peer", t.peer, "err", err)
			return
		}
		if t.hooks.OnControl != nil {
			t.hooks.OnControl(t.peer, msg)
		}
	})
}

// readFeedback drains RTCP from one sender so interceptors keep working and
// counts keyframe requests and NACKs.
func (t *PionTransport) readFeedback(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			switch p.(type) {
			case *rtcp.PictureLossIndication, *rtcp.FullIntraRequest:
				t.pli.Add(1)
			case *rtcp.TransportLayerNack:
				t.nack.Add(1)
			}
		}
	}
}

func (t *PionTransport) handleTrack(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
	kind := track.Kind().String()
	slog.Debug("remote track", "peer", t.peer, "kind", kind, "codec", track.Codec().MimeType)

	if track.Kind() == webrtc.RTPCodecTypeVideo {
		err := t.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(track.SSRC())}})
		if err != nil {
			slog.Debug("request keyframe", "peer", t.peer, "err", err)
		}
	}

	sink := media.NewSink(kind)
	t.mu.Lock()
	t.sinks = append(t.sinks, sink)
	t.mu.Unlock()

	if t.hooks.OnTrack != nil {
		t.hooks.OnTrack(t.peer, kind)
	}
	sink.Run(track)
}

func (t *PionTransport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

func (t *PionTransport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

func (t *PionTransport) SetLocalDescription(d webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(d)
}

func (t *PionTransport) SetRemoteDescription(d webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(d)
}

func (t *PionTransport) AddICECandidate(c webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(c)
}

func (t *PionTransport) Restart() (*webrtc.SessionDescription, error) {
	if t.side != Offerer {
		return nil, nil
	}
	offer, err := t.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: true})
	if err != nil {
		return nil, err
	}
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, err
	}
	return &offer, nil
}

func (t *PionTransport) Recover(d webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := t.pc.SetRemoteDescription(d); err != nil {
		return nil, err
	}
	if d.Type != webrtc.SDPTypeOffer {
		return nil, nil
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, err
	}
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, err
	}
	return &answer, nil
}

func (t *PionTransport) OnICECandidate(f func(webrtc.ICECandidateInit)) {
	t.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		f(c.ToJSON())
	})
}

func (t *PionTransport) OnConnectionStateChange(f func(webrtc.PeerConnectionState)) {
	t.pc.OnConnectionStateChange(f)
}

func (t *PionTransport) SendControl(msg ControlMessage) error {
	dc := t.control.Load()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return NewError("send control", t.peer, ErrChannelNotOpen)
	}
	data, err := encodeControl(msg)
	if err != nil {
		return err
	}
	return dc.Send(data)
}

func (t *PionTransport) Stats() Stats {
	st := Stats{PLI: t.pli.Load(), NACK: t.nack.Load()}
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, s := range t.sinks {
		c := s.Counter.Stats()
		st.Packets += c.Packets
		st.Bytes += c.Bytes
		st.Lost += c.Lost
	}
	return st
}

func (t *PionTransport) Close() error {
	return t.pc.Close()
}
