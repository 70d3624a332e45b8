package media

import (
	"github.com/pion/webrtc/v4"
)

// StreamID groups the teacher's tracks into one media stream.
const StreamID = "liveclass"

// Tracks are the teacher's outgoing tracks. Every student session shares
// them, so a packet written once reaches all students.
type Tracks struct {
	Video *webrtc.TrackLocalStaticRTP
	Audio *webrtc.TrackLocalStaticRTP
}

// NewTracks creates a VP8 video track and an Opus audio track.
func NewTracks() (*Tracks, error) {
	video, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", StreamID)
	if err != nil {
		return nil, err
	}
	audio, err := webrtc.NewTrackLocalStaticRTP(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", StreamID)
	if err != nil {
		return nil, err
	}
	return &Tracks{Video: video, Audio: audio}, nil
}

// List returns the tracks for adding to a peer connection.
func (t *Tracks) List() []webrtc.TrackLocal {
	return []webrtc.TrackLocal{t.Video, t.Audio}
}
