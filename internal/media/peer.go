package media

import (
	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"
)

// newPeerConnection creates a PeerConnection whose media engine carries the
// capture backend's encoders plus the default interceptors. STUN only, no
// TURN by default.
func newPeerConnection(stunServers []string, capture Capture) (*webrtc.PeerConnection, error) {
	engine := &webrtc.MediaEngine{}
	if err := capture.Populate(engine); err != nil {
		return nil, err
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(engine, registry); err != nil {
		return nil, err
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(engine),
		webrtc.WithInterceptorRegistry(registry),
	)

	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: stunServers},
		},
	})
}
