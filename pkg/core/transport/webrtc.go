package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"

	"github.com/voxwire/voxwire/pkg/core"
)

const defaultChannelLabel = "events"

// AudioSource supplies outbound audio samples, e.g. a capture device. The
// transport pumps samples onto the local track while the session is open.
type AudioSource interface {
	// NextSample blocks until the next sample is available. Returning an
	// error stops the pump; io.EOF is an orderly end of input.
	NextSample(ctx context.Context) (media.Sample, error)
}

// AudioSink receives the inbound remote audio track once it arrives. A
// failed attach is logged, not fatal.
type AudioSink interface {
	Attach(track *webrtc.TrackRemote) error
}

// WebRTCConfig configures a WebRTC transport.
type WebRTCConfig struct {
	// Negotiator performs the offer/answer exchange. Required.
	Negotiator Negotiator

	// Source supplies outbound audio. Defaults to a silence source so the
	// media section negotiates even without a capture device.
	Source AudioSource

	// Sink receives remote audio. Nil drops inbound media.
	Sink AudioSink

	// ChannelLabel names the data channel. Defaults to "events".
	ChannelLabel string

	// ICEServers override the default (no STUN/TURN).
	ICEServers []webrtc.ICEServer

	Logger *slog.Logger
}

// WebRTC carries the control-event stream over a peer connection's data
// channel, with local audio out and remote audio in on media tracks.
type WebRTC struct {
	cfg    WebRTCConfig
	logger *slog.Logger

	mu     sync.Mutex
	pc     *webrtc.PeerConnection
	dc     *webrtc.DataChannel
	open   bool
	closed bool

	closeOnce  sync.Once
	notifyOnce sync.Once
	pumpCancel context.CancelFunc
}

// NewWebRTC creates a WebRTC transport.
func NewWebRTC(cfg WebRTCConfig) (*WebRTC, error) {
	if cfg.Negotiator == nil {
		return nil, fmt.Errorf("webrtc transport requires a negotiator")
	}
	if cfg.ChannelLabel == "" {
		cfg.ChannelLabel = defaultChannelLabel
	}
	if cfg.Source == nil {
		cfg.Source = NewSilenceSource()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &WebRTC{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Open acquires local audio, generates the local session description, trades
// it for the remote one, and applies it. The control channel reports ready
// via h.OnOpen once the underlying channel opens.
func (t *WebRTC) Open(ctx context.Context, token string, h Handlers) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: t.cfg.ICEServers})
	if err != nil {
		return core.NewInputError(fmt.Sprintf("create peer connection: %v", err))
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "voxwire",
	)
	if err != nil {
		_ = pc.Close()
		return core.NewInputError(fmt.Sprintf("acquire local audio: %v", err))
	}
	if _, err := pc.AddTrack(track); err != nil {
		_ = pc.Close()
		return core.NewInputError(fmt.Sprintf("attach local audio: %v", err))
	}

	dc, err := pc.CreateDataChannel(t.cfg.ChannelLabel, nil)
	if err != nil {
		_ = pc.Close()
		return core.NewInputError(fmt.Sprintf("create control channel: %v", err))
	}

	t.mu.Lock()
	t.pc = pc
	t.dc = dc
	t.mu.Unlock()

	pumpCtx, pumpCancel := context.WithCancel(context.Background())
	t.pumpCancel = pumpCancel

	dc.OnOpen(func() {
		t.mu.Lock()
		t.open = true
		t.mu.Unlock()
		go t.pumpAudio(pumpCtx, track)
		if h.OnOpen != nil {
			h.OnOpen()
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if h.OnMessage != nil {
			h.OnMessage(msg.Data)
		}
	})
	dc.OnClose(func() {
		t.markClosed()
		t.notifyClose(h, nil)
	})
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if t.cfg.Sink == nil {
			t.logger.Debug("remote track dropped, no sink", "kind", track.Kind().String())
			return
		}
		if err := t.cfg.Sink.Attach(track); err != nil {
			t.logger.Warn("remote media playback failed", "error", err)
		}
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.logger.Debug("peer connection state", "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed:
			t.markClosed()
			t.notifyClose(h, errors.New("peer connection failed"))
		case webrtc.PeerConnectionStateClosed:
			t.markClosed()
			t.notifyClose(h, nil)
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		t.abort()
		return core.NewInputError(fmt.Sprintf("create session description: %v", err))
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		t.abort()
		return core.NewInputError(fmt.Sprintf("set local description: %v", err))
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		t.abort()
		return core.NewInputError(fmt.Sprintf("candidate gathering: %v", ctx.Err()))
	}
	local := pc.LocalDescription()
	if local == nil || local.SDP == "" {
		t.abort()
		return core.NewInputError("local session description is empty")
	}

	answer, err := t.cfg.Negotiator.Negotiate(ctx, local.SDP, token)
	if err != nil {
		t.abort()
		return err
	}

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		t.abort()
		return &core.Error{
			Type:    core.ErrSignaling,
			Message: "remote session description rejected",
			Cause:   err,
		}
	}
	return nil
}

// abort releases the peer connection after a failed establishment step.
// Establishment failures surface through Open's return value, so the close
// callbacks are suppressed first.
func (t *WebRTC) abort() {
	t.notifyOnce.Do(func() {})
	t.markClosed()
	if t.pumpCancel != nil {
		t.pumpCancel()
	}
	t.mu.Lock()
	dc, pc := t.dc, t.pc
	t.mu.Unlock()
	if dc != nil {
		_ = dc.Close()
	}
	if pc != nil {
		_ = pc.Close()
	}
}

func (t *WebRTC) pumpAudio(ctx context.Context, track *webrtc.TrackLocalStaticSample) {
	for {
		sample, err := t.cfg.Source.NextSample(ctx)
		if err != nil {
			if ctx.Err() == nil {
				t.logger.Debug("audio source ended", "error", err)
			}
			return
		}
		if err := track.WriteSample(sample); err != nil {
			t.logger.Debug("audio write ended", "error", err)
			return
		}
	}
}

// Send writes one frame to the data channel.
func (t *WebRTC) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.open || t.closed || t.dc == nil {
		return core.NewChannelError("control channel is not open")
	}
	if err := t.dc.SendText(string(payload)); err != nil {
		return core.NewChannelError(fmt.Sprintf("control channel write: %v", err))
	}
	return nil
}

func (t *WebRTC) markClosed() {
	t.mu.Lock()
	t.open = false
	t.closed = true
	t.mu.Unlock()
}

func (t *WebRTC) notifyClose(h Handlers, err error) {
	t.notifyOnce.Do(func() {
		if h.OnClose != nil {
			h.OnClose(err)
		}
	})
}

// Close releases the audio pump, control channel, and peer connection.
// Idempotent; safe in any order relative to inbound callbacks.
func (t *WebRTC) Close() error {
	var closeErr error
	t.closeOnce.Do(func() {
		t.markClosed()
		if t.pumpCancel != nil {
			t.pumpCancel()
		}
		t.mu.Lock()
		dc, pc := t.dc, t.pc
		t.mu.Unlock()
		if dc != nil {
			_ = dc.Close()
		}
		if pc != nil {
			closeErr = pc.Close()
		}
	})
	return closeErr
}

// SilenceSource produces 20ms opus silence frames so the outbound media
// section stays alive without a capture device.
type SilenceSource struct{}

// NewSilenceSource creates a silence source.
func NewSilenceSource() *SilenceSource {
	return &SilenceSource{}
}

// opusSilence is a canonical opus frame decoding to silence.
var opusSilence = []byte{0xF8, 0xFF, 0xFE}

// NextSample returns one 20ms silence frame, paced to real time.
func (s *SilenceSource) NextSample(ctx context.Context) (media.Sample, error) {
	select {
	case <-ctx.Done():
		return media.Sample{}, ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	return media.Sample{
		Data:     append([]byte(nil), opusSilence...),
		Duration: 20 * time.Millisecond,
	}, nil
}
