package synthvid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
	"github.com/synthvid/synthvid/message"
)

const (
	// DefaultVRAMBase is the physical address the hypervisor reserves for
	// the synthetic video device.
	DefaultVRAMBase = 0xF8000000

	DefaultFlushInterval  = 50 * time.Millisecond
	DefaultMaxUpdateRects = 64

	// Pending transactions are keyed by this base plus the message type of
	// the expected response.
	transactionBase uint64 = 0x100

	featureChangeBuffer = 16
)

// versionCandidates is walked newest to oldest until the remote accepts
// one.
var versionCandidates = []message.Version{
	message.Version3_5,
	message.Version3_2,
	message.Version3_0,
}

// VRAMExtent is the video memory region currently announced to the
// remote. Length is the single source of truth for every capacity check.
type VRAMExtent struct {
	Base   uint64
	Length uint64
}

// ScreenGeometry is the currently committed display mode, mutated only by
// a successful resolution commit.
type ScreenGeometry struct {
	Width    uint32
	Height   uint32
	BitDepth uint32
}

// RetainedCursorState holds the last sent cursor shape and position so an
// unsolicited refresh request can retransmit exactly what the remote last
// saw. Owned per engine, multiple adapters never share it.
type RetainedCursorState struct {
	shapeFrame []byte
	x, y       int32
	visible    bool
}

// CursorShapeParams describes a complete ARGB cursor image.
type CursorShapeParams struct {
	Width  uint32
	Height uint32
	HotX   uint32
	HotY   uint32
	Data   []byte
}

type EngineConfig struct {
	// VRAMBase overrides the reserved base address.
	VRAMBase uint64

	// VRAMOverrideBytes, when nonzero, takes precedence over the
	// hypervisor advertised byte count.
	VRAMOverrideBytes uint64

	// AdvertisedVRAMBytes is the byte count the hypervisor advertised for
	// this channel.
	AdvertisedVRAMBytes uint64

	// Resolutions is the optional externally supplied candidate mode list.
	Resolutions []Mode

	FlushInterval  time.Duration
	MaxUpdateRects int
}

// Engine owns the protocol conversation with the graphics service:
// version negotiation, VRAM announcement, resolution commits, cursor
// state and periodic image flushes. All state mutation is serialized
// through the embedded mutex; inbound packets are handled on the channel
// delivery goroutine and hand off into the run loop before touching
// shared state.
type Engine struct {
	sync.Mutex

	l   *logrus.Logger
	ch  Channel
	cfg EngineConfig

	version    message.Version
	maxOutputs uint8
	vram       VRAMExtent
	geom       ScreenGeometry
	dirty      *DirtyTracker
	modes      []Mode

	ready  atomic.Bool
	cursor RetainedCursorState

	featureChanges chan message.FeatureChange
	trigger        chan struct{}

	messageMetrics        *MessageMetrics
	metricFlushes         metrics.Counter
	metricDroppedNotifies metrics.Counter
}

func NewEngine(l *logrus.Logger, ch Channel, cfg EngineConfig) *Engine {
	if cfg.VRAMBase == 0 {
		cfg.VRAMBase = DefaultVRAMBase
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultFlushInterval
	}
	if cfg.MaxUpdateRects <= 0 || cfg.MaxUpdateRects > message.MaxUpdateRects {
		cfg.MaxUpdateRects = DefaultMaxUpdateRects
	}

	return &Engine{
		l:   l,
		ch:  ch,
		cfg: cfg,
		cursor: RetainedCursorState{
			visible: true,
		},
		featureChanges:        make(chan message.FeatureChange, featureChangeBuffer),
		trigger:               make(chan struct{}, 1),
		messageMetrics:        newMessageMetrics(),
		metricFlushes:         metrics.GetOrRegisterCounter("engine.image_flushes", nil),
		metricDroppedNotifies: metrics.GetOrRegisterCounter("engine.dropped_notifications", nil),
	}
}

// Activate performs the full bring-up: walk the version candidates, claim
// and announce VRAM, build the mode catalog and commit the preferred
// mode. Once it returns the framebuffer is ready and unsolicited
// notifications are honored.
func (e *Engine) Activate() error {
	e.Lock()
	defer e.Unlock()

	var lastErr error
	negotiated := false
	for _, v := range versionCandidates {
		err := e.negotiateVersion(v)
		if err == nil {
			negotiated = true
			break
		}
		if !errors.Is(err, ErrUnsupported) {
			// transport failure, retrying older versions will not help
			return err
		}
		lastErr = err
	}
	if !negotiated {
		return fmt.Errorf("no protocol version accepted: %w", lastErr)
	}

	if err := e.claimVRAM(); err != nil {
		return err
	}
	if err := e.announceVRAMLocation(); err != nil {
		return err
	}

	e.modes = BuildModeCatalog(e.version, e.vram.Length, e.cfg.Resolutions)
	e.l.WithField("modes", len(e.modes)).WithField("preferred", e.modes[0]).
		Info("Built mode catalog")

	preferred := e.modes[0]
	if err := e.commitResolution(preferred.Width, preferred.Height, true); err != nil {
		return fmt.Errorf("failed to commit preferred mode %s: %w", preferred, err)
	}

	e.ready.Store(true)
	e.l.WithField("version", e.version).WithField("vramBytes", e.vram.Length).
		Info("Graphics engine active")
	return nil
}

// Version returns the negotiated protocol version.
func (e *Engine) Version() message.Version {
	e.Lock()
	defer e.Unlock()
	return e.version
}

// VRAM returns the currently announced video memory extent.
func (e *Engine) VRAM() VRAMExtent {
	e.Lock()
	defer e.Unlock()
	return e.vram
}

// Geometry returns the currently committed screen geometry.
func (e *Engine) Geometry() ScreenGeometry {
	e.Lock()
	defer e.Unlock()
	return e.geom
}

// Modes returns the current mode catalog, first entry most preferred.
func (e *Engine) Modes() []Mode {
	e.Lock()
	defer e.Unlock()
	out := make([]Mode, len(e.modes))
	copy(out, e.modes)
	return out
}

// sendTransaction sends a framed request and blocks until the response of
// respType arrives, verifying the response actually carries that type.
// Returns the response payload with the graphics header stripped.
func (e *Engine) sendTransaction(t, respType message.Type, frame []byte) ([]byte, error) {
	e.messageMetrics.Tx(t, 1)
	resp, err := e.ch.SendTransaction(transactionBase+uint64(respType), frame)
	if err != nil {
		return nil, err
	}

	h := message.Header{}
	if err := h.Parse(resp); err != nil {
		return nil, err
	}
	if h.Type != respType {
		return nil, fmt.Errorf("expected %s response, got %s: %w",
			message.TypeName(respType), message.TypeName(h.Type), ErrProtocol)
	}
	return resp[message.HeaderLen:], nil
}

func (e *Engine) send(t message.Type, frame []byte) error {
	e.messageMetrics.Tx(t, 1)
	return e.ch.Send(frame)
}

// NegotiateVersion proposes a single version to the remote. Walking the
// candidate list is the caller's policy, see Activate.
func (e *Engine) NegotiateVersion(v message.Version) error {
	e.Lock()
	defer e.Unlock()
	return e.negotiateVersion(v)
}

func (e *Engine) negotiateVersion(v message.Version) error {
	e.l.WithField("version", v).Debug("Proposing protocol version")

	req := message.VersionRequest{Version: v}
	payload, err := e.sendTransaction(message.TypeVersionRequest, message.TypeVersionResponse, req.Encode())
	if err != nil {
		return fmt.Errorf("version negotiation: %w", err)
	}

	resp := message.VersionResponse{}
	if err := resp.Parse(payload); err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("version %s rejected by remote: %w", v, ErrUnsupported)
	}

	e.version = resp.Version
	e.maxOutputs = resp.MaxOutputs
	e.l.WithField("version", e.version).WithField("maxOutputs", e.maxOutputs).
		Info("Negotiated protocol version")
	return nil
}

// claimVRAM decides the VRAM extent. An explicit override always wins
// over the hypervisor advertised byte count; the base is the protocol
// reserved address unless configured otherwise.
func (e *Engine) claimVRAM() error {
	length := e.cfg.AdvertisedVRAMBytes
	if e.cfg.VRAMOverrideBytes > 0 {
		length = e.cfg.VRAMOverrideBytes
		e.l.WithField("vramBytes", length).Debug("Using VRAM size override")
	}
	if length == 0 {
		return fmt.Errorf("no VRAM byte count advertised or configured: %w", ErrNoResources)
	}

	e.vram = VRAMExtent{Base: e.cfg.VRAMBase, Length: length}
	e.l.WithField("base", fmt.Sprintf("%#x", e.vram.Base)).WithField("vramBytes", e.vram.Length).
		Info("Claimed video memory")
	return nil
}

// announceVRAMLocation tells the remote where the framebuffer lives. The
// base address doubles as the correlation token; an ack echoing a
// different token means a stale or duplicate response and is a protocol
// error, never silently accepted.
func (e *Engine) announceVRAMLocation() error {
	msg := message.VRAMLocation{
		Context:      e.vram.Base,
		GPASpecified: true,
		GPA:          e.vram.Base,
	}

	payload, err := e.sendTransaction(message.TypeVRAMLocation, message.TypeVRAMAck, msg.Encode())
	if err != nil {
		return fmt.Errorf("vram announcement: %w", err)
	}

	ack := message.VRAMAck{}
	if err := ack.Parse(payload); err != nil {
		return err
	}
	if ack.Context != e.vram.Base {
		return fmt.Errorf("vram ack context %#x, sent %#x: %w", ack.Context, e.vram.Base, ErrProtocol)
	}

	e.l.WithField("base", fmt.Sprintf("%#x", e.vram.Base)).Debug("Announced VRAM location")
	return nil
}

// CommitResolution validates the mode against the version ceiling, the
// protocol floor and the VRAM capacity, sends a resolution update for a
// single active output and, on success, atomically replaces the screen
// geometry and recreates the dirty tracker for the new dimensions.
func (e *Engine) CommitResolution(width, height uint32, waitForAck bool) error {
	e.Lock()
	defer e.Unlock()
	return e.commitResolution(width, height, waitForAck)
}

func (e *Engine) commitResolution(width, height uint32, waitForAck bool) error {
	if err := checkMode(e.version, e.vram.Length, width, height); err != nil {
		return err
	}

	depth := e.version.BitDepth()
	msg := message.ResolutionUpdate{
		Outputs: []message.VideoOutput{{
			Active: true,
			Depth:  uint8(depth),
			Width:  width,
			Height: height,
			Pitch:  width * e.version.BytesPerPixel(),
		}},
	}

	var err error
	if waitForAck {
		_, err = e.sendTransaction(message.TypeResolutionUpdate, message.TypeResolutionUpdateAck, msg.Encode())
	} else {
		err = e.send(message.TypeResolutionUpdate, msg.Encode())
	}
	if err != nil {
		return fmt.Errorf("resolution update: %w", err)
	}

	e.geom = ScreenGeometry{Width: width, Height: height, BitDepth: depth}
	e.dirty = NewDirtyTracker(width, height)
	e.l.WithField("width", width).WithField("height", height).WithField("depth", depth).
		Info("Committed screen resolution")
	return nil
}

// SetCursorShape validates and sends a cursor image, retaining the
// encoded message verbatim. With resend set the retained bytes are
// retransmitted as-is, preserving exactly what the remote last saw. A nil
// shape sends a 1x1 transparent cursor.
func (e *Engine) SetCursorShape(shape *CursorShapeParams, resend bool) error {
	e.Lock()
	defer e.Unlock()

	if resend {
		if e.cursor.shapeFrame == nil {
			e.l.Debug("No cursor shape retained, nothing to resend")
			return nil
		}
		return e.send(message.TypeCursorShape, e.cursor.shapeFrame)
	}

	msg := message.CursorShape{
		PartIndex: message.CursorPartComplete,
		ARGB:      true,
		Width:     1,
		Height:    1,
		// 1x1 transparent square for no cursor
		Data: []byte{0, 1, 1, 1},
	}

	if shape != nil {
		if shape.Width > message.CursorMaxWidth || shape.Height > message.CursorMaxHeight ||
			shape.HotX > shape.Width || shape.HotY > shape.Height {
			return fmt.Errorf("cursor %dx%d hot %d,%d: %w", shape.Width, shape.Height,
				shape.HotX, shape.HotY, ErrBadArgument)
		}
		size := shape.Width * shape.Height * message.CursorPixelSize
		if size > message.CursorMaxSize {
			return fmt.Errorf("cursor image %d bytes exceeds %d: %w", size, message.CursorMaxSize, ErrBadArgument)
		}
		if uint32(len(shape.Data)) < size {
			return fmt.Errorf("cursor image truncated, have %d bytes, want %d: %w",
				len(shape.Data), size, ErrBadArgument)
		}

		msg.Width = shape.Width
		msg.Height = shape.Height
		msg.HotX = shape.HotX
		msg.HotY = shape.HotY
		msg.Data = shape.Data[:size]
	}

	frame := msg.Encode()
	e.cursor.shapeFrame = frame
	return e.send(message.TypeCursorShape, frame)
}

// SetCursorPosition sends cursor position and visibility. With resend set
// the retained position and visibility are sent instead of the arguments.
func (e *Engine) SetCursorPosition(x, y int32, visible bool, resend bool) error {
	e.Lock()
	defer e.Unlock()

	msg := message.CursorPosition{X: x, Y: y, Visible: visible}
	if resend {
		msg.X = e.cursor.x
		msg.Y = e.cursor.y
		msg.Visible = e.cursor.visible
	}

	err := e.send(message.TypeCursorPosition, msg.Encode())

	if !resend {
		e.cursor.x = x
		e.cursor.y = y
		e.cursor.visible = visible
	}
	return err
}

// MarkDirty records a changed framebuffer region for the next flush.
func (e *Engine) MarkDirty(x, y, width, height uint32) {
	e.Lock()
	defer e.Unlock()
	if e.dirty != nil {
		e.dirty.MarkRegion(x, y, width, height)
	}
}

// MarkFullScreenDirty forces the next flush to cover the whole screen.
func (e *Engine) MarkFullScreenDirty() {
	e.Lock()
	defer e.Unlock()
	if e.dirty != nil {
		e.dirty.MarkFullScreen()
	}
}

// TriggerFlush asks the run loop for an immediate flush instead of
// waiting for the next timer tick.
func (e *Engine) TriggerFlush() {
	select {
	case e.trigger <- struct{}{}:
	default:
	}
}

// FlushImage transmits the pending dirty rectangles and clears the dirty
// state only after a successful send; a failed send leaves the state
// intact so the next flush retries the same region.
func (e *Engine) FlushImage() error {
	e.Lock()
	defer e.Unlock()
	return e.flushImage()
}

func (e *Engine) flushImage() error {
	if e.dirty == nil || !e.dirty.IsDirty() {
		return nil
	}

	rects := e.dirty.BuildRectangles(e.cfg.MaxUpdateRects)
	if len(rects) == 0 {
		// dirty but no rectangles emitted, fall back to full screen
		rects = []message.Rectangle{{X2: int32(e.geom.Width), Y2: int32(e.geom.Height)}}
	}

	msg := message.ImageUpdate{Rects: rects}
	if err := e.send(message.TypeImageUpdate, msg.Encode()); err != nil {
		return fmt.Errorf("image update: %w", err)
	}

	e.dirty.Clear()
	e.metricFlushes.Inc(1)
	return nil
}

// HandleMessage is the channel delivery entry point. Responses wake the
// transaction waiting on their type; feature changes are queued for the
// run loop. No engine state is touched on the delivery goroutine.
func (e *Engine) HandleMessage(b []byte) {
	h := message.Header{}
	if err := h.Parse(b); err != nil {
		e.l.WithError(err).Debug("Dropping malformed message")
		return
	}

	switch h.Type {
	case message.TypeVersionResponse, message.TypeVRAMAck, message.TypeResolutionUpdateAck:
		e.messageMetrics.Rx(h.Type, 1)
		if !e.ch.ResolvePending(transactionBase+uint64(h.Type), b) {
			e.l.WithField("type", message.TypeName(h.Type)).Debug("Response without a waiting transaction")
		}

	case message.TypeFeatureChange:
		e.messageMetrics.Rx(h.Type, 1)
		fc := message.FeatureChange{}
		if err := fc.Parse(b[message.HeaderLen:]); err != nil {
			e.l.WithError(err).Debug("Dropping malformed feature change")
			return
		}
		if !e.ready.Load() {
			e.metricDroppedNotifies.Inc(1)
			e.l.Debug("Ignoring feature change, not ready")
			return
		}
		select {
		case e.featureChanges <- fc:
		default:
			e.metricDroppedNotifies.Inc(1)
			e.l.Warn("Feature change queue full, dropping notification")
		}

	default:
		e.messageMetrics.Rx(h.Type, 1)
		e.l.WithField("type", message.TypeName(h.Type)).Debug("Ignoring message")
	}
}

// Run drives the periodic flush and the feature change dispatcher until
// ctx is done. Flushes and refreshes serialize against every other
// mutation through the engine mutex, the timer can never interleave with
// a resolution commit.
func (e *Engine) Run(ctx context.Context) {
	clockSource := time.NewTicker(e.cfg.FlushInterval)
	defer clockSource.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.trigger:
			e.runFlush()
		case <-clockSource.C:
			e.runFlush()
		case fc := <-e.featureChanges:
			e.handleFeatureChange(fc)
		}
	}
}

func (e *Engine) runFlush() {
	if !e.ready.Load() {
		return
	}
	if err := e.FlushImage(); err != nil {
		e.l.WithError(err).Error("Image flush failed")
	}
}

// handleFeatureChange re-invokes operations with currently retained
// state. The remote forgot what it was told, this resends it rather than
// deriving anything new.
func (e *Engine) handleFeatureChange(fc message.FeatureChange) {
	if fc.ResolutionUpdateNeeded {
		g := e.Geometry()
		if g.Width > 0 {
			if err := e.CommitResolution(g.Width, g.Height, false); err != nil {
				e.l.WithError(err).Error("Resolution refresh failed")
			}
		}
	}
	if fc.ImageUpdateNeeded {
		e.MarkFullScreenDirty()
		if err := e.FlushImage(); err != nil {
			e.l.WithError(err).Error("Image refresh failed")
		}
	}
	if fc.CursorShapeNeeded {
		if err := e.SetCursorShape(nil, true); err != nil {
			e.l.WithError(err).Error("Cursor shape refresh failed")
		}
	}
	if fc.CursorPositionNeeded {
		if err := e.SetCursorPosition(0, 0, false, true); err != nil {
			e.l.WithError(err).Error("Cursor position refresh failed")
		}
	}
}
