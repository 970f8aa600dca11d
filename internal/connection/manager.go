// Package connection drives the lifecycle of the link to the sensor:
// discovery, connection, characteristic selection, subscription and
// liveness polling, restarting from discovery whenever the link is lost.
package connection

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/device"
	"github.com/srg/blestream/internal/reassembly"
	"github.com/srg/blestream/internal/scanner"
)

// Identity names the peripheral to stream from.
type Identity struct {
	// Name is matched as a substring of the advertised local name.
	Name string
}

// Finder locates a peripheral by advertised name; *scanner.Scanner implements it.
type Finder interface {
	Find(ctx context.Context, nameSubstring string) (device.Peripheral, error)
}

// Assembler turns fragments into packets; *reassembly.Reassembler implements it.
type Assembler interface {
	NewBuffer() *reassembly.Buffer
	OnFragment(buf *reassembly.Buffer, fragment []byte) (*reassembly.Packet, error)
}

// PacketSink accepts completed packets without blocking; *forward.Forwarder implements it.
type PacketSink interface {
	Forward(p *reassembly.Packet)
}

// Options holds the lifecycle timings.
type Options struct {
	RetryBackoff time.Duration // wait after a failed connect, resolve or subscribe
	PollInterval time.Duration // liveness check period while streaming
}

// DefaultOptions returns the production timings.
func DefaultOptions() Options {
	return Options{
		RetryBackoff: 30 * time.Second,
		PollInterval: 5 * time.Second,
	}
}

// Params bundles the Manager collaborators.
type Params struct {
	Identity  Identity
	Finder    Finder
	Radio     device.Radio
	Assembler Assembler
	Out       PacketSink
	Options   Options
	Logger    *logrus.Logger
}

// Stats is a snapshot of lifetime counters.
type Stats struct {
	State     State
	Sessions  uint64
	Fragments uint64
	Packets   uint64
}

// Manager runs the connection state machine. Step and Run must be called
// from a single goroutine; State and Stats are safe from any goroutine.
type Manager struct {
	identity  Identity
	finder    Finder
	radio     device.Radio
	assembler Assembler
	out       PacketSink
	opts      Options
	logger    *logrus.Logger

	state  atomic.Int32
	target device.Peripheral
	sess   *session

	sessions  atomic.Uint64
	fragments atomic.Uint64
	packets   atomic.Uint64
}

// NewManager creates a Manager in the Idle state.
func NewManager(p Params) *Manager {
	if p.Logger == nil {
		p.Logger = logrus.New()
	}
	def := DefaultOptions()
	if p.Options.RetryBackoff <= 0 {
		p.Options.RetryBackoff = def.RetryBackoff
	}
	if p.Options.PollInterval <= 0 {
		p.Options.PollInterval = def.PollInterval
	}
	return &Manager{
		identity:  p.Identity,
		finder:    p.Finder,
		radio:     p.Radio,
		assembler: p.Assembler,
		out:       p.Out,
		opts:      p.Options,
		logger:    p.Logger,
	}
}

// State returns the current lifecycle phase.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Stats returns the current counters.
func (m *Manager) Stats() Stats {
	return Stats{
		State:     m.State(),
		Sessions:  m.sessions.Load(),
		Fragments: m.fragments.Load(),
		Packets:   m.packets.Load(),
	}
}

// Run steps the state machine until ctx is done or a session fails fatally.
// The active session, if any, is torn down before returning.
func (m *Manager) Run(ctx context.Context) error {
	defer m.teardown()
	for {
		if _, err := m.Step(ctx); err != nil {
			return err
		}
	}
}

// Step performs one transition and returns the new state. A non-nil error is
// either ctx's error or a fatal streaming failure.
func (m *Manager) Step(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return m.State(), err
	}

	var (
		next State
		err  error
	)
	switch cur := m.State(); cur {
	case Idle:
		m.teardown()
		next = Scanning
	case Scanning:
		next, err = m.scan(ctx)
	case Connecting:
		next, err = m.connect(ctx)
	case ResolvingCharacteristic:
		next, err = m.resolve(ctx)
	case Subscribing:
		next, err = m.subscribe(ctx)
	case Streaming:
		next, err = m.stream(ctx)
	default:
		return cur, fmt.Errorf("invalid state %v", cur)
	}

	if prev := m.State(); prev != next {
		m.logger.WithFields(logrus.Fields{"from": prev, "to": next}).Debug("State transition")
	}
	m.state.Store(int32(next))
	return next, err
}

func (m *Manager) scan(ctx context.Context) (State, error) {
	p, err := m.finder.Find(ctx, m.identity.Name)
	if err != nil {
		return Scanning, err
	}
	m.target = p
	return Connecting, nil
}

func (m *Manager) connect(ctx context.Context) (State, error) {
	log := m.logger.WithFields(logrus.Fields{
		"device":  m.target.Name(),
		"address": m.target.Address(),
	})
	log.Info("Connecting to device...")

	link, err := m.radio.Connect(ctx, m.target)
	if err != nil {
		if ctx.Err() != nil {
			return Scanning, ctx.Err()
		}
		log.WithError(err).Warn("Connection failed")
		return m.retry(ctx)
	}

	id := m.sessions.Add(1)
	m.sess = newSession(id, link, m.assembler.NewBuffer())
	log.WithField("session", id).Info("Connected")
	return ResolvingCharacteristic, nil
}

func (m *Manager) resolve(ctx context.Context) (State, error) {
	c, err := ResolveCharacteristic(m.sess.link)
	if err != nil {
		m.logger.WithError(err).WithField("session", m.sess.id).Warn("No notifying characteristic, disconnecting")
		m.teardown()
		return m.retry(ctx)
	}
	m.sess.char = c
	m.logger.WithFields(logrus.Fields{
		"session":        m.sess.id,
		"characteristic": c.UUID(),
		"properties":     c.Properties(),
	}).Info("Selected characteristic")
	return Subscribing, nil
}

func (m *Manager) subscribe(ctx context.Context) (State, error) {
	sess := m.sess
	err := sess.link.Subscribe(sess.char, func(data []byte) {
		m.onFragment(sess, data)
	})
	if err != nil {
		m.logger.WithError(err).WithField("session", sess.id).Warn("Subscribe failed, disconnecting")
		m.teardown()
		return m.retry(ctx)
	}
	m.logger.WithFields(logrus.Fields{
		"session":  sess.id,
		"address":  sess.address(),
		"charUUID": sess.char.UUID(),
	}).Info("Streaming")
	return Streaming, nil
}

func (m *Manager) stream(ctx context.Context) (State, error) {
	sess := m.sess
	poll := time.NewTimer(m.opts.PollInterval)
	defer poll.Stop()

	select {
	case <-ctx.Done():
		return Streaming, ctx.Err()
	case err := <-sess.fatal:
		m.logger.WithError(err).WithField("session", sess.id).Error("Fragment processing failed")
		m.teardown()
		return Idle, err
	case <-poll.C:
	}

	if sess.link.IsConnected() {
		return Streaming, nil
	}
	m.logger.WithField("session", sess.id).Warn("Device disconnected")
	m.teardown()
	return Idle, nil
}

// retry waits RetryBackoff and sends the machine back to discovery.
func (m *Manager) retry(ctx context.Context) (State, error) {
	m.logger.WithField("retry", m.opts.RetryBackoff).Info("Retrying")
	if err := scanner.Sleep(ctx, m.opts.RetryBackoff); err != nil {
		return Scanning, err
	}
	return Scanning, nil
}

// teardown discards the active session: partial packet, subscription and link.
func (m *Manager) teardown() {
	sess := m.sess
	m.sess = nil
	if sess == nil || !sess.close() {
		return
	}
	if err := sess.link.Disconnect(); err != nil {
		m.logger.WithError(err).WithField("session", sess.id).Debug("Disconnect failed")
	}
}

func (m *Manager) onFragment(sess *session, data []byte) {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.closed {
		return
	}

	m.fragments.Add(1)
	pkt, err := m.assembler.OnFragment(sess.buf, data)
	if err != nil {
		sess.fail(err)
		return
	}
	if pkt == nil {
		return
	}

	sess.seq++
	pkt.Seq = sess.seq
	m.packets.Add(1)
	m.logger.WithFields(logrus.Fields{
		"session": sess.id,
		"seq":     pkt.Seq,
		"samples": len(pkt.Samples),
	}).Debug("Packet complete")
	m.out.Forward(pkt)
}
