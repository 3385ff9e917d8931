package tcpcore

// Connection, Sender, and Receiver are not safe for concurrent use — each
// Connection is meant to be driven by a single owning goroutine that
// serializes SegmentReceived, Write, and Tick calls, the same way a single
// thread owns a kernel TCB.

// Config carries the tunable knobs for a connection's sender/receiver behavior.
type Config struct {
	DefaultCapacity    int
	InitialRetxTimeout uint64 // ms
	MaxRetxAttempts    int
	FixedISN           *uint32
}

// DefaultConfig mirrors the teacher's style of sensible zero-config
// defaults.
func DefaultConfig() Config {
	return Config{
		DefaultCapacity:    64000,
		InitialRetxTimeout: 1000,
		MaxRetxAttempts:    8,
	}
}

// Connection stitches a Sender and Receiver into a full-duplex TCP state
// machine: ACK/window stamping, RST handling, linger/TIME_WAIT-like
// semantics, and the retransmission-abort threshold.
type Connection struct {
	cfg Config

	sender   *Sender
	receiver *Receiver

	outbound []Segment

	timeSinceLastSegmentMs uint64
	active                 bool
	lingerAfterStreamsFinish bool

	isn uint32
}

// NewConnection creates an inactive connection ready to either Connect()
// (active open) or receive a SYN (passive open).
func NewConnection(cfg Config) *Connection {
	isn := randomISN()
	if cfg.FixedISN != nil {
		isn = *cfg.FixedISN
	}
	return &Connection{
		cfg:                      cfg,
		sender:                   NewSender(isn, cfg.DefaultCapacity, cfg.InitialRetxTimeout),
		receiver:                 NewReceiver(cfg.DefaultCapacity),
		active:                   true,
		lingerAfterStreamsFinish: true,
		isn:                      isn,
	}
}

// Sender exposes the owned sender (for tests and introspection).
func (c *Connection) Sender() *Sender { return c.sender }

// Receiver exposes the owned receiver (for tests and introspection).
func (c *Connection) Receiver() *Receiver { return c.receiver }

// Active reports whether the connection is still alive.
func (c *Connection) Active() bool { return c.active }

// stamp fills in ack/ackno/win on every outbound segment per spec's
// outbound-stamping rule, using receiver state observed at stamping time.
func (c *Connection) stamp(seg Segment) Segment {
	seg.ACK = c.receiver.SynReceived()
	if ackno, ok := c.receiver.Ackno(); ok {
		seg.Ackno = ackno
	}
	win := c.receiver.WindowSize()
	seg.Win = win
	return seg
}

func (c *Connection) flush() {
	for _, seg := range c.sender.DequeueOutbound() {
		c.outbound = append(c.outbound, c.stamp(seg))
	}
}

// DequeueOutbound drains and returns all segments ready for the network,
// in production order.
func (c *Connection) DequeueOutbound() []Segment {
	out := c.outbound
	c.outbound = nil
	return out
}

// Connect performs the active open: emits the initial SYN.
func (c *Connection) Connect() {
	c.sender.FillWindow()
	c.flush()
}

// Write hands data to the sender's outbound stream and fills the window.
func (c *Connection) Write(data []byte) int {
	n := c.sender.Stream().Write(data)
	c.sender.FillWindow()
	c.flush()
	return n
}

// EndInputStream signals that the local application has no more data to
// send.
func (c *Connection) EndInputStream() {
	c.sender.Stream().EndInput()
	c.sender.FillWindow()
	c.flush()
}

// emitRST drains the sender's outbound queue, emits one empty RST segment,
// errors both streams, and marks the connection inactive.
func (c *Connection) emitRST() {
	c.sender.DequeueOutbound() // drop anything already queued, unstamped
	c.sender.SendEmptySegment()
	segs := c.sender.DequeueOutbound()
	if len(segs) > 0 {
		seg := segs[len(segs)-1]
		seg.RST = true
		c.outbound = append(c.outbound, c.stamp(seg))
	}
	c.errorBothStreams()
	c.active = false
}

func (c *Connection) errorBothStreams() {
	c.sender.Stream().SetError()
	c.receiver.Reassembler().Output().SetError()
}

// localSynSent reports whether this side has sent a SYN (active-open or
// after receiving one).
func (c *Connection) localSynSent() bool { return c.sender.synSent }

// SegmentReceived dispatches an inbound segment to the receiver and
// sender, stamps and enqueues any resulting outbound segments.
func (c *Connection) SegmentReceived(seg Segment) {
	c.timeSinceLastSegmentMs = 0

	c.receiver.SegmentReceived(seg)

	if seg.RST {
		switch {
		case !c.localSynSent():
			// ignore
		case c.localSynSent() && !c.sender.oldSyn && !seg.ACK:
			// SYN sent, no ACK yet, and the incoming RST carries no ACK:
			// defends against reflected bogus resets before the handshake
			// completes.
		case c.localSynSent() && !c.sender.oldSyn && seg.ACK:
			c.sender.DequeueOutbound()
			c.errorBothStreams()
			c.active = false
			return
		default:
			c.emitRST()
			return
		}
	}

	if seg.ACK {
		if c.localSynSent() {
			ok := c.sender.AckReceived(seg.Ackno, seg.Win)
			if ok {
				c.flush()
			} else if c.sender.oldSyn {
				c.sender.SendEmptySegment()
				c.flush()
			}
			// else: future ACK before any valid ACK retired the SYN; drop silently.
		}
	}

	if seg.LengthInSequenceSpace() > 0 {
		c.sender.FillWindow()
		if len(c.sender.outbound) == 0 {
			c.sender.SendEmptySegment()
		}
		c.flush()
	}

	if c.receiver.Reassembler().Output().EOF() &&
		!c.sender.Stream().EOF() &&
		c.localSynSent() {
		c.lingerAfterStreamsFinish = false
	}
}

// Tick advances the connection's clock: drives the sender's retransmit
// timer, stamps/enqueues any retransmission, aborts on too many
// consecutive retransmissions, and implements the half-close and
// active-close (TIME_WAIT-like) shutdown rules.
func (c *Connection) Tick(dtMs uint64) {
	if !c.active {
		return
	}

	c.timeSinceLastSegmentMs += dtMs

	before := len(c.sender.outbound)
	c.sender.Tick(dtMs)
	if len(c.sender.outbound) > before {
		segs := c.sender.DequeueOutbound()
		for _, seg := range segs {
			stamped := c.stamp(seg)
			if c.sender.consecutiveRtx > c.cfg.MaxRetxAttempts {
				stamped.RST = true
				c.errorBothStreams()
				c.active = false
			}
			c.outbound = append(c.outbound, stamped)
		}
		if !c.active {
			return
		}
	}

	// Half-close shutdown: we will not linger for a passively-closed peer.
	if !c.lingerAfterStreamsFinish && c.sender.finSent && c.sender.bytesInFlight == 0 {
		c.active = false
		return
	}

	// Active-close (TIME_WAIT analog).
	if c.receiver.Reassembler().Output().EOF() &&
		c.sender.Stream().EOF() &&
		c.sender.finSent &&
		c.sender.bytesInFlight == 0 &&
		c.lingerAfterStreamsFinish &&
		c.timeSinceLastSegmentMs >= 10*c.cfg.InitialRetxTimeout {
		c.active = false
	}
}

// Close performs the destructor's duty: if the connection is still active
// when the embedder is done with it, emit a final RST.
func (c *Connection) Close() {
	if c.active {
		c.emitRST()
	}
}
