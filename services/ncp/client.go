// Package ncp talks to a mesh network co-processor over a byte stream
// (normally a UART). The host registers the device, drives commissioning and
// pushes reports; the co-processor answers with lifecycle signals.
package ncp

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"smokenode/errcode"
	"smokenode/types"
	"smokenode/x/logx"
)

var ErrClosed = errors.New("ncp: link closed")

// Client is the host side of the link. It satisfies the mesh stack and
// report uplink interfaces.
type Client struct {
	rd  *frameReader
	wr  *frameWriter
	log logx.Logger

	sigs  chan types.NetSignal
	seq   atomic.Uint64
	mu    sync.Mutex
	net   types.NetworkInfo
	pongs map[uint64]chan struct{}
	done  chan struct{}
	err   error
}

func NewClient(rw io.ReadWriter, log logx.Logger) *Client {
	return &Client{
		rd:    newFrameReader(rw),
		wr:    newFrameWriter(rw),
		log:   logx.Or(log),
		sigs:  make(chan types.NetSignal, 8),
		pongs: map[uint64]chan struct{}{},
		done:  make(chan struct{}),
	}
}

// Run reads frames until the link fails or ctx ends.
func (c *Client) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		for {
			f, err := c.rd.ReadFrame()
			if err != nil {
				errCh <- err
				return
			}
			if err := c.dispatch(f); err != nil {
				c.log.Warn("bad frame", "type", f.Type, "err", err)
			}
		}
	}()

	var err error
	select {
	case <-ctx.Done():
		_ = c.wr.WriteFrame(Frame{Type: frameClose})
		err = ctx.Err()
	case err = <-errCh:
		err = errcode.Wrap(errcode.LinkDown, "ncp.read", err)
	}
	c.mu.Lock()
	c.err = err
	c.mu.Unlock()
	close(c.done)
	return err
}

func (c *Client) dispatch(f Frame) error {
	switch f.Type {
	case frameSignal:
		s, err := decodeSignal(f.Payload)
		if err != nil {
			return err
		}
		select {
		case c.sigs <- s:
		default:
			c.log.Warn("signal dropped", "kind", s.Kind)
		}
	case frameNetwork:
		ni, err := decodeNetwork(f.Payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		c.net = ni
		c.mu.Unlock()
	case framePong:
		seq, err := decodeSeq(f.Payload)
		if err != nil {
			return err
		}
		c.mu.Lock()
		if ch, ok := c.pongs[seq]; ok {
			close(ch)
			delete(c.pongs, seq)
		}
		c.mu.Unlock()
	case frameClose:
		c.log.Info("co-processor closed the link")
	default:
		return errcode.Frame
	}
	return nil
}

// ---- mesh stack ----

// Register announces the device's endpoint and identity.
func (c *Client) Register(ep uint8, mask uint32, id types.DeviceIdentity) error {
	p := encodeRegister(registration{Endpoint: ep, Mask: mask, Identity: id})
	return c.send(frameRegister, p, "ncp.register")
}

// Start boots the co-processor's stack; it answers with SkipStartup.
func (c *Client) Start() error { return c.send(frameStart, nil, "ncp.start") }

func (c *Client) StartCommissioning(mode types.CommissionMode) error {
	return c.send(frameCommission, encodeMode(mode), "ncp.commission")
}

func (c *Client) Signals() <-chan types.NetSignal { return c.sigs }

func (c *Client) Network() types.NetworkInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.net
}

// ---- reports ----

func (c *Client) SendAlarm(ep uint8, active bool) {
	r := types.AlarmReport{Endpoint: ep, Active: active}
	if err := c.send(frameZoneStatus, encodeZoneStatus(ep, r.ZoneStatus()), "ncp.alarm"); err != nil {
		c.log.Warn("alarm report not sent", "err", err)
	}
}

func (c *Client) ReportAttribute(ep uint8, cluster, attr uint16, value []byte) {
	a := types.AttributeReport{Endpoint: ep, Cluster: cluster, Attr: attr, Value: value}
	if err := c.send(frameAttr, encodeAttr(a), "ncp.attr"); err != nil {
		c.log.Warn("attribute report not sent", "err", err)
	}
}

// Flush waits until the co-processor has consumed everything sent so far,
// using a ping round trip.
func (c *Client) Flush(ctx context.Context) error {
	seq := c.seq.Add(1)
	ch := make(chan struct{})
	c.mu.Lock()
	c.pongs[seq] = ch
	c.mu.Unlock()

	if err := c.send(framePing, encodeSeq(seq), "ncp.flush"); err != nil {
		c.mu.Lock()
		delete(c.pongs, seq)
		c.mu.Unlock()
		return err
	}
	select {
	case <-ch:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.pongs, seq)
		c.mu.Unlock()
		return errcode.Wrap(errcode.Timeout, "ncp.flush", ctx.Err())
	}
}

// Done is closed when Run returns; Err then reports why.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) send(typ byte, payload []byte, op string) error {
	select {
	case <-c.done:
		return errcode.Wrap(errcode.LinkDown, op, ErrClosed)
	default:
	}
	return errcode.Wrap(errcode.LinkDown, op, c.wr.WriteFrame(Frame{Type: typ, Payload: payload}))
}
