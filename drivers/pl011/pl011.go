// Package pl011 drives an ARM PrimeCell UART.
//
// The port takes its reference clock from the registered clock provider
// named "uartclk" (or the first clock of the node) and programs the
// integer/fractional baud divisors from it. Received bytes move from the
// hardware FIFO into a ring in HandleIRQ; transmitted bytes go out through
// a second ring drained into the configured sink.
package pl011

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"drivercore-go/device"
	"drivercore-go/driver"
	"drivercore-go/errcode"
	"drivercore-go/register"
	"drivercore-go/types"
	"drivercore-go/x/ring"
)

const (
	DefaultBaud     = 115200
	DefaultRingSize = 256
	fifoDepth       = 32
)

type Options struct {
	// Sink receives transmitted bytes; nil discards them.
	Sink io.Writer
	// Baud defaults to DefaultBaud.
	Baud uint32
	// RingSize is the size of each software ring, a power of two.
	RingSize int
}

func (o Options) withDefaults() Options {
	if o.Sink == nil {
		o.Sink = io.Discard
	}
	if o.Baud == 0 {
		o.Baud = DefaultBaud
	}
	if o.RingSize == 0 {
		o.RingSize = DefaultRingSize
	}
	return o
}

type Port struct {
	desc  types.Descriptor
	reg   *device.Registry
	base  uint64
	clkHz uint64
	opts  Options

	ibrd, fbrd uint32

	wire *ring.Ring // bytes arriving on the line, i.e. the hardware FIFO
	rx   *ring.Ring
	tx   *ring.Ring

	txMu    sync.Mutex
	txTaken atomic.Bool
	rxTaken atomic.Bool
	open    atomic.Bool
}

func Record(opts Options) register.Record {
	opts = opts.withDefaults()
	return register.Record{
		Name:     "pl011",
		Level:    register.PostKernel,
		Priority: register.PriorityDefault,
		ProbeKinds: []register.ProbeKind{register.Fdt{
			Compatibles: []string{"arm,pl011"},
			OnProbe: func(info register.FdtInfo, dev *device.PlatformDevice) (driver.Driver, error) {
				return probe(info, dev, opts)
			},
		}},
	}
}

func probe(info register.FdtInfo, dev *device.PlatformDevice, opts Options) (driver.Driver, error) {
	regs, err := info.Node.Reg()
	if err != nil {
		return nil, err
	}
	if len(regs) == 0 {
		return nil, errcode.New(errcode.MalformedTree, "pl011", info.Node.Path()+": no reg")
	}
	hz, err := clockRate(dev)
	if err != nil {
		return nil, err
	}
	return New(dev.Descriptor, dev.Registry(), regs[0].Address, hz, opts), nil
}

// clockRate reads the reference clock. A provider that has not been
// probed yet declines the node so a later pass can retry.
func clockRate(dev *device.PlatformDevice) (uint64, error) {
	ref, ok := dev.Descriptor.ClockByName("uartclk")
	if !ok {
		if len(dev.Descriptor.Clocks) == 0 {
			return 0, nil
		}
		ref = dev.Descriptor.Clocks[0]
	}
	clk, err := device.Get[driver.Clk](dev.Registry(), ref.Device)
	if err != nil {
		if errcode.Of(err) == errcode.NotFound {
			return 0, errcode.Wrap(errcode.NotMatch, "pl011", err)
		}
		return 0, err
	}
	g, err := clk.Lock()
	if err != nil {
		return 0, err
	}
	defer g.Unlock()
	if err := g.Driver().Enable(); err != nil {
		return 0, err
	}
	return g.Driver().Rate(ref.ID)
}

// New builds a port. clkHz 0 keeps whatever divisor firmware programmed.
func New(desc types.Descriptor, reg *device.Registry, base, clkHz uint64, opts Options) *Port {
	opts = opts.withDefaults()
	return &Port{
		desc:  desc,
		reg:   reg,
		base:  base,
		clkHz: clkHz,
		opts:  opts,
		wire:  ring.New(fifoDepth),
		rx:    ring.New(opts.RingSize),
		tx:    ring.New(opts.RingSize),
	}
}

// Divisors computes IBRD and FBRD for baud from a reference clock.
func Divisors(clkHz uint64, baud uint32) (ibrd, fbrd uint32, err error) {
	if baud == 0 {
		return 0, 0, errcode.New(errcode.InvalidParams, "pl011", "baud 0")
	}
	// 64 * clk / (16 * baud), rounded.
	div := (clkHz*8/uint64(baud) + 1) / 2
	ibrd, fbrd = uint32(div>>6), uint32(div&63)
	if ibrd == 0 || ibrd > 0xffff {
		return 0, 0, errcode.New(errcode.InvalidParams, "pl011", fmt.Sprintf("%d baud unreachable from %d Hz", baud, clkHz))
	}
	return ibrd, fbrd, nil
}

// Open programs the divisors and unmasks the port's interrupt at its
// parent controller.
func (p *Port) Open() error {
	if p.clkHz != 0 {
		ibrd, fbrd, err := Divisors(p.clkHz, p.opts.Baud)
		if err != nil {
			return err
		}
		p.ibrd, p.fbrd = ibrd, fbrd
	}
	if err := p.unmask(); err != nil {
		return err
	}
	p.open.Store(true)
	return nil
}

func (p *Port) unmask() error {
	if p.desc.IrqParent == nil || len(p.desc.Irqs) == 0 || p.reg == nil {
		return nil
	}
	intc, err := device.Get[driver.Intc](p.reg, *p.desc.IrqParent)
	if err != nil {
		return err
	}
	g, err := intc.Lock()
	if err != nil {
		return err
	}
	defer g.Unlock()
	irq := p.desc.Irqs[0]
	if err := g.Driver().SetTrigger(irq.Irq, irq.Trigger); err != nil && errcode.Of(err) != errcode.Unsupported {
		return err
	}
	return g.Driver().IrqEnable(irq.Irq)
}

func (p *Port) Close() error {
	p.open.Store(false)
	p.flushTx()
	return nil
}

// Divisor returns the programmed integer and fractional divisors.
func (p *Port) Divisor() (ibrd, fbrd uint32) { return p.ibrd, p.fbrd }

// Base returns the register base from the tree.
func (p *Port) Base() uint64 { return p.base }

// Inject feeds bytes into the receive FIFO as if they arrived on the line.
// It returns how many fit.
func (p *Port) Inject(b []byte) int { return p.wire.Push(b) }

// HandleIRQ moves received bytes into the rx ring and drains tx.
func (p *Port) HandleIRQ() {
	var buf [fifoDepth]byte
	for {
		n := p.wire.Pop(buf[:min(len(buf), p.rx.Space())])
		if n == 0 {
			break
		}
		p.rx.Push(buf[:n])
	}
	p.flushTx()
}

func (p *Port) flushTx() {
	if !p.txMu.TryLock() {
		return
	}
	defer p.txMu.Unlock()
	var buf [fifoDepth]byte
	for {
		n := p.tx.Pop(buf[:])
		if n == 0 {
			return
		}
		_, _ = p.opts.Sink.Write(buf[:n])
	}
}

// TakeTx hands out the transmit half, or nil while it is taken.
func (p *Port) TakeTx() io.WriteCloser {
	if !p.txTaken.CompareAndSwap(false, true) {
		return nil
	}
	return &txHalf{p: p}
}

// TakeRx hands out the receive half, or nil while it is taken.
func (p *Port) TakeRx() io.ReadCloser {
	if !p.rxTaken.CompareAndSwap(false, true) {
		return nil
	}
	return &rxHalf{p: p, done: make(chan struct{})}
}

type txHalf struct {
	p      *Port
	closed bool
}

func (t *txHalf) Write(b []byte) (int, error) {
	if t.closed {
		return 0, io.ErrClosedPipe
	}
	total := 0
	for len(b) > 0 {
		n := t.p.tx.Push(b)
		total += n
		b = b[n:]
		t.p.flushTx()
	}
	return total, nil
}

func (t *txHalf) Close() error {
	if !t.closed {
		t.closed = true
		t.p.flushTx()
		t.p.txTaken.Store(false)
	}
	return nil
}

type rxHalf struct {
	p    *Port
	done chan struct{}
	once sync.Once
}

// Read blocks until at least one byte has been received or the half is
// closed.
func (r *rxHalf) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	for {
		if n := r.p.rx.Pop(b); n > 0 {
			return n, nil
		}
		select {
		case <-r.p.rx.Readable():
		case <-r.done:
			return 0, io.EOF
		}
	}
}

func (r *rxHalf) Close() error {
	r.once.Do(func() {
		close(r.done)
		r.p.rxTaken.Store(false)
	})
	return nil
}
