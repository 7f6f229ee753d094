package st7735

import (
	"errors"
	"sync"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"lcdhat/internal/rgb565"
)

// event is one entry in the shared harness log: a pin edge, a sleep, or an
// SPI transfer with the DC level sampled at transmit time.
type event struct {
	kind  string // "pin", "sleep", "tx"
	pin   string
	level gpio.Level
	d     time.Duration
	data  []byte
	dc    gpio.Level
	panel int
}

type harness struct {
	mu     sync.Mutex
	events []event
}

func (h *harness) add(e event) {
	h.mu.Lock()
	h.events = append(h.events, e)
	h.mu.Unlock()
}

func (h *harness) reset() {
	h.mu.Lock()
	h.events = nil
	h.mu.Unlock()
}

func (h *harness) txs() []event {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []event
	for _, e := range h.events {
		if e.kind == "tx" {
			out = append(out, e)
		}
	}
	return out
}

// fakePin is a recording gpio.PinOut.
type fakePin struct {
	name  string
	h     *harness
	level gpio.Level
	fail  bool
}

func (p *fakePin) String() string   { return p.name }
func (p *fakePin) Halt() error      { return nil }
func (p *fakePin) Name() string     { return p.name }
func (p *fakePin) Number() int      { return -1 }
func (p *fakePin) Function() string { return "Out" }

func (p *fakePin) Out(l gpio.Level) error {
	if p.fail {
		return errors.New("pin failure injected")
	}
	p.level = l
	if p.h != nil {
		p.h.add(event{kind: "pin", pin: p.name, level: l})
	}
	return nil
}

func (p *fakePin) PWM(gpio.Duty, physic.Frequency) error {
	return errors.New("pwm not supported")
}

// fakeConn records transfers along with the DC level at transmit time.
type fakeConn struct {
	h     *harness
	dc    *fakePin
	panel int

	failNext bool
	txCount  int
}

func (c *fakeConn) Tx(p []byte) error {
	if c.failNext {
		return errors.New("transfer failure injected")
	}
	c.txCount++
	cp := make([]byte, len(p))
	copy(cp, p)
	c.h.add(event{kind: "tx", data: cp, dc: c.dc.level, panel: c.panel})
	return nil
}

// rig builds a Ready controller over a fresh harness.
func rig(t *testing.T, opts *Opts) (*Dev, *fakeConn, *harness) {
	t.Helper()
	h := &harness{}
	dc := &fakePin{name: "dc", h: h}
	conn := &fakeConn{h: h, dc: dc}
	pins := Pins{
		RST: &fakePin{name: "rst", h: h},
		DC:  dc,
		BL:  &fakePin{name: "bl", h: h},
	}
	sleep := func(d time.Duration) { h.add(event{kind: "sleep", d: d}) }
	d, err := newDev(conn, pins, opts, sleep)
	if err != nil {
		t.Fatalf("newDev: %v", err)
	}
	return d, conn, h
}

func TestNewReachesReady(t *testing.T) {
	d, _, _ := rig(t, nil)
	if d.State() != StateReady {
		t.Fatalf("state = %s, want ready", d.State())
	}
	if w, h := d.Size(); w != 160 || h != 80 {
		t.Fatalf("size = %dx%d, want 160x80", w, h)
	}
}

// No SPI byte may be clocked out before the reset settling delay has
// elapsed: after the final RST high edge there must be a settle sleep
// before the first transfer.
func TestNoTransferBeforeResetSettle(t *testing.T) {
	_, _, h := rig(t, nil)

	lastRSTHigh := -1
	firstTx := -1
	for i, e := range h.events {
		if e.kind == "pin" && e.pin == "rst" && e.level == gpio.High {
			if firstTx == -1 {
				lastRSTHigh = i
			}
		}
		if e.kind == "tx" && firstTx == -1 {
			firstTx = i
		}
	}
	if lastRSTHigh == -1 || firstTx == -1 {
		t.Fatal("harness did not observe reset release and a transfer")
	}
	if firstTx < lastRSTHigh {
		t.Fatal("SPI traffic before reset release")
	}
	var settled time.Duration
	for _, e := range h.events[lastRSTHigh:firstTx] {
		if e.kind == "sleep" {
			settled += e.d
		}
	}
	if settled < 100*time.Millisecond {
		t.Errorf("only %v of settling before first transfer, want >= 100ms", settled)
	}
}

func TestInitSequenceOrder(t *testing.T) {
	_, _, h := rig(t, nil)

	var cmds []byte
	for _, e := range h.txs() {
		if e.dc == gpio.Low && len(e.data) == 1 {
			cmds = append(cmds, e.data[0])
		}
	}
	want := []byte{
		cmdSLPOUT, cmdFRMCTR1, cmdFRMCTR2, cmdFRMCTR3, cmdINVCTR,
		cmdPWCTR1, cmdPWCTR2, cmdPWCTR3, cmdPWCTR4, cmdPWCTR5,
		cmdVMCTR1, cmdMADCTL, cmdCOLMOD, cmdGMCTRP1, cmdGMCTRN1,
		cmdDISPON,
	}
	if len(cmds) != len(want) {
		t.Fatalf("init issued %d commands, want %d", len(cmds), len(want))
	}
	for i := range want {
		if cmds[i] != want[i] {
			t.Errorf("init command %d = 0x%02X, want 0x%02X", i, cmds[i], want[i])
		}
	}
}

func TestFullFrameBlit(t *testing.T) {
	d, _, h := rig(t, nil)
	h.reset()

	fb := rgb565.New(160, 80)
	if err := d.Blit(fb, 0, 0); err != nil {
		t.Fatalf("Blit: %v", err)
	}

	var cmds []event
	var data []event
	for _, e := range h.txs() {
		if e.dc == gpio.Low {
			cmds = append(cmds, e)
		} else {
			data = append(data, e)
		}
	}
	// Two window-set commands plus the RAM write opcode.
	if len(cmds) != 3 || cmds[0].data[0] != cmdCASET || cmds[1].data[0] != cmdRASET || cmds[2].data[0] != cmdRAMWR {
		t.Fatalf("command stream = %v, want CASET, RASET, RAMWR", cmds)
	}
	// Window args for landscape: RAM origin offset (1, 26).
	wantCA := []byte{0x00, 0x01, 0x00, 0xA0} // 1 .. 160
	for i, b := range wantCA {
		if data[0].data[i] != b {
			t.Errorf("CASET arg %d = 0x%02X, want 0x%02X", i, data[0].data[i], b)
		}
	}
	wantRA := []byte{0x00, 0x1A, 0x00, 0x69} // 26 .. 105
	for i, b := range wantRA {
		if data[1].data[i] != b {
			t.Errorf("RASET arg %d = 0x%02X, want 0x%02X", i, data[1].data[i], b)
		}
	}
	// One data-mode transfer for the frame itself.
	if len(data) != 3 {
		t.Fatalf("%d data transfers, want 3 (two arg blocks + frame)", len(data))
	}
	if len(data[2].data) != 160*80*2 {
		t.Errorf("frame transfer = %d bytes, want %d", len(data[2].data), 160*80*2)
	}
}

func TestBlitOutOfBoundsIssuesNoTraffic(t *testing.T) {
	d, _, h := rig(t, nil)
	h.reset()

	fb := rgb565.New(20, 20)
	err := d.Blit(fb, 150, 0)
	if !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("got %v, want ErrOutOfBounds", err)
	}
	if n := len(h.txs()); n != 0 {
		t.Errorf("%d transfers issued on out-of-bounds blit, want 0", n)
	}
	if d.State() != StateReady {
		t.Errorf("state = %s, want ready (out-of-bounds is recoverable)", d.State())
	}
}

func TestTransferFailureIsTerminal(t *testing.T) {
	d, conn, h := rig(t, nil)

	conn.failNext = true
	if err := d.Blit(rgb565.New(160, 80), 0, 0); err == nil {
		t.Fatal("blit over failing bus should error")
	}
	if d.State() != StateFaulted {
		t.Fatalf("state = %s, want faulted", d.State())
	}

	conn.failNext = false
	h.reset()
	err := d.Blit(rgb565.New(160, 80), 0, 0)
	if !errors.Is(err, ErrNotReady) {
		t.Fatalf("blit on faulted controller: got %v, want ErrNotReady", err)
	}
	if n := len(h.txs()); n != 0 {
		t.Errorf("faulted controller issued %d transfers, want 0", n)
	}
}

func TestBacklightStates(t *testing.T) {
	d, _, _ := rig(t, nil)
	if err := d.SetBacklight(true); err != nil {
		t.Fatalf("backlight on ready controller: %v", err)
	}
	if d.bl.(*fakePin).level != gpio.High {
		t.Error("backlight line not driven high")
	}

	d.state = StateFaulted
	if err := d.SetBacklight(false); !errors.Is(err, ErrNotReady) {
		t.Errorf("backlight on faulted controller: got %v, want ErrNotReady", err)
	}
}

func TestRotationGeometry(t *testing.T) {
	tests := []struct {
		name           string
		opts           *Opts
		colOff, rowOff int
	}{
		{"landscape", &Opts{W: 160, H: 80, Rotation: Rotation90}, 1, 26},
		{"landscape flipped", &Opts{W: 160, H: 80, Rotation: Rotation270}, 1, 26},
		{"portrait", &Opts{W: 80, H: 160, Rotation: Rotation0}, 26, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _ := rig(t, tt.opts)
			if d.colOff != tt.colOff || d.rowOff != tt.rowOff {
				t.Errorf("offsets = (%d,%d), want (%d,%d)", d.colOff, d.rowOff, tt.colOff, tt.rowOff)
			}
		})
	}
}

func TestGeometryRejected(t *testing.T) {
	h := &harness{}
	dc := &fakePin{name: "dc", h: h}
	pins := Pins{RST: &fakePin{name: "rst", h: h}, DC: dc}
	sleep := func(time.Duration) {}

	// 160 wide does not fit the 132-column RAM without row/column exchange.
	if _, err := newDev(&fakeConn{h: h, dc: dc}, pins, &Opts{W: 160, H: 80, Rotation: Rotation0}, sleep); err == nil {
		t.Error("portrait 160x80 should be rejected")
	}
	if n := len(h.txs()); n != 0 {
		t.Errorf("rejected geometry issued %d transfers", n)
	}
}

func TestCloseIdempotentAndReleases(t *testing.T) {
	d, _, _ := rig(t, nil)

	released := 0
	d.onClose = append(d.onClose, func() error { released++; return nil })

	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if released != 1 {
		t.Errorf("release ran %d times, want exactly 1", released)
	}
	if d.State() != StateClosed {
		t.Errorf("state = %s, want closed", d.State())
	}
	if err := d.Blit(rgb565.New(160, 80), 0, 0); !errors.Is(err, ErrNotReady) {
		t.Errorf("blit after close: got %v, want ErrNotReady", err)
	}
}
