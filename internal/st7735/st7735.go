// Package st7735 drives ST7735S-class SPI LCD panels, such as the 0.96"
// 160x80 module on the Zero LCD HAT (A).
//
// The controller is a strict state machine: construction walks it through
// hardware reset and the vendor initialization sequence, and any transfer
// failure afterwards parks it in a terminal faulted state. A faulted
// controller is never resumed in place; register state after a failed
// transfer is unknown, so the caller tears it down and builds a new one.
package st7735

import (
	"errors"
	"fmt"
	"image/color"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"

	"lcdhat/internal/rgb565"
)

// Conn is the write-only transport the controller streams bytes through.
// Implementations block until the transfer completes; a transfer either
// fully succeeds or fails.
type Conn interface {
	Tx(p []byte) error
}

// State tracks initialization progress. It only moves forward, except that
// every state can fall into Faulted.
type State uint8

const (
	StateUninitialized State = iota
	StateResetAsserted
	StateResetReleased
	StateCommandSequence
	StateReady
	StateClosed
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateResetAsserted:
		return "reset-asserted"
	case StateResetReleased:
		return "reset-released"
	case StateCommandSequence:
		return "command-sequence"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

var (
	// ErrOutOfBounds means a blit window would exceed the panel.
	ErrOutOfBounds = errors.New("st7735: window out of bounds")
	// ErrNotReady means the controller is not in a state that allows the
	// operation; after a transfer failure that state is Faulted.
	ErrNotReady = errors.New("st7735: controller not ready")
)

// Reset and settle durations. The datasheet wants >=10us of reset pulse and
// 120ms before commands after sleep-out; the vendor reference holds each
// phase for 100ms, which is what field units are validated against.
const (
	resetPulse  = 100 * time.Millisecond
	resetSettle = 120 * time.Millisecond
	slpoutWait  = 120 * time.Millisecond
	disponWait  = 100 * time.Millisecond
)

// Panel RAM is 132 columns x 162 rows; the 160x80 glass maps into it with a
// per-orientation origin offset.
const (
	ramShort = 132
	ramLong  = 162
)

// Rotation selects one of the four panel orientations.
type Rotation uint8

const (
	Rotation0   Rotation = iota // portrait
	Rotation90                  // landscape
	Rotation180                 // portrait, flipped
	Rotation270                 // landscape, flipped
)

// madctl returns the memory-access-control byte for the orientation.
func (r Rotation) madctl() byte {
	switch r {
	case Rotation90:
		return madMX | madMV | madBGR
	case Rotation180:
		return madMX | madMY | madBGR
	case Rotation270:
		return madMY | madMV | madBGR
	default:
		return madBGR
	}
}

// landscape reports whether the row/column exchange bit is set.
func (r Rotation) landscape() bool {
	return r == Rotation90 || r == Rotation270
}

// Pins are the side-band GPIO lines the controller drives. RST and DC are
// required. BL may be nil when the backlight is hardwired; CS may be nil
// when the bus provides hardware chip-select.
type Pins struct {
	RST gpio.PinOut
	DC  gpio.PinOut
	BL  gpio.PinOut
	CS  gpio.PinOut
}

// Opts configures panel geometry.
type Opts struct {
	// W, H are the visible pixel dimensions in the chosen orientation.
	W, H     int
	Rotation Rotation
}

// command is one init-table entry: an opcode, its argument bytes, and an
// optional post-command delay.
type command struct {
	cmd   byte
	args  []byte
	delay time.Duration
}

// initSequence is the vendor ST7735S bring-up for the 0.96" panel. The
// power and gamma registers are order-sensitive; reordering them yields a
// working but visually wrong panel.
func initSequence(rot Rotation) []command {
	return []command{
		{cmd: cmdSLPOUT, delay: slpoutWait},
		{cmd: cmdFRMCTR1, args: []byte{0x01, 0x2C, 0x2D}},
		{cmd: cmdFRMCTR2, args: []byte{0x01, 0x2C, 0x2D}},
		{cmd: cmdFRMCTR3, args: []byte{0x01, 0x2C, 0x2D, 0x01, 0x2C, 0x2D}},
		{cmd: cmdINVCTR, args: []byte{0x07}},
		{cmd: cmdPWCTR1, args: []byte{0xA2, 0x02, 0x84}},
		{cmd: cmdPWCTR2, args: []byte{0xC5}},
		{cmd: cmdPWCTR3, args: []byte{0x0A, 0x00}},
		{cmd: cmdPWCTR4, args: []byte{0x8A, 0x2A}},
		{cmd: cmdPWCTR5, args: []byte{0x8A, 0xEE}},
		{cmd: cmdVMCTR1, args: []byte{0x0E}},
		{cmd: cmdMADCTL, args: []byte{rot.madctl()}},
		{cmd: cmdCOLMOD, args: []byte{colmod16bit}},
		{cmd: cmdGMCTRP1, args: []byte{
			0x0F, 0x1A, 0x0F, 0x18, 0x2F, 0x28, 0x20, 0x22,
			0x1F, 0x1B, 0x23, 0x37, 0x00, 0x07, 0x02, 0x10}},
		{cmd: cmdGMCTRN1, args: []byte{
			0x0F, 0x1B, 0x0F, 0x17, 0x33, 0x2C, 0x29, 0x2E,
			0x30, 0x30, 0x39, 0x3F, 0x00, 0x07, 0x03, 0x10}},
		{cmd: cmdDISPON, delay: disponWait},
	}
}

// Dev is one ST7735S panel.
type Dev struct {
	c    Conn
	rst  gpio.PinOut
	dc   gpio.PinOut
	bl   gpio.PinOut
	cs   gpio.PinOut
	w, h int
	// RAM origin of the visible area in the current orientation.
	colOff, rowOff int
	state          State

	// sleep is swappable so tests can observe reset ordering without
	// real delays.
	sleep func(time.Duration)

	// onClose holds resource releases attached by the opener; they run
	// exactly once.
	onClose []func() error
	mu      sync.Mutex
}

// New builds a Dev over an already-open channel and configured pins, then
// runs the hardware reset and the controller init sequence. On return the
// controller is Ready; on error it must be discarded.
func New(c Conn, pins Pins, opts *Opts) (*Dev, error) {
	return newDev(c, pins, opts, time.Sleep)
}

func newDev(c Conn, pins Pins, opts *Opts, sleep func(time.Duration)) (*Dev, error) {
	if c == nil {
		return nil, errors.New("st7735: nil connection")
	}
	if pins.RST == nil || pins.DC == nil {
		return nil, errors.New("st7735: RST and DC pins are required")
	}
	if opts == nil {
		opts = &Opts{W: 160, H: 80, Rotation: Rotation90}
	}
	maxW, maxH := ramShort, ramLong
	if opts.Rotation.landscape() {
		maxW, maxH = ramLong, ramShort
	}
	if opts.W <= 0 || opts.H <= 0 || opts.W > maxW || opts.H > maxH {
		return nil, fmt.Errorf("st7735: %dx%d does not fit %dx%d RAM in rotation %d",
			opts.W, opts.H, maxW, maxH, opts.Rotation)
	}

	d := &Dev{
		c:      c,
		rst:    pins.RST,
		dc:     pins.DC,
		bl:     pins.BL,
		cs:     pins.CS,
		w:      opts.W,
		h:      opts.H,
		colOff: (maxW - opts.W) / 2,
		rowOff: (maxH - opts.H) / 2,
		state:  StateUninitialized,
		sleep:  sleep,
	}

	if err := d.reset(); err != nil {
		return nil, err
	}
	d.state = StateCommandSequence
	for _, c := range initSequence(opts.Rotation) {
		if err := d.writeCommand(c.cmd, c.args...); err != nil {
			return nil, err
		}
		if c.delay > 0 {
			d.sleep(c.delay)
		}
	}
	d.state = StateReady
	return d, nil
}

// reset runs the RST pulse and enforces the post-release settling delay
// before returning, so no caller can clock out SPI traffic early.
func (d *Dev) reset() error {
	if err := d.rst.Out(gpio.High); err != nil {
		return d.fault("reset high", err)
	}
	d.sleep(resetPulse)

	d.state = StateResetAsserted
	if err := d.rst.Out(gpio.Low); err != nil {
		return d.fault("reset assert", err)
	}
	d.sleep(resetPulse)

	if err := d.rst.Out(gpio.High); err != nil {
		return d.fault("reset release", err)
	}
	d.state = StateResetReleased
	d.sleep(resetSettle)
	return nil
}

// fault records a transfer failure and parks the controller.
func (d *Dev) fault(op string, err error) error {
	d.state = StateFaulted
	return fmt.Errorf("st7735: %s: %w", op, err)
}

// csLow asserts the software chip-select, when one is wired.
func (d *Dev) csLow() error {
	if d.cs == nil {
		return nil
	}
	return d.cs.Out(gpio.Low)
}

func (d *Dev) csHigh() error {
	if d.cs == nil {
		return nil
	}
	return d.cs.Out(gpio.High)
}

// writeCommand transmits one opcode with DC low, then its argument bytes
// with DC high. DC must be stable around every byte clocked out; it is a
// side-band select line, not part of the SPI frame.
func (d *Dev) writeCommand(cmd byte, args ...byte) error {
	if err := d.dc.Out(gpio.Low); err != nil {
		return d.fault("dc low", err)
	}
	if err := d.csLow(); err != nil {
		return d.fault("cs assert", err)
	}
	if err := d.c.Tx([]byte{cmd}); err != nil {
		_ = d.csHigh()
		return d.fault(fmt.Sprintf("command 0x%02X", cmd), err)
	}
	if len(args) > 0 {
		if err := d.dc.Out(gpio.High); err != nil {
			_ = d.csHigh()
			return d.fault("dc high", err)
		}
		if err := d.c.Tx(args); err != nil {
			_ = d.csHigh()
			return d.fault(fmt.Sprintf("args of 0x%02X", cmd), err)
		}
	}
	if err := d.csHigh(); err != nil {
		return d.fault("cs release", err)
	}
	return nil
}

// writeData streams a data block with DC high.
func (d *Dev) writeData(p []byte) error {
	if err := d.dc.Out(gpio.High); err != nil {
		return d.fault("dc high", err)
	}
	if err := d.csLow(); err != nil {
		return d.fault("cs assert", err)
	}
	if err := d.c.Tx(p); err != nil {
		_ = d.csHigh()
		return d.fault("data", err)
	}
	if err := d.csHigh(); err != nil {
		return d.fault("cs release", err)
	}
	return nil
}

// setWindow programs the controller's addressing window and opens RAM for
// writing. Coordinates are panel-relative; the RAM origin offset is applied
// here.
func (d *Dev) setWindow(x0, y0, x1, y1 int) error {
	x0, x1 = x0+d.colOff, x1+d.colOff
	y0, y1 = y0+d.rowOff, y1+d.rowOff
	if err := d.writeCommand(cmdCASET,
		byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	if err := d.writeCommand(cmdRASET,
		byte(y0>>8), byte(y0), byte(y1>>8), byte(y1)); err != nil {
		return err
	}
	return d.writeCommand(cmdRAMWR)
}

// Blit streams fb into the window anchored at (x, y). The window is checked
// against panel geometry before any SPI traffic: a partially-programmed
// window would corrupt the next draw.
func (d *Dev) Blit(fb *rgb565.Buffer, x, y int) error {
	if d.state != StateReady {
		return fmt.Errorf("st7735: blit in state %s: %w", d.state, ErrNotReady)
	}
	if fb == nil || len(fb.Pix) != fb.W*fb.H*2 {
		return errors.New("st7735: malformed framebuffer")
	}
	if x < 0 || y < 0 || x+fb.W > d.w || y+fb.H > d.h {
		return fmt.Errorf("st7735: %dx%d at (%d,%d) on %dx%d panel: %w",
			fb.W, fb.H, x, y, d.w, d.h, ErrOutOfBounds)
	}
	if err := d.setWindow(x, y, x+fb.W-1, y+fb.H-1); err != nil {
		return err
	}
	return d.writeData(fb.Pix)
}

// Clear fills the whole panel with one color.
func (d *Dev) Clear(c color.Color) error {
	fb := rgb565.New(d.w, d.h)
	fb.Fill(c)
	return d.Blit(fb, 0, 0)
}

// SetBacklight switches the BL line. Valid once reset has started and until
// the controller is closed or faulted; the backlight is independent of
// pixel content.
func (d *Dev) SetBacklight(on bool) error {
	switch d.state {
	case StateUninitialized, StateClosed, StateFaulted:
		return fmt.Errorf("st7735: backlight in state %s: %w", d.state, ErrNotReady)
	}
	if d.bl == nil {
		return errors.New("st7735: no backlight line wired")
	}
	level := gpio.Low
	if on {
		level = gpio.High
	}
	if err := d.bl.Out(level); err != nil {
		return d.fault("backlight", err)
	}
	return nil
}

// State reports the current controller state.
func (d *Dev) State() State { return d.state }

// Size returns the visible panel dimensions.
func (d *Dev) Size() (w, h int) { return d.w, d.h }

func (d *Dev) String() string {
	return fmt.Sprintf("st7735.Dev{%dx%d %s}", d.w, d.h, d.state)
}

// Close puts the panel to sleep best-effort, then releases the resources
// the opener attached. Idempotent; safe on a faulted controller.
func (d *Dev) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateClosed {
		return nil
	}
	if d.state == StateReady {
		if d.bl != nil {
			_ = d.bl.Out(gpio.Low)
		}
		_ = d.writeCommand(cmdDISPOFF)
		_ = d.writeCommand(cmdSLPIN)
	}
	d.state = StateClosed

	var first error
	for _, f := range d.onClose {
		if err := f(); err != nil && first == nil {
			first = err
		}
	}
	d.onClose = nil
	return first
}
