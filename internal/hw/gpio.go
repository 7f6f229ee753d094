// Package hw owns the board-facing resources: exported GPIO lines and SPI
// bus/device channels. Acquisition is exclusive and fails fast; releasing is
// idempotent so error unwinds during controller bring-up can always run it.
package hw

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

var (
	// ErrLineUnavailable means the line id is unknown to the board or is
	// already owned by another Line in this process.
	ErrLineUnavailable = errors.New("hw: gpio line unavailable")
	// ErrUnsupportedDirection means the line cannot be driven in the
	// requested direction.
	ErrUnsupportedDirection = errors.New("hw: direction not supported by line")
)

// claims tracks which numeric line ids are owned in-process. The kernel does
// not arbitrate sysfs/chardev line ownership between goroutines, so we do.
var claims = struct {
	mu  sync.Mutex
	ids map[int]bool
}{ids: map[int]bool{}}

// Line is one exported GPIO line. A given numeric id is owned by at most one
// Line at a time; Release returns ownership.
type Line struct {
	id       int
	pin      gpio.PinIO
	isOutput bool
	released bool
}

// AcquireLine claims the line with the given numeric id.
func AcquireLine(id int) (*Line, error) {
	claims.mu.Lock()
	defer claims.mu.Unlock()
	if claims.ids[id] {
		return nil, fmt.Errorf("hw: line %d already claimed: %w", id, ErrLineUnavailable)
	}
	// Host drivers register pins as "GPIO<n>"; some also alias the bare
	// number.
	pin := gpioreg.ByName(fmt.Sprintf("GPIO%d", id))
	if pin == nil {
		pin = gpioreg.ByName(strconv.Itoa(id))
	}
	if pin == nil {
		return nil, fmt.Errorf("hw: line %d not present on this board: %w", id, ErrLineUnavailable)
	}
	claims.ids[id] = true
	return &Line{id: id, pin: pin}, nil
}

// ID returns the numeric line identifier.
func (l *Line) ID() int { return l.id }

// Output configures the line as an output driven to initial.
func (l *Line) Output(initial gpio.Level) error {
	if err := l.pin.Out(initial); err != nil {
		return fmt.Errorf("hw: line %d as output: %v: %w", l.id, err, ErrUnsupportedDirection)
	}
	l.isOutput = true
	return nil
}

// Input configures the line as an input with no pull.
func (l *Line) Input() error {
	if err := l.pin.In(gpio.Float, gpio.NoEdge); err != nil {
		return fmt.Errorf("hw: line %d as input: %v: %w", l.id, err, ErrUnsupportedDirection)
	}
	l.isOutput = false
	return nil
}

// Write drives the line. The line must be configured as an output first.
func (l *Line) Write(level gpio.Level) error {
	if !l.isOutput {
		return fmt.Errorf("hw: line %d written before Output()", l.id)
	}
	if err := l.pin.Out(level); err != nil {
		return fmt.Errorf("hw: line %d write: %w", l.id, err)
	}
	return nil
}

// Read samples the line. Valid in either direction.
func (l *Line) Read() gpio.Level {
	return l.pin.Read()
}

// Pin exposes the underlying periph pin for composition with drivers that
// take gpio.PinOut directly.
func (l *Line) Pin() gpio.PinIO { return l.pin }

// Release halts the line and returns its id to the pool. Safe to call more
// than once; every teardown path may run it unconditionally.
func (l *Line) Release() error {
	if l.released {
		return nil
	}
	l.released = true
	claims.mu.Lock()
	delete(claims.ids, l.id)
	claims.mu.Unlock()
	if err := l.pin.Halt(); err != nil {
		return fmt.Errorf("hw: line %d halt: %w", l.id, err)
	}
	return nil
}
