package st7735

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"lcdhat/internal/config"
	"lcdhat/internal/hw"
)

// rotationOf maps the config degree value onto a Rotation.
func rotationOf(deg int) (Rotation, error) {
	switch deg {
	case 0:
		return Rotation0, nil
	case 90:
		return Rotation90, nil
	case 180:
		return Rotation180, nil
	case 270:
		return Rotation270, nil
	default:
		return 0, fmt.Errorf("st7735: rotation %d not one of 0/90/180/270", deg)
	}
}

// Open brings one configured panel up: acquires its GPIO lines, opens the
// SPI channel, and walks the controller to Ready. Every resource acquired
// before a failure is released again before Open returns, so a failed
// bring-up never leaks a claimed line or device node.
func Open(p config.Panel) (*Dev, error) {
	rot, err := rotationOf(p.Rotation)
	if err != nil {
		return nil, err
	}

	var cleanup []func() error
	unwind := func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			_ = cleanup[i]()
		}
	}

	acquire := func(id int, initial gpio.Level) (*hw.Line, error) {
		l, err := hw.AcquireLine(id)
		if err != nil {
			return nil, err
		}
		cleanup = append(cleanup, l.Release)
		if err := l.Output(initial); err != nil {
			return nil, err
		}
		return l, nil
	}

	rst, err := acquire(*p.Pins.Reset, gpio.High)
	if err != nil {
		unwind()
		return nil, fmt.Errorf("st7735: reset line: %w", err)
	}
	dc, err := acquire(*p.Pins.DC, gpio.Low)
	if err != nil {
		unwind()
		return nil, fmt.Errorf("st7735: dc line: %w", err)
	}

	pins := Pins{RST: rst.Pin(), DC: dc.Pin()}
	if p.Pins.Backlight != nil {
		bl, err := acquire(*p.Pins.Backlight, gpio.High)
		if err != nil {
			unwind()
			return nil, fmt.Errorf("st7735: backlight line: %w", err)
		}
		pins.BL = bl.Pin()
	}
	if p.Pins.CS != nil {
		cs, err := acquire(*p.Pins.CS, gpio.High)
		if err != nil {
			unwind()
			return nil, fmt.Errorf("st7735: chip-select line: %w", err)
		}
		pins.CS = cs.Pin()
	}

	ch, err := hw.OpenChannel(p.SPIBus, p.SPIDevice, physic.Frequency(p.SPIHz)*physic.Hertz)
	if err != nil {
		unwind()
		return nil, err
	}
	cleanup = append(cleanup, ch.Close)

	d, err := New(ch, pins, &Opts{W: p.Width, H: p.Height, Rotation: rot})
	if err != nil {
		unwind()
		return nil, err
	}
	d.onClose = cleanup
	return d, nil
}

// OpenSet brings up every configured panel and wraps them in a Set. On any
// failure the panels already opened are closed again.
func OpenSet(cfg *config.Config) (*Set, error) {
	var devs []*Dev
	for i := range cfg.Panels {
		d, err := Open(cfg.Panels[i])
		if err != nil {
			for _, prev := range devs {
				_ = prev.Close()
			}
			return nil, fmt.Errorf("st7735: panel %d: %w", i, err)
		}
		devs = append(devs, d)
	}
	return NewSet(devs...)
}
