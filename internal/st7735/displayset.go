package st7735

import (
	"errors"
	"fmt"
	"sync"

	"lcdhat/internal/rgb565"
)

// ErrPanelIndex means a Set operation addressed a panel that is not
// configured.
var ErrPanelIndex = errors.New("st7735: panel index out of range")

// Set owns the controllers of a one- or two-panel HAT. The panels share an
// SPI bus and differ by device index or software chip-select, so dispatch
// is serialized: two blits may never interleave their byte streams on the
// wire, no matter how the surrounding application schedules them.
type Set struct {
	mu     sync.Mutex
	panels []*Dev
}

// NewSet builds a Set over one or two controllers.
func NewSet(panels ...*Dev) (*Set, error) {
	if len(panels) < 1 || len(panels) > 2 {
		return nil, fmt.Errorf("st7735: a set drives 1 or 2 panels, got %d", len(panels))
	}
	for i, p := range panels {
		if p == nil {
			return nil, fmt.Errorf("st7735: panel %d is nil", i)
		}
	}
	return &Set{panels: panels}, nil
}

// Len returns the configured panel count.
func (s *Set) Len() int { return len(s.panels) }

// Panel returns the controller at index.
func (s *Set) Panel(index int) (*Dev, error) {
	if index < 0 || index >= len(s.panels) {
		return nil, fmt.Errorf("st7735: panel %d of %d: %w", index, len(s.panels), ErrPanelIndex)
	}
	return s.panels[index], nil
}

// BlitTo streams fb full-frame to the panel at index.
func (s *Set) BlitTo(index int, fb *rgb565.Buffer) error {
	d, err := s.Panel(index)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return d.Blit(fb, 0, 0)
}

// SetBacklightAll switches every panel's backlight.
func (s *Set) SetBacklightAll(on bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, d := range s.panels {
		if err := d.SetBacklight(on); err != nil {
			return fmt.Errorf("st7735: panel %d: %w", i, err)
		}
	}
	return nil
}

// Close tears every panel down, returning the first error.
func (s *Set) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, d := range s.panels {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
