// Package pinmap translates logical display HAT pin roles into the numeric
// GPIO line identifiers a given board's addressing scheme expects.
//
// The same HAT is wired identically on every board, but the number used to
// reach a line differs per scheme: the physical header position (what the
// silkscreen shows), the SoC's global bank/offset number (what the gpio
// character device wants on sunxi boards), and the BCM number used by the
// vendor's Raspberry Pi reference design. All three live in one static table
// so callers select a Variant instead of branching on board type.
package pinmap

import (
	"errors"
	"fmt"
)

// Role identifies a logical pin function on the HAT.
type Role string

const (
	Reset       Role = "reset"
	DataCommand Role = "dc"
	ChipSelect  Role = "cs"
	Backlight   Role = "backlight"
	Clock       Role = "clock"
	DataOut     Role = "mosi"
	DataIn      Role = "miso"
)

// Variant identifies the numbering scheme in force.
type Variant string

const (
	// PhysicalHeader uses the 40-pin header position directly
	// (OPi.GPIO BOARD mode).
	PhysicalHeader Variant = "physical-header"
	// SoCBankOffset uses the SoC's global line offsets as exposed by the
	// gpio character device (sunxi H618: PC0=64, PH0=224, PI0=256, ...).
	SoCBankOffset Variant = "soc-bank-offset"
	// ReferenceBCM uses the Broadcom numbering the vendor reference
	// design and most wiring diagrams assume.
	ReferenceBCM Variant = "reference-bcm"
)

// ErrUnmapped is returned when a (variant, role) pair has no table entry.
var ErrUnmapped = errors.New("pinmap: role not mapped for variant")

// tables is the wiring of the Zero LCD HAT (A) under each numbering scheme.
// Physical header positions and their sunxi equivalents come from the Orange
// Pi Zero 2W pinout; the BCM column is the vendor's Pi reference design.
var tables = map[Variant]map[Role]int{
	PhysicalHeader: {
		Reset:       22,
		DataCommand: 18,
		ChipSelect:  24,
		Backlight:   12,
		Clock:       23,
		DataOut:     19,
		DataIn:      21,
	},
	SoCBankOffset: {
		Reset:       262, // PI06, header 22
		DataCommand: 228, // PH04, header 18
		ChipSelect:  229, // PH05, header 24
		Backlight:   257, // PI01, header 12
		Clock:       230, // PH06, header 23
		DataOut:     231, // PH07, header 19
		DataIn:      232, // PH08, header 21
	},
	ReferenceBCM: {
		Reset:       24,
		DataCommand: 4,
		ChipSelect:  8, // CE0
		Backlight:   13,
		Clock:       11,
		DataOut:     10,
		DataIn:      9,
	},
}

// Valid reports whether v names a known numbering scheme.
func (v Variant) Valid() bool {
	_, ok := tables[v]
	return ok
}

// Resolve returns the numeric line identifier for role under variant v.
func Resolve(v Variant, role Role) (int, error) {
	t, ok := tables[v]
	if !ok {
		return 0, fmt.Errorf("pinmap: unknown variant %q: %w", v, ErrUnmapped)
	}
	id, ok := t[role]
	if !ok {
		return 0, fmt.Errorf("pinmap: variant %q has no %q line: %w", v, role, ErrUnmapped)
	}
	return id, nil
}

// Roles returns a copy of the full role table for variant v, or ErrUnmapped
// if the variant is unknown. Config defaulting uses this to fill in pins the
// user did not set explicitly.
func Roles(v Variant) (map[Role]int, error) {
	t, ok := tables[v]
	if !ok {
		return nil, fmt.Errorf("pinmap: unknown variant %q: %w", v, ErrUnmapped)
	}
	out := make(map[Role]int, len(t))
	for r, id := range t {
		out[r] = id
	}
	return out, nil
}

// Variants lists every supported numbering scheme.
func Variants() []Variant {
	return []Variant{PhysicalHeader, SoCBankOffset, ReferenceBCM}
}
