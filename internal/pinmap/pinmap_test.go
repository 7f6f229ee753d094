package pinmap

import (
	"errors"
	"testing"
)

func TestResolveKnownPairs(t *testing.T) {
	tests := []struct {
		variant Variant
		role    Role
		want    int
	}{
		{PhysicalHeader, Reset, 22},
		{PhysicalHeader, DataCommand, 18},
		{PhysicalHeader, Backlight, 12},
		{SoCBankOffset, Reset, 262},
		{SoCBankOffset, Clock, 230},
		{SoCBankOffset, ChipSelect, 229},
		{ReferenceBCM, Reset, 24},
		{ReferenceBCM, DataOut, 10},
		{ReferenceBCM, ChipSelect, 8},
	}
	for _, tt := range tests {
		got, err := Resolve(tt.variant, tt.role)
		if err != nil {
			t.Errorf("Resolve(%s, %s) error: %v", tt.variant, tt.role, err)
			continue
		}
		if got != tt.want {
			t.Errorf("Resolve(%s, %s) = %d, want %d", tt.variant, tt.role, got, tt.want)
		}
	}
}

func TestResolveUnmapped(t *testing.T) {
	if _, err := Resolve(Variant("wiringpi"), Reset); !errors.Is(err, ErrUnmapped) {
		t.Errorf("unknown variant: got %v, want ErrUnmapped", err)
	}
	if _, err := Resolve(PhysicalHeader, Role("irq")); !errors.Is(err, ErrUnmapped) {
		t.Errorf("unknown role: got %v, want ErrUnmapped", err)
	}
}

// No two roles within one variant may alias the same physical line.
func TestRolesDistinctPerVariant(t *testing.T) {
	for _, v := range Variants() {
		roles, err := Roles(v)
		if err != nil {
			t.Fatalf("Roles(%s): %v", v, err)
		}
		seen := make(map[int]Role, len(roles))
		for role, id := range roles {
			if prev, dup := seen[id]; dup {
				t.Errorf("variant %s: roles %s and %s both map to line %d", v, prev, role, id)
			}
			seen[id] = role
		}
	}
}

func TestRolesReturnsCopy(t *testing.T) {
	a, err := Roles(ReferenceBCM)
	if err != nil {
		t.Fatal(err)
	}
	a[Reset] = 99
	b, _ := Roles(ReferenceBCM)
	if b[Reset] != 24 {
		t.Errorf("Roles mutated the underlying table: Reset = %d", b[Reset])
	}
}

func TestVariantValid(t *testing.T) {
	for _, v := range Variants() {
		if !v.Valid() {
			t.Errorf("%s should be valid", v)
		}
	}
	if Variant("").Valid() {
		t.Error("empty variant should not be valid")
	}
}
