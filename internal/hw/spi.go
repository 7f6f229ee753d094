package hw

import (
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
)

var (
	// ErrBusUnavailable means the (bus, device) node does not exist,
	// usually because the kernel SPI overlay was never enabled.
	ErrBusUnavailable = errors.New("hw: spi bus unavailable")
	// ErrPermissionDenied means the node exists but the process may not
	// open it (typically missing spi/gpio group membership).
	ErrPermissionDenied = errors.New("hw: spi permission denied")
)

// spidev transfers are bounded by the kernel's default buffer size; larger
// blocks are split while preserving byte order within the call.
const maxTransfer = 4096

// busclaims mirrors the GPIO claim registry for (bus, device) pairs.
var busClaims = struct {
	mu  sync.Mutex
	ids map[[2]int]bool
}{ids: map[[2]int]bool{}}

// Channel is one open SPI bus/device pair configured for MSB-first Mode 0
// transfers at a fixed clock. All writes block until the kernel completes
// the transfer.
type Channel struct {
	bus    int
	device int
	port   spi.PortCloser
	conn   spi.Conn
	closed bool
}

// OpenChannel opens /dev/spidev<bus>.<device> at hz and configures it for
// 8-bit Mode 0 transfers.
func OpenChannel(bus, device int, hz physic.Frequency) (*Channel, error) {
	key := [2]int{bus, device}
	busClaims.mu.Lock()
	defer busClaims.mu.Unlock()
	if busClaims.ids[key] {
		return nil, fmt.Errorf("hw: spi %d.%d already open: %w", bus, device, ErrBusUnavailable)
	}

	port, err := spireg.Open(fmt.Sprintf("SPI%d.%d", bus, device))
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("hw: open spi %d.%d: %v: %w", bus, device, err, ErrPermissionDenied)
		}
		return nil, fmt.Errorf("hw: open spi %d.%d: %v: %w", bus, device, err, ErrBusUnavailable)
	}
	conn, err := port.Connect(hz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("hw: configure spi %d.%d at %s: %v: %w", bus, device, hz, err, ErrBusUnavailable)
	}

	busClaims.ids[key] = true
	return &Channel{bus: bus, device: device, port: port, conn: conn}, nil
}

// Tx transmits p in order, blocking until every byte is clocked out. Blocks
// longer than the kernel buffer are split internally; the split never
// interleaves with another write in the same call. The read side is ignored.
func (c *Channel) Tx(p []byte) error {
	if c.closed {
		return fmt.Errorf("hw: spi %d.%d is closed", c.bus, c.device)
	}
	for len(p) > 0 {
		n := len(p)
		if n > maxTransfer {
			n = maxTransfer
		}
		if err := c.conn.Tx(p[:n], nil); err != nil {
			return fmt.Errorf("hw: spi %d.%d tx: %w", c.bus, c.device, err)
		}
		p = p[n:]
	}
	return nil
}

// Close releases the device node. Idempotent.
func (c *Channel) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	busClaims.mu.Lock()
	delete(busClaims.ids, [2]int{c.bus, c.device})
	busClaims.mu.Unlock()
	if err := c.port.Close(); err != nil {
		return fmt.Errorf("hw: close spi %d.%d: %w", c.bus, c.device, err)
	}
	return nil
}
