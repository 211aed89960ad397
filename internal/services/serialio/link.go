package serialio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/goburrow/serial"

	"gatekeeper/internal/logger"
)

// DetectionToken is the inbound substring announcing a vehicle in position.
const DetectionToken = "CAR_DETECTED"

// Outbound decision tokens. Sent exactly once per event, no acknowledgment.
const (
	tokenGrant = "OK\n"
	tokenDeny  = "NO\n"
)

const readTimeout = 1 * time.Second

// State describes the serial session lifecycle.
type State int

const (
	Disconnected State = iota
	Connected
	Faulted
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// ErrNotConnected is returned when sending on a closed or faulted session.
var ErrNotConnected = errors.New("serial session not connected")

// Link owns the byte-level conversation with the gate microcontroller:
// newline-delimited ASCII lines in both directions, no framing or checksum.
type Link struct {
	mu      sync.Mutex
	port    io.ReadWriteCloser
	state   State
	partial []byte   // bytes of an incomplete trailing line
	pending []string // complete lines not yet handed to the caller
}

// Connect opens the serial device (8 data bits, no parity, 1 stop bit, 1
// second read timeout) and returns a connected Link.
func Connect(address string, baud int, logger *logger.Logger) (*Link, error) {
	port, err := serial.Open(&serial.Config{
		Address:  address,
		BaudRate: baud,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  readTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", address, err)
	}

	logger.Info("connected to gate controller on %s at %d baud", address, baud)
	return New(port), nil
}

// New wraps an already-open port. Used by Connect and by tests.
func New(port io.ReadWriteCloser) *Link {
	return &Link{
		port:  port,
		state: Connected,
	}
}

// State returns the session state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Poll returns at most one complete decoded line. When no complete line
// arrived within the read timeout it returns ("", false, nil). Any I/O error
// other than a timeout faults the session and is returned.
func (l *Link) Poll() (string, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if line, ok := l.popLine(); ok {
		return line, true, nil
	}
	if l.state != Connected {
		return "", false, fmt.Errorf("poll: %w", ErrNotConnected)
	}

	buf := make([]byte, 256)
	n, err := l.port.Read(buf)
	if n > 0 {
		l.feed(buf[:n])
	}
	if err != nil && !isTimeout(err) {
		l.state = Faulted
		return "", false, fmt.Errorf("serial read failed: %w", err)
	}

	if line, ok := l.popLine(); ok {
		return line, true, nil
	}
	return "", false, nil
}

// feed appends raw bytes to the assembly buffer and extracts complete lines.
func (l *Link) feed(data []byte) {
	l.partial = append(l.partial, data...)
	for {
		idx := bytes.IndexByte(l.partial, '\n')
		if idx < 0 {
			return
		}
		line := strings.TrimSpace(string(l.partial[:idx]))
		l.partial = l.partial[idx+1:]
		if line != "" {
			l.pending = append(l.pending, line)
		}
	}
}

func (l *Link) popLine() (string, bool) {
	if len(l.pending) == 0 {
		return "", false
	}
	line := l.pending[0]
	l.pending = l.pending[1:]
	return line, true
}

// SendGrant writes the grant token.
func (l *Link) SendGrant() error {
	return l.send(tokenGrant)
}

// SendDeny writes the deny token.
func (l *Link) SendDeny() error {
	return l.send(tokenDeny)
}

func (l *Link) send(token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Connected {
		return fmt.Errorf("send: %w", ErrNotConnected)
	}
	if _, err := l.port.Write([]byte(token)); err != nil {
		l.state = Faulted
		return fmt.Errorf("serial write failed: %w", err)
	}
	return nil
}

// Close closes the session. Idempotent and safe to call during error unwind.
func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state == Disconnected {
		return nil
	}
	l.state = Disconnected
	if err := l.port.Close(); err != nil {
		return fmt.Errorf("failed to close serial port: %w", err)
	}
	return nil
}

// IsDetection reports whether an inbound line announces a detection event.
// The match is a case-sensitive substring check; anything else on the line
// is the microcontroller's business.
func IsDetection(line string) bool {
	return strings.Contains(line, DetectionToken)
}

func isTimeout(err error) bool {
	if errors.Is(err, serial.ErrTimeout) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
