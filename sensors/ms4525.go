package sensors

import (
	"errors"
	"fmt"

	"github.com/kidoman/embd"
)

const (
	// MS4525Address is the factory I2C address of the MS4525DO.
	MS4525Address = 0x28

	ms4525CountMax = 16383 // 14-bit output
)

// MS4525 reads a TE MS4525DO differential pressure transducer over I2C.
// The pitot and 45° AOA ports each use one, on different bus addresses or
// multiplexer channels. Output is 14-bit counts spanning 10%..90% of the
// ±PressureRange PSI span.
type MS4525 struct {
	bus   embd.I2CBus
	addr  byte
	rng   float64 // full-scale range, ±PSI
	valid bool
}

var errMS4525Stale = errors.New("MS4525: stale or faulted reading")

// NewMS4525 probes the sensor at addr and returns a reader with the given
// full-scale range in PSI (e.g. 1.0 for the -001D part).
func NewMS4525(bus embd.I2CBus, addr byte, rangePSI float64) (*MS4525, error) {
	m := &MS4525{bus: bus, addr: addr, rng: rangePSI, valid: true}
	if _, err := m.ReadCounts(); err != nil {
		return nil, fmt.Errorf("MS4525 at 0x%02x: %w", addr, err)
	}
	return m, nil
}

// ReadCounts reads one raw conversion. The two status bits must be 00
// (fresh data); 10 means stale and 11 a sensor fault.
func (m *MS4525) ReadCounts() (int, error) {
	if !m.valid {
		return 0, errors.New("MS4525: closed")
	}
	buf := make([]byte, 2)
	if err := m.bus.ReadFromReg(m.addr, 0, buf); err != nil {
		return 0, err
	}
	status := buf[0] >> 6
	if status == 2 || status == 3 {
		return 0, errMS4525Stale
	}
	counts := int(buf[0]&0x3f)<<8 | int(buf[1])
	return counts, nil
}

// PSI converts (possibly smoothed, fractional) counts to differential
// PSI using the 10%-90% transfer function from the datasheet.
func (m *MS4525) PSI(counts float64) float64 {
	return (counts-0.1*ms4525CountMax)*(2*m.rng)/(0.8*ms4525CountMax) - m.rng
}

// Close stops the reader.
func (m *MS4525) Close() error {
	m.valid = false
	return nil
}
