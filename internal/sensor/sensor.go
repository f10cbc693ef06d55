// Package sensor samples the CO sensor and raises alarm events. The
// reader abstraction follows the rest of the hardware layer: a real
// Linux implementation, a scripted fake for tests, and a stub elsewhere.
package sensor

// Reader reads one raw sample from the analog CO sensor.
type Reader interface {
	// Read returns the raw ADC count, expected in [0, RawMax].
	Read() (int, error)

	// Close releases sensor resources.
	Close() error
}

// RawMax is the full-scale ADC count (12-bit converter).
const RawMax = 4095

// ppmScale is the reading at full scale.
const ppmScale = 200.0

// PPM converts a raw ADC count to parts-per-million. Raw values are
// clamped to the converter range first, so a misbehaving kernel driver
// cannot report an impossible concentration.
func PPM(raw int) float64 {
	if raw < 0 {
		raw = 0
	}
	if raw > RawMax {
		raw = RawMax
	}
	return float64(raw) * ppmScale / RawMax
}
