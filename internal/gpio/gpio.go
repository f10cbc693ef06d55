// Package gpio drives GPIO output lines with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Output drives a single GPIO output line (indicator LED, buzzer).
type Output interface {
	// Set drives the line high (true) or low (false).
	Set(on bool) error

	// Close releases the line, driving it low first.
	Close() error
}

// DefaultChip is the GPIO character device used on the target board.
const DefaultChip = "gpiochip0"

// Pin defaults (BCM numbering).
const (
	DefaultPinSafeLED  = 26
	DefaultPinAlarmLED = 27
	DefaultPinBuzzer   = 14
	DefaultPinButton   = 12
)
