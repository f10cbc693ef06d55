package door

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// periodNS is the 50 Hz servo period in nanoseconds.
const periodNS = 1_000_000_000 / PWMFrequencyHz

// SysfsServo drives a servo through a Linux pwmchip channel directory,
// e.g. /sys/class/pwm/pwmchip0/pwm0. The channel must already be
// exported; board setup is outside this daemon.
type SysfsServo struct {
	dir string
}

// NewSysfsServo configures the channel for 50 Hz and enables it.
func NewSysfsServo(dir string) (*SysfsServo, error) {
	s := &SysfsServo{dir: dir}
	if err := s.write("period", periodNS); err != nil {
		return nil, fmt.Errorf("configure pwm period: %w", err)
	}
	if err := s.write("enable", 1); err != nil {
		return nil, fmt.Errorf("enable pwm: %w", err)
	}
	return s, nil
}

// SetPulse sets the pulse width. The duty cycle is the pulse width as a
// fraction of the 20 ms period, expressed in nanoseconds for sysfs.
func (s *SysfsServo) SetPulse(us int) error {
	if err := s.write("duty_cycle", us*1000); err != nil {
		return fmt.Errorf("set pulse %dus: %w", us, err)
	}
	return nil
}

// Close disables the channel so the servo stops holding torque.
func (s *SysfsServo) Close() error {
	if err := s.write("enable", 0); err != nil {
		return fmt.Errorf("disable pwm: %w", err)
	}
	return nil
}

func (s *SysfsServo) write(attr string, value int) error {
	path := filepath.Join(s.dir, attr)
	return os.WriteFile(path, []byte(strconv.Itoa(value)), 0o644)
}
