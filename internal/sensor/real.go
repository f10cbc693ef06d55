//go:build linux

package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// RealReader reads raw counts from a Linux IIO ADC channel, e.g.
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type RealReader struct {
	path string
}

// NewRealReader creates a reader for the given sysfs raw channel path.
// It performs one read up front so a missing or unreadable channel fails
// at startup rather than on the first sampling tick.
func NewRealReader(path string) (*RealReader, error) {
	r := &RealReader{path: path}
	if _, err := r.Read(); err != nil {
		return nil, fmt.Errorf("probe adc: %w", err)
	}
	return r, nil
}

// Read returns the current raw ADC count.
func (r *RealReader) Read() (int, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", r.path, err)
	}
	raw, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", r.path, err)
	}
	return raw, nil
}

// Close releases nothing; the sysfs file is opened per read.
func (r *RealReader) Close() error {
	return nil
}
