//go:build !linux

package door

import (
	"context"
	"errors"
)

// RealButton is not available on non-Linux platforms.
type RealButton struct{}

// NewRealButton returns an error on non-Linux platforms.
func NewRealButton(chip string, pin int) (*RealButton, error) {
	return nil, errors.New("door: not supported on this platform (requires Linux)")
}

// Watch is not implemented on non-Linux platforms.
func (b *RealButton) Watch(ctx context.Context, a *Actuator) error {
	return errors.New("door: not supported")
}

// Close is not implemented on non-Linux platforms.
func (b *RealButton) Close() error {
	return nil
}
