//go:build !linux || !cgo

package media

import (
	"context"
	"errors"
)

// Camera/mic capture via pion/mediadevices requires platform-specific
// drivers (V4L2/malgo on Linux). On other platforms the broadcaster flow is
// unavailable; viewers do not acquire local media at all.
func NewDevice() Device {
	return &noDevice{}
}

type noDevice struct{}

func (d *noDevice) Open(context.Context, Profile) ([]Track, error) {
	return nil, errors.New("no capture backend on this platform")
}
