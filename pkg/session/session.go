// Package session ties a device identity to an opened backend.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/devicelab-dev/maestro-device/pkg/core"
	"github.com/devicelab-dev/maestro-device/pkg/logger"
)

// ErrClosed is the panic value for using a session after Close.
var ErrClosed = errors.New("session is closed")

// Session is an opened device. Only ID, DeviceID, IsShutdown and Close may be
// called after Close.
type Session struct {
	id     string
	device core.Device
	closed atomic.Bool
	once   sync.Once
}

// Open opens the device and returns a session over it. If Open fails the
// device is closed again and the failure returned.
func Open(ctx context.Context, device core.Device) (*Session, error) {
	s := &Session{id: uuid.NewString(), device: device}
	log := logger.With(logger.Fields{"session": s.id, "device": device.ID()})

	if f := device.Open(ctx).Failure(); f != nil {
		log.WithError(f).Error("failed to open device")
		device.Close()
		return nil, f
	}
	log.Info("session opened")
	return s, nil
}

// ID is the unique id of this session.
func (s *Session) ID() string {
	return s.id
}

// DeviceID is the opaque identifier of the device.
func (s *Session) DeviceID() string {
	return s.device.ID()
}

// Device returns the device for issuing capability calls. It panics with
// ErrClosed after Close.
func (s *Session) Device() core.Device {
	if s.closed.Load() {
		panic(ErrClosed)
	}
	return s.device
}

// IsShutdown reports whether the session is closed or its device is down.
func (s *Session) IsShutdown() bool {
	return s.closed.Load() || s.device.IsShutdown()
}

// Close closes the device. It is idempotent.
func (s *Session) Close() {
	s.once.Do(func() {
		s.closed.Store(true)
		s.device.Close()
		logger.With(logger.Fields{"session": s.id}).Info("session closed")
	})
}
