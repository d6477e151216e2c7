package core

import (
	"errors"
	"strings"
)

var (
	// ErrPermissionDenied is a user or OS refusal of a device.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrDiscoveryInconsistent marks a fallback source that returned garbage. Never surfaced.
	ErrDiscoveryInconsistent = errors.New("discovery inconsistent")
	// ErrConnectionFailure blocks a join: bad token response or failed connect.
	ErrConnectionFailure = errors.New("connection failure")
	// ErrTransientDevice is any other device toggle failure.
	ErrTransientDevice = errors.New("device error")

	ErrAlreadyConnecting = errors.New("already connecting")
	ErrAlreadyConnected  = errors.New("already connected")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrFocusUnavailable  = errors.New("no screen share to focus")
	ErrNotConnected      = errors.New("not connected")
	ErrSessionClosed     = errors.New("session closed")
)

// IsPermissionError recognises refusals coming from the media layer,
// both typed and by the texts browsers and devices use.
func IsPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrPermissionDenied) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "notallowederror") || strings.Contains(msg, "permission denied")
}

// ClassifyDeviceError maps a raw toggle failure onto the two device sentinels.
func ClassifyDeviceError(err error) error {
	if err == nil {
		return nil
	}
	if IsPermissionError(err) {
		if errors.Is(err, ErrPermissionDenied) {
			return err
		}
		return errors.Join(ErrPermissionDenied, err)
	}
	if errors.Is(err, ErrTransientDevice) {
		return err
	}
	return errors.Join(ErrTransientDevice, err)
}
