package services

import (
	"context"
	"time"

	"miqat/internal/models"
)

// GPSErrorCode mirrors the failure classes a positioning platform reports.
// Timeout and PositionUnavailable are retried once at low accuracy; denial is
// never retried.
type GPSErrorCode int

const (
	GPSPermissionDenied GPSErrorCode = iota + 1
	GPSPositionUnavailable
	GPSTimeout
)

type GPSError struct {
	Code    GPSErrorCode
	Message string
}

func (e *GPSError) Error() string {
	return e.Message
}

// GPSCode extracts the error code, or 0 for non-GPS errors.
func GPSCode(err error) GPSErrorCode {
	if gpsErr, ok := err.(*GPSError); ok {
		return gpsErr.Code
	}
	return 0
}

type GPSFix struct {
	Coords         models.Coordinate
	AccuracyMeters float64
}

type GPSRequest struct {
	HighAccuracy bool
	Timeout      time.Duration
}

// GPSProvider acquires a device position. The server build wires NoGPS; an
// embedding platform supplies the real sensor.
type GPSProvider interface {
	Current(ctx context.Context, req GPSRequest) (GPSFix, error)
}

type PermissionState string

const (
	PermissionGranted PermissionState = "granted"
	PermissionDenied  PermissionState = "denied"
	PermissionPrompt  PermissionState = "prompt"
)

// PermissionWatcher streams geolocation-permission changes. Watch returns a
// channel of states and a release function; release stops the subscription
// and closes the channel, and must be called on teardown.
type PermissionWatcher interface {
	Watch(ctx context.Context) (<-chan PermissionState, func(), error)
}

// NoGPS is the provider used where the platform exposes no positioning
// hardware. Every request fails as position-unavailable.
type NoGPS struct{}

func (NoGPS) Current(ctx context.Context, req GPSRequest) (GPSFix, error) {
	return GPSFix{}, &GPSError{Code: GPSPositionUnavailable, Message: "no positioning hardware"}
}
