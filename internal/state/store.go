// Package state persists switchbot device state between runs.
package state

import "time"

// Power states
const (
	PowerOn  = "on"
	PowerOff = "off"
)

// DeviceState is the persisted state of a single switchbot device
type DeviceState struct {
	Power     string    `json:"power"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Store is a key-value persistence capability keyed by device id.
// Init is idempotent and called once at startup.
type Store interface {
	Init() error
	Load(device string) (DeviceState, bool, error)
	Save(device string, st DeviceState) error
}
