// Package service interprets switchbot command payloads.
package service

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/kkaazzuukkii4/switchbot-controller/internal/logger"
	"github.com/kkaazzuukkii4/switchbot-controller/internal/state"
)

// Supported command actions
const (
	ActionTurnOn  = "turnOn"
	ActionTurnOff = "turnOff"
	ActionPress   = "press"
)

// Command is the decoded message payload
type Command struct {
	Device string `json:"device"`
	Action string `json:"action"`
}

// SwitchBot applies commands to device state
type SwitchBot struct {
	logger *logger.Logger
}

// NewSwitchBot creates a switchbot command processor
func NewSwitchBot(log *logger.Logger) *SwitchBot {
	return &SwitchBot{logger: log}
}

// Process decodes and executes one command, persisting the resulting device
// state. A device with no persisted state starts powered off.
func (s *SwitchBot) Process(command string, store state.Store) error {
	var cmd Command
	if err := json.Unmarshal([]byte(command), &cmd); err != nil {
		return fmt.Errorf("invalid command payload: %w", err)
	}
	if cmd.Device == "" {
		return fmt.Errorf("command is missing a device id")
	}

	current, ok, err := store.Load(cmd.Device)
	if err != nil {
		return fmt.Errorf("failed to load state for device %s: %w", cmd.Device, err)
	}
	if !ok {
		current = state.DeviceState{Power: state.PowerOff}
	}

	var power string
	switch cmd.Action {
	case ActionTurnOn:
		power = state.PowerOn
	case ActionTurnOff:
		power = state.PowerOff
	case ActionPress:
		if current.Power == state.PowerOn {
			power = state.PowerOff
		} else {
			power = state.PowerOn
		}
	default:
		return fmt.Errorf("unknown action %q for device %s", cmd.Action, cmd.Device)
	}

	next := state.DeviceState{Power: power, UpdatedAt: time.Now()}
	if err := store.Save(cmd.Device, next); err != nil {
		return fmt.Errorf("failed to persist state for device %s: %w", cmd.Device, err)
	}

	s.logger.Info("executed switchbot command",
		"device", cmd.Device,
		"action", cmd.Action,
		"power", power)
	return nil
}
