// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// Licensed under the Apache License, Version 2.0

package hwwallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// State is the lifecycle state of a device session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateBusy
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateBusy:
		return "busy"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// session owns exactly one device connection and serializes access to it.
// Hardware devices hold no concurrent sessions, so a second operation while
// one is in flight is rejected immediately rather than queued. The session is
// also the error normalization boundary: whatever a driver or transport
// reports, callers above only ever see taxonomy errors.
type session struct {
	mu     sync.Mutex
	state  State
	family Family
	drv    driver

	// everConnected distinguishes "never initialized" from "connection lost".
	everConnected bool
}

// connect drives Disconnected -> Connecting -> Connected. The lock is
// released while the driver probes the device, so state queries stay
// responsive; concurrent connect attempts are rejected.
func (s *session) connect(ctx context.Context, family Family, drv driver) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return fmt.Errorf("%w: session is %s", ErrDeviceBusy, s.state)
	}
	s.state = StateConnecting
	s.family = family
	s.mu.Unlock()

	err := drv.Open(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		drv.Close()
		s.state = StateDisconnected
		return err
	}
	s.drv = drv
	s.state = StateConnected
	s.everConnected = true
	return nil
}

// begin claims the single in-flight operation slot.
func (s *session) begin() (driver, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateConnected:
		s.state = StateBusy
		return s.drv, nil
	case StateBusy, StateConnecting:
		return nil, ErrDeviceBusy
	default:
		if !s.everConnected {
			return nil, ErrNotInitialized
		}
		return nil, ErrDeviceNotConnected
	}
}

// end releases the operation slot. A communication fault (timeout included)
// tears the session down: the transport is already unusable, so the device is
// released and the caller must reconnect. Every other outcome, user rejection
// in particular, returns the session to Connected.
func (s *session) end(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateBusy {
		return
	}
	if err != nil && errors.Is(err, ErrCommunication) {
		if s.drv != nil {
			s.drv.Close()
			s.drv = nil
		}
		s.state = StateDisconnected
		return
	}
	s.state = StateConnected
}

// disconnect is valid from any state and idempotent; it always lands in
// Disconnected with the device released.
func (s *session) disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv != nil {
		s.drv.Close()
		s.drv = nil
	}
	s.state = StateDisconnected
}

func (s *session) currentState() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *session) isConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected || s.state == StateBusy
}

func (s *session) currentFamily() Family {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.family
}

// status reports the driver's view of the device for diagnostics.
func (s *session) status() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drv == nil {
		return s.state.String()
	}
	return s.drv.Status()
}
