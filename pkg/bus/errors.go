// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAck is returned when the addressed node does not acknowledge.
	ErrNoAck = errors.New("no acknowledge")
	// ErrShortResponse is returned when a response has an unexpected length.
	ErrShortResponse = errors.New("unexpected response length")
	// ErrBadResponse is returned when a response carries an impossible value.
	ErrBadResponse = errors.New("response out of range")
	// ErrTimeout is returned when the gateway does not answer in time.
	ErrTimeout = errors.New("gateway timeout")
)

// Error is a failed bus exchange with one node.
type Error struct {
	Domain  Domain
	Node    uint8
	Command byte
	Err     error
}

func (e *Error) Error() string {
	return fmt.Sprintf("bus %s node %d %s: %v", e.Domain, e.Node, FormatCommand(e.Command), e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}
