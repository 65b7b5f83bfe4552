// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"context"
	"io"
)

// ByteSource yields received bytes without blocking
type ByteSource interface {
	TryReadByte() (byte, bool)
}

// ChanSource is a ByteSource fed by a channel
type ChanSource <-chan byte

// TryReadByte implements ByteSource
func (c ChanSource) TryReadByte() (byte, bool) {
	select {
	case b, ok := <-c:
		return b, ok
	default:
		return 0, false
	}
}

// Pump copies bytes from r into ch until r fails or ctx is done. Closing
// the underlying connection is what unblocks a pending read.
func Pump(ctx context.Context, r io.Reader, ch chan<- byte) error {
	buf := make([]byte, 128)
	for {
		n, err := r.Read(buf)
		for i := 0; i < n; i++ {
			select {
			case ch <- buf[i]:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err != nil {
			return err
		}
	}
}
