// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bus

import (
	"fmt"

	"github.com/Thermoquad/signalbox/pkg/layout"
)

// OutputDef wire record field offsets
const (
	offType      = 0
	offLo        = 1
	offHi        = 2
	offPace      = 3
	offReset     = 4
	offLockMask  = 5
	offLockLo    = 6
	offLockHi    = 10
	offStateMask = 14
)

// stateBit marks the current Hi/Lo state in the type byte
const stateBit = 0x80

// EncodeOutputDef packs an OutputDef into its 15-byte wire record.
// Lock masks carry Lo locks in bits 0-3 and Hi locks in bits 4-7.
func EncodeOutputDef(def *layout.OutputDef) []byte {
	buf := make([]byte, OutputDefSize)

	buf[offType] = byte(def.Type) &^ stateBit
	if def.State {
		buf[offType] |= stateBit
	}
	buf[offLo] = def.Lo
	buf[offHi] = def.Hi
	buf[offPace] = def.Pace
	buf[offReset] = def.Reset

	for i := 0; i < layout.MaxLocks; i++ {
		lo, hi := def.LoLocks[i], def.HiLocks[i]

		buf[offLockLo+i] = lo.Ref.Pack()
		buf[offLockHi+i] = hi.Ref.Pack()

		if lo.Enabled {
			buf[offLockMask] |= 1 << i
		}
		if hi.Enabled {
			buf[offLockMask] |= 1 << (i + layout.MaxLocks)
		}
		if lo.State {
			buf[offStateMask] |= 1 << i
		}
		if hi.State {
			buf[offStateMask] |= 1 << (i + layout.MaxLocks)
		}
	}

	return buf
}

// DecodeOutputDef unpacks a 15-byte wire record.
func DecodeOutputDef(buf []byte) (*layout.OutputDef, error) {
	if len(buf) != OutputDefSize {
		return nil, fmt.Errorf("output record length %d, want %d", len(buf), OutputDefSize)
	}

	def := &layout.OutputDef{
		Type:  layout.OutputType(buf[offType] &^ stateBit),
		State: buf[offType]&stateBit != 0,
		Lo:    buf[offLo],
		Hi:    buf[offHi],
		Pace:  buf[offPace],
		Reset: buf[offReset],
	}

	for i := 0; i < layout.MaxLocks; i++ {
		def.LoLocks[i] = layout.Lock{
			Enabled: buf[offLockMask]&(1<<i) != 0,
			State:   buf[offStateMask]&(1<<i) != 0,
			Ref:     layout.UnpackRef(buf[offLockLo+i]),
		}
		def.HiLocks[i] = layout.Lock{
			Enabled: buf[offLockMask]&(1<<(i+layout.MaxLocks)) != 0,
			State:   buf[offStateMask]&(1<<(i+layout.MaxLocks)) != 0,
			Ref:     layout.UnpackRef(buf[offLockHi+i]),
		}
	}

	return def, nil
}
