// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package layout

import "fmt"

// InputDefSize is the stored size of one InputDef record:
// mode, used mask, delay mask, 6 slot bytes.
const InputDefSize = 3 + InputSlots

// MarshalInputDef packs an InputDef into its stored record form.
func MarshalInputDef(d *InputDef) []byte {
	buf := make([]byte, InputDefSize)
	buf[0] = byte(d.Mode)
	for i, s := range d.Slots {
		if !s.Used {
			continue
		}
		buf[1] |= 1 << i
		if s.Delay {
			buf[2] |= 1 << i
			buf[3+i] = s.Ticks
		} else {
			buf[3+i] = s.Ref.Pack()
		}
	}
	return buf
}

// UnmarshalInputDef decodes a stored InputDef record.
func UnmarshalInputDef(buf []byte) (*InputDef, error) {
	if len(buf) != InputDefSize {
		return nil, fmt.Errorf("input record length %d, want %d", len(buf), InputDefSize)
	}
	d := &InputDef{Mode: InputMode(buf[0])}
	for i := range d.Slots {
		s := &d.Slots[i]
		s.Used = buf[1]&(1<<i) != 0
		s.Delay = buf[2]&(1<<i) != 0
		if !s.Used {
			continue
		}
		if s.Delay {
			s.Ticks = buf[3+i]
		} else {
			s.Ref = UnpackRef(buf[3+i])
		}
	}
	return d, nil
}
