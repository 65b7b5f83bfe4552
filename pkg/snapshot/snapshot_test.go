// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package snapshot

import (
	"testing"

	"github.com/Thermoquad/signalbox/pkg/bus"
	"github.com/Thermoquad/signalbox/pkg/bus/bussim"
	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/Thermoquad/signalbox/pkg/store"
	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot_CaptureRestore(t *testing.T) {
	sim := bussim.New()
	sim.AddOutputNode(2).Defs[5] = layout.OutputDef{
		Type: layout.TypeSignal, State: true, Lo: 20, Hi: 180, Pace: 4,
		HiLocks: [layout.MaxLocks]layout.Lock{{Enabled: true, Ref: layout.Ref{Node: 7, Pin: 1}}},
	}
	codec := bus.NewCodec(sim, nil)

	src := store.NewMemory(store.DefaultSize)
	tbl := store.NewInputTable(src, store.DefaultLayout)
	in := &layout.InputDef{Mode: layout.ModeOn}
	in.Slots[0] = layout.Slot{Used: true, Ref: layout.Ref{Node: 2, Pin: 5}}
	require.NoError(t, tbl.Save(1, 1, in))

	snap, err := Capture(src, src.Size(), codec, []uint8{2})
	require.NoError(t, err)
	require.Len(t, snap.Outputs, 1)
	assert.Len(t, snap.Outputs[0].Defs, layout.OutputPins)

	data, err := Marshal(snap)
	require.NoError(t, err)
	back, err := Unmarshal(data)
	require.NoError(t, err)

	// Restore onto a fresh box
	sim2 := bussim.New()
	sim2.AddOutputNode(2)
	dst := store.NewMemory(store.DefaultSize)
	require.NoError(t, Restore(back, dst, bus.NewCodec(sim2, nil)))

	got, err := store.NewInputTable(dst, store.DefaultLayout).Load(1, 1)
	require.NoError(t, err)
	assert.Equal(t, layout.Ref{Node: 2, Pin: 5}, got.Slots[0].Ref)
	assert.Equal(t, sim.OutputNode(2).Defs, sim2.OutputNode(2).Defs)
}

func TestRestore_ContinuesPastFailedNode(t *testing.T) {
	sim := bussim.New()
	sim.AddOutputNode(4)
	snap := &Snapshot{
		Version: Version,
		Image:   []byte{1, 2, 3},
		Outputs: []Node{
			{Node: 3, Defs: [][]byte{bus.EncodeOutputDef(&layout.OutputDef{})}},
			{Node: 4, Defs: [][]byte{bus.EncodeOutputDef(&layout.OutputDef{Type: layout.TypeLED, Hi: 9})}},
		},
	}

	dst := store.NewMemory(16)
	err := Restore(snap, dst, bus.NewCodec(sim, nil))
	assert.ErrorIs(t, err, bus.ErrNoAck)
	assert.Equal(t, uint8(9), sim.OutputNode(4).Defs[0].Hi)

	img, _ := dst.Get(0, 3)
	assert.Equal(t, []byte{1, 2, 3}, img)
}

func TestUnmarshal_Rejects(t *testing.T) {
	_, err := Unmarshal([]byte{0xFF, 0x00})
	assert.Error(t, err)

	data, err := cbor.Marshal(&Snapshot{Version: 99})
	require.NoError(t, err)
	_, err = Unmarshal(data)
	assert.ErrorContains(t, err, "version")

	data, err = cbor.Marshal(&Snapshot{Version: Version, Outputs: []Node{{Node: 40}}})
	require.NoError(t, err)
	_, err = Unmarshal(data)
	assert.ErrorContains(t, err, "out of range")
}

func TestRestore_ImageTooLarge(t *testing.T) {
	snap := &Snapshot{Version: Version, Image: make([]byte, 32)}
	err := Restore(snap, store.NewMemory(16), nil)
	assert.ErrorIs(t, err, store.ErrOutOfRange)
}
