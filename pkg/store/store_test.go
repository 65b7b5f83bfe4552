// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import (
	"testing"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Store implementations
// ============================================================

func stores(t *testing.T) map[string]Store {
	t.Helper()
	db, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return map[string]Store{
		"memory": NewMemory(DefaultSize),
		"badger": db,
	}
}

func TestStore_ReadBack(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			// Unwritten space reads as zero
			got, err := s.Get(10, 4)
			require.NoError(t, err)
			assert.Equal(t, []byte{0, 0, 0, 0}, got)

			// Span a page boundary
			data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
			require.NoError(t, s.Put(pageSize-4, data))

			got, err = s.Get(pageSize-4, len(data))
			require.NoError(t, err)
			assert.Equal(t, data, got)

			got, err = s.Get(pageSize-5, 3)
			require.NoError(t, err)
			assert.Equal(t, []byte{0, 1, 2}, got)
		})
	}
}

func TestStore_OutOfRange(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Get(DefaultSize-2, 4)
			assert.ErrorIs(t, err, ErrOutOfRange)

			err = s.Put(-1, []byte{1})
			assert.ErrorIs(t, err, ErrOutOfRange)

			// Last byte is fine
			assert.NoError(t, s.Put(DefaultSize-1, []byte{0xAA}))
		})
	}
}

func TestBadger_Persists(t *testing.T) {
	dir := t.TempDir()

	db, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	require.NoError(t, db.Put(300, []byte{0xDE, 0xAD}))
	require.NoError(t, db.Close())

	db, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer db.Close()

	got, err := db.Get(300, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xDE, 0xAD}, got)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

// ============================================================
// Input table
// ============================================================

func TestFixedLayout_NoOverlap(t *testing.T) {
	l := DefaultLayout
	last := l.InputOffset(layout.InputNodes-1, layout.InputPins-1)
	assert.LessOrEqual(t, last+layout.InputDefSize, DefaultSize)
	assert.Equal(t, l.InputOffset(0, 1)-l.InputOffset(0, 0), layout.InputDefSize)
	assert.Equal(t, l.InputOffset(1, 0)-l.InputOffset(0, 15), layout.InputDefSize)
}

func TestInputTable_SaveLoad(t *testing.T) {
	tbl := NewInputTable(NewMemory(DefaultSize), DefaultLayout)

	def := &layout.InputDef{Mode: layout.ModeOnOff}
	def.Slots[0] = layout.Slot{Used: true, Ref: layout.Ref{Node: 5, Pin: 0}}
	def.Slots[4] = layout.Slot{Used: true, Delay: true, Ref: layout.Ref{Node: 9, Pin: 2}}

	require.NoError(t, tbl.Save(3, 11, def))

	got, err := tbl.Load(3, 11)
	require.NoError(t, err)
	assert.Equal(t, def.Mode, got.Mode)
	assert.Equal(t, def.Slots[0].Ref, got.Slots[0].Ref)
	assert.True(t, got.Slots[4].Delay)
	assert.False(t, got.Slots[1].Used)

	// Neighbours untouched
	other, err := tbl.Load(3, 10)
	require.NoError(t, err)
	for _, s := range other.Slots {
		assert.False(t, s.Used)
	}
}

func TestInputTable_Errors(t *testing.T) {
	tbl := NewInputTable(NewMemory(DefaultSize), DefaultLayout)

	_, err := tbl.Load(layout.InputNodes, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)

	bad := &layout.InputDef{Mode: layout.InputMode(9)}
	var verr *layout.ValidationError
	assert.ErrorAs(t, tbl.Save(0, 0, bad), &verr)

	// A store too small for the layout
	small := NewInputTable(NewMemory(64), DefaultLayout)
	_, err = small.Load(0, 0)
	assert.ErrorIs(t, err, ErrOutOfRange)
}
