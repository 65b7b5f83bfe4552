// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"bytes"
	"errors"
	"math/rand"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getFuzzRounds() int {
	if s := os.Getenv("FUZZ_ROUNDS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 500
}

func newFuzzRng(t *testing.T) *rand.Rand {
	seed := time.Now().UnixNano()
	if s := os.Getenv("FUZZ_SEED"); s != "" {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			seed = n
		}
	}
	t.Logf("fuzz seed: %d", seed)
	return rand.New(rand.NewSource(seed))
}

// decodeAll feeds data through d and collects frames and errors
func decodeAll(d *Decoder, data []byte) ([]*Frame, []error) {
	var frames []*Frame
	var errs []error
	for _, b := range data {
		f, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
		}
		if f != nil {
			frames = append(frames, f)
		}
	}
	return frames, errs
}

// ============================================================
// Encoder
// ============================================================

func TestEncode_Escaping(t *testing.T) {
	f := &Frame{Address: 2, Type: TypeReceive, Body: []byte{0x03, 0x10, 0x11, 0x00, 0xFF}}
	want := []byte{
		SYN, SYN, STX, 'C', 'R',
		DLE, 0x03, DLE, 0x10, 0x11, DLE, 0x00, 0xFF,
		ETX,
	}
	assert.Equal(t, want, f.Encode())
}

func TestEncode_RoundTrip(t *testing.T) {
	rng := newFuzzRng(t)
	for round := 0; round < getFuzzRounds(); round++ {
		body := make([]byte, rng.Intn(64))
		rng.Read(body)
		in := &Frame{Address: uint8(rng.Intn(64)), Type: TypeTransmit, Body: body}

		frames, errs := decodeAll(NewDecoder(), in.Encode())
		require.Empty(t, errs, "round %d", round)
		require.Len(t, frames, 1, "round %d", round)
		assert.Equal(t, in.Address, frames[0].Address)
		assert.Equal(t, in.Body, frames[0].Body)
	}
}

// ============================================================
// Decoder
// ============================================================

func TestDecoder_EscapedETXIsData(t *testing.T) {
	d := NewDecoder()
	data := []byte{SYN, SYN, STX, 'A', 'T', 0x01, DLE, ETX, 0x05}

	frames, errs := decodeAll(d, data)
	assert.Empty(t, frames, "escaped ETX must not end the frame")
	assert.Empty(t, errs)
	assert.Equal(t, StateData, d.State())

	f, err := d.DecodeByte(ETX)
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, []byte{0x01, ETX, 0x05}, f.Body)
	assert.Equal(t, byte(TypeTransmit), f.Type)
}

func TestDecoder_ResyncAfterMissingSTX(t *testing.T) {
	d := NewDecoder()
	good := (&Frame{Address: 0, Type: TypePoll}).Encode()

	data := []byte{SYN, SYN, 0x41, 0x99, 0x55, ETX}
	data = append(data, good...)

	frames, errs := decodeAll(d, data)
	require.Len(t, errs, 1)
	var ferr *FramingError
	require.True(t, errors.As(errs[0], &ferr))
	assert.Equal(t, StateStx, ferr.State)
	assert.Equal(t, byte(0x41), ferr.Byte)

	require.Len(t, frames, 1)
	assert.Equal(t, byte(TypePoll), frames[0].Type)
	assert.Equal(t, StateIdle, d.State())
}

func TestDecoder_SkipHonoursEscapes(t *testing.T) {
	d := NewDecoder()

	// Garbage with an escaped ETX followed by what looks like a frame.
	// The escaped ETX must not end the skip, so the embedded POLL is
	// swallowed up to its own ETX.
	data := []byte{SYN, SYN, 'x', DLE, ETX, SYN, SYN, STX, 'A', 'P', ETX}
	frames, errs := decodeAll(d, data)
	assert.Empty(t, frames)
	assert.Len(t, errs, 1)
	assert.Equal(t, StateIdle, d.State())

	frames, _ = decodeAll(d, (&Frame{Type: TypeInit, Body: []byte{'N', 0, 5, 1}}).Encode())
	require.Len(t, frames, 1)
	assert.Equal(t, byte(TypeInit), frames[0].Type)
}

func TestDecoder_States(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		state State
		errs  int
	}{
		{"noise while idle", []byte{0x00, 0x41, ETX}, StateIdle, 0},
		{"extra SYN tolerated", []byte{SYN, SYN, SYN, SYN, STX}, StateAddr, 0},
		{"single SYN then junk", []byte{SYN, 0x20}, StateSkipToEtx, 1},
		{"bad address", []byte{SYN, SYN, STX, 0x05}, StateSkipToEtx, 1},
		{"bad type", []byte{SYN, SYN, STX, 'A', 'Z'}, StateSkipToEtx, 1},
		{"ETX in header ends frame", []byte{SYN, SYN, STX, ETX}, StateIdle, 1},
		{"DLE while skipping", []byte{SYN, 0x20, DLE}, StateSkipToEtxDle, 1},
		{"DLE in place of STX", []byte{SYN, SYN, DLE}, StateSkipToEtxDle, 1},
		{"DLE in place of address", []byte{SYN, SYN, STX, DLE}, StateSkipToEtxDle, 1},
		{"DLE escape", []byte{SYN, SYN, STX, 'A', 'T', DLE}, StateDleEscape, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder()
			_, errs := decodeAll(d, tt.input)
			assert.Equal(t, tt.state, d.State())
			assert.Len(t, errs, tt.errs)
		})
	}
}

func TestDecoder_Overflow(t *testing.T) {
	d := NewDecoder()
	data := []byte{SYN, SYN, STX, 'A', 'T'}
	data = append(data, bytes.Repeat([]byte{0x55}, MaxBodySize+1)...)

	_, errs := decodeAll(d, data)
	require.Len(t, errs, 1)
	assert.Equal(t, StateSkipToEtx, d.State())
}

func TestDecoder_HeaderDLEEscapesNextByte(t *testing.T) {
	d := NewDecoder()

	// The DLE that breaks the header still escapes the ETX after it, so
	// the skip runs on to the embedded POLL's own ETX.
	data := []byte{SYN, SYN, DLE, ETX, SYN, SYN, STX, 'A', 'P', ETX}
	frames, errs := decodeAll(d, data)
	assert.Empty(t, frames)
	require.Len(t, errs, 1)
	var ferr *FramingError
	require.True(t, errors.As(errs[0], &ferr))
	assert.Equal(t, StateStx, ferr.State)
	assert.Equal(t, byte(DLE), ferr.Byte)
	assert.Equal(t, StateIdle, d.State())

	frames, _ = decodeAll(d, (&Frame{Type: TypePoll}).Encode())
	require.Len(t, frames, 1)
}

func TestDecoder_OverflowOnEscapedETX(t *testing.T) {
	d := NewDecoder()
	data := []byte{SYN, SYN, STX, 'A', 'T'}
	data = append(data, bytes.Repeat([]byte{0x55}, MaxBodySize)...)
	data = append(data, DLE, ETX)

	frames, errs := decodeAll(d, data)
	assert.Empty(t, frames)
	require.Len(t, errs, 1)
	assert.Equal(t, StateSkipToEtx, d.State(), "escaped ETX is not a frame end")

	_, errs = decodeAll(d, []byte{0x01, ETX})
	assert.Empty(t, errs)
	assert.Equal(t, StateIdle, d.State())
}

func TestDecoder_FuzzRecovers(t *testing.T) {
	rng := newFuzzRng(t)
	good := (&Frame{Address: 3, Type: TypeTransmit, Body: []byte{0x10, 0x03, 0xAA}}).Encode()

	for round := 0; round < getFuzzRounds(); round++ {
		d := NewDecoder()
		garbage := make([]byte, rng.Intn(128))
		rng.Read(garbage)

		decodeAll(d, garbage)

		// Two ETX always reach Idle from any state
		decodeAll(d, []byte{ETX, ETX})
		require.Equal(t, StateIdle, d.State(), "round %d", round)

		frames, errs := decodeAll(d, good)
		require.Empty(t, errs, "round %d", round)
		require.Len(t, frames, 1, "round %d", round)
		assert.Equal(t, []byte{0x10, 0x03, 0xAA}, frames[0].Body)
	}
}

// ============================================================
// Link
// ============================================================

type fakeActions struct {
	inputs  map[uint8]uint16
	outputs map[uint8]byte
	actions []Target
	fail    bool
}

func newFakeActions() *fakeActions {
	return &fakeActions{inputs: map[uint8]uint16{}, outputs: map[uint8]byte{}}
}

func (f *fakeActions) InputLevels(node uint8) uint16 { return f.inputs[node] }
func (f *fakeActions) OutputStates(node uint8) byte  { return f.outputs[node] }

func (f *fakeActions) OnInputChanged(node, pin uint8, level bool) error {
	if level {
		return errors.New("unexpected Hi")
	}
	f.actions = append(f.actions, Target{Node: node, Pin: pin})
	if f.fail {
		return errors.New("input failed")
	}
	return nil
}

func (f *fakeActions) ToggleOutput(ref layout.Ref) error {
	f.actions = append(f.actions, Target{Output: true, Node: ref.Node, Pin: ref.Pin})
	return nil
}

func newTestLink(cfg Config, acts Actions) (*Link, chan byte, *bytes.Buffer) {
	ch := make(chan byte, 1024)
	out := &bytes.Buffer{}
	return NewLink(cfg, ChanSource(ch), out, acts, nil), ch, out
}

func feed(ch chan byte, data []byte) {
	for _, b := range data {
		ch <- b
	}
}

func serviceAll(l *Link) {
	for l.Service() {
	}
}

func TestLink_ServiceOneBytePerCall(t *testing.T) {
	l, ch, _ := newTestLink(DefaultConfig(), newFakeActions())
	feed(ch, []byte{SYN, SYN, STX})

	assert.True(t, l.Service())
	assert.Len(t, ch, 2)
	assert.True(t, l.Service())
	assert.True(t, l.Service())
	assert.False(t, l.Service(), "empty source must not block")
}

func TestLink_PollResponseShape(t *testing.T) {
	acts := newFakeActions()
	acts.inputs[0] = 0x1203
	acts.outputs[31] = 0x81

	cfg := Config{Address: 1, InputNodes: 8, OutputNodes: 32}
	l, ch, out := newTestLink(cfg, acts)
	feed(ch, (&Frame{Address: 1, Type: TypePoll}).Encode())
	serviceAll(l)

	frames, errs := decodeAll(NewDecoder(), out.Bytes())
	require.Empty(t, errs)
	require.Len(t, frames, 1)

	rsp := frames[0]
	assert.Equal(t, byte(TypeReceive), rsp.Type)
	assert.Equal(t, uint8(1), rsp.Address)
	require.Len(t, rsp.Body, 8*2+32*1)
	assert.Equal(t, []byte{0x03, 0x12}, rsp.Body[0:2])
	assert.Equal(t, byte(0x81), rsp.Body[len(rsp.Body)-1])
	assert.Equal(t, uint64(1), l.Statistics().Responses)
}

func TestLink_Transmit(t *testing.T) {
	acts := newFakeActions()
	cfg := Config{InputNodes: 8, OutputNodes: 32}
	l, ch, out := newTestLink(cfg, acts)

	body := make([]byte, cfg.BodySize())
	body[2] |= 1 << 3     // Input node 1 pin 3
	body[16+2] |= 1 << 5  // Output node 2 pin 5
	body[16+31] |= 1 << 7 // Output node 31 pin 7
	feed(ch, (&Frame{Type: TypeTransmit, Body: body}).Encode())
	serviceAll(l)

	assert.Equal(t, []Target{
		{Node: 1, Pin: 3},
		{Output: true, Node: 2, Pin: 5},
		{Output: true, Node: 31, Pin: 7},
	}, acts.actions)
	assert.Zero(t, out.Len(), "TRANSMIT is not answered")
	assert.Equal(t, uint64(1), l.Statistics().Transmits)
}

func TestLink_TransmitErrorsContinue(t *testing.T) {
	acts := newFakeActions()
	acts.fail = true
	l, _, _ := newTestLink(Config{InputNodes: 1, OutputNodes: 1}, acts)

	err := l.Handle(&Frame{Type: TypeTransmit, Body: []byte{0x03, 0x00, 0x01}})
	assert.Error(t, err)
	assert.Len(t, acts.actions, 3)
	assert.Equal(t, uint64(2), l.Statistics().ActionErrors)
}

func TestLink_IgnoresOtherFrames(t *testing.T) {
	acts := newFakeActions()
	l, ch, out := newTestLink(DefaultConfig(), acts)

	feed(ch, (&Frame{Address: 5, Type: TypePoll}).Encode())
	feed(ch, (&Frame{Type: TypeReceive, Body: []byte{0xFF}}).Encode())
	feed(ch, (&Frame{Type: TypeError}).Encode())
	serviceAll(l)

	assert.Zero(t, out.Len())
	assert.Empty(t, acts.actions)
	assert.Equal(t, uint64(1), l.Statistics().OtherAddress)
	assert.Equal(t, uint64(2), l.Statistics().Ignored)
}

func TestLink_Init(t *testing.T) {
	l, ch, _ := newTestLink(DefaultConfig(), newFakeActions())
	_, ok := l.Init()
	assert.False(t, ok)

	feed(ch, (&Frame{Type: TypeInit, Body: []byte{'N', 0x01, 0x02, 4}}).Encode())
	var seen []*Frame
	l.SetObserver(func(f *Frame, err error) {
		if f != nil {
			seen = append(seen, f)
		}
	})
	serviceAll(l)

	ini, ok := l.Init()
	require.True(t, ok)
	assert.Equal(t, Init{NodeType: 'N', Delay: 0x0102, Sets: 4}, ini)
	assert.Len(t, seen, 1)
}

func TestConfig_Locate(t *testing.T) {
	cfg := Config{InputNodes: 2, OutputNodes: 3}

	tests := []struct {
		bit  int
		want Target
		ok   bool
	}{
		{0, Target{Node: 0, Pin: 0}, true},
		{17, Target{Node: 1, Pin: 1}, true},
		{32, Target{Output: true, Node: 0, Pin: 0}, true},
		{55, Target{Output: true, Node: 2, Pin: 7}, true},
		{56, Target{}, false},
		{-1, Target{}, false},
	}

	for _, tt := range tests {
		got, ok := cfg.Locate(tt.bit)
		assert.Equal(t, tt.ok, ok, "bit %d", tt.bit)
		assert.Equal(t, tt.want, got, "bit %d", tt.bit)
	}
}

func TestFormatFrame(t *testing.T) {
	f := &Frame{Address: 0, Type: TypeTransmit, Body: []byte{0x05, 0x80}, Timestamp: time.Now()}
	s := FormatFrame(f)
	assert.Contains(t, s, "TRANSMIT")
	assert.Contains(t, s, "0, 2, 15")
	assert.Equal(t, "(none)", FormatBits([]byte{0, 0}))
}
