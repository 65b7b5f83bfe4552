// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"errors"
	"fmt"
	"io"

	"github.com/Thermoquad/signalbox/pkg/layout"
	"go.uber.org/zap"
)

// Actions is what the link needs from the signal box
type Actions interface {
	InputLevels(node uint8) uint16
	OutputStates(node uint8) byte
	OnInputChanged(node, pin uint8, level bool) error
	ToggleOutput(ref layout.Ref) error
}

// Config sets the node address and the shape of the state image
type Config struct {
	Address     uint8
	InputNodes  int
	OutputNodes int
}

// DefaultConfig exposes every node at UA 0
func DefaultConfig() Config {
	return Config{
		InputNodes:  layout.InputNodes,
		OutputNodes: layout.OutputNodes,
	}
}

// BodySize is the length of a RECEIVE body before escaping
func (c Config) BodySize() int {
	return c.InputNodes*2 + c.OutputNodes
}

// Target is what one bit of the state image refers to
type Target struct {
	Output bool
	Node   uint8
	Pin    uint8
}

// Locate maps a bit index of the state image to its Input or Output pin.
// Input nodes come first at 16 bits each, then Output nodes at 8 bits each.
func (c Config) Locate(bit int) (Target, bool) {
	inputBits := c.InputNodes * layout.InputPins
	if bit < 0 {
		return Target{}, false
	}
	if bit < inputBits {
		return Target{Node: uint8(bit / layout.InputPins), Pin: uint8(bit % layout.InputPins)}, true
	}
	bit -= inputBits
	if bit < c.OutputNodes*layout.OutputPins {
		return Target{Output: true, Node: uint8(bit / layout.OutputPins), Pin: uint8(bit % layout.OutputPins)}, true
	}
	return Target{}, false
}

// Link services one CMRI connection
type Link struct {
	cfg      Config
	src      ByteSource
	w        io.Writer
	actions  Actions
	decoder  *Decoder
	stats    *Statistics
	init     *Init
	observer func(*Frame, error)
	logger   *zap.Logger
}

// NewLink creates a link reading from src and answering on w
func NewLink(cfg Config, src ByteSource, w io.Writer, actions Actions, logger *zap.Logger) *Link {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg.InputNodes = min(max(cfg.InputNodes, 0), layout.InputNodes)
	cfg.OutputNodes = min(max(cfg.OutputNodes, 0), layout.OutputNodes)

	return &Link{
		cfg:     cfg,
		src:     src,
		w:       w,
		actions: actions,
		decoder: NewDecoder(),
		stats:   NewStatistics(),
		logger:  logger,
	}
}

// SetObserver registers fn to see every decoded frame and framing error
func (l *Link) SetObserver(fn func(*Frame, error)) {
	l.observer = fn
}

// Statistics returns the live counters
func (l *Link) Statistics() *Statistics {
	return l.stats
}

// Init returns the last INIT received, if any
func (l *Link) Init() (Init, bool) {
	if l.init == nil {
		return Init{}, false
	}
	return *l.init, true
}

// Service consumes at most one byte from the source. It never blocks and
// reports whether a byte was available.
func (l *Link) Service() bool {
	b, ok := l.src.TryReadByte()
	if !ok {
		return false
	}

	f, err := l.decoder.DecodeByte(b)
	l.stats.Update(f, err)
	if l.observer != nil && (f != nil || err != nil) {
		l.observer(f, err)
	}
	if err != nil {
		l.logger.Debug("CMRI framing error", zap.Error(err))
		return true
	}
	if f != nil {
		if err := l.Handle(f); err != nil {
			l.logger.Warn("CMRI frame handling failed",
				zap.String("type", FormatType(f.Type)), zap.Error(err))
		}
	}
	return true
}

// Handle acts on one decoded frame
func (l *Link) Handle(f *Frame) error {
	if f.Address != l.cfg.Address {
		l.stats.OtherAddress++
		return nil
	}

	switch f.Type {
	case TypeInit:
		ini, err := ParseInit(f.Body)
		if err != nil {
			return err
		}
		l.init = &ini
		l.logger.Info("CMRI init",
			zap.String("node_type", string(rune(ini.NodeType))),
			zap.Uint16("delay", ini.Delay),
			zap.Uint8("sets", ini.Sets))
		return nil

	case TypePoll:
		rsp := &Frame{Address: l.cfg.Address, Type: TypeReceive, Body: l.PollResponse()}
		if _, err := l.w.Write(rsp.Encode()); err != nil {
			return fmt.Errorf("write receive: %w", err)
		}
		l.stats.Responses++
		return nil

	case TypeTransmit:
		return l.transmit(f.Body)
	}

	// RECEIVE and ERROR only ever flow from this side
	return nil
}

// PollResponse builds the RECEIVE body: each Input node's 16 levels then
// each Output node's 8 states.
func (l *Link) PollResponse() []byte {
	body := make([]byte, 0, l.cfg.BodySize())
	for n := 0; n < l.cfg.InputNodes; n++ {
		levels := l.actions.InputLevels(uint8(n))
		body = append(body, byte(levels), byte(levels>>8))
	}
	for n := 0; n < l.cfg.OutputNodes; n++ {
		body = append(body, l.actions.OutputStates(uint8(n)))
	}
	return body
}

// transmit actions every set bit in the body
func (l *Link) transmit(body []byte) error {
	var errs []error

	for i, b := range body {
		for j := 0; j < 8; j++ {
			if b&(1<<j) == 0 {
				continue
			}
			t, ok := l.cfg.Locate(i*8 + j)
			if !ok {
				continue
			}

			var err error
			if t.Output {
				err = l.actions.ToggleOutput(layout.Ref{Node: t.Node, Pin: t.Pin})
			} else {
				err = l.actions.OnInputChanged(t.Node, t.Pin, false)
			}
			if err != nil {
				l.stats.ActionErrors++
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}
