// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"errors"
	"fmt"
	"time"
)

// Statistics tracks frame counts and error rates on a link
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Counters
	TotalFrames   uint64
	Inits         uint64
	Polls         uint64
	Transmits     uint64
	Ignored       uint64
	OtherAddress  uint64
	FramingErrors uint64
	Responses     uint64
	ActionErrors  uint64

	// Rates (calculated)
	FrameRate float64 // frames/sec
	ErrorRate float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// Update records one decoder result
func (s *Statistics) Update(f *Frame, decodeErr error) {
	if decodeErr != nil {
		var ferr *FramingError
		if errors.As(decodeErr, &ferr) {
			s.FramingErrors++
		}
		s.LastUpdateTime = time.Now()
		return
	}
	if f == nil {
		return
	}

	s.TotalFrames++
	switch f.Type {
	case TypeInit:
		s.Inits++
	case TypePoll:
		s.Polls++
	case TypeTransmit:
		s.Transmits++
	default:
		s.Ignored++
	}
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates frame and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.FrameRate = float64(s.TotalFrames) / elapsed
		s.ErrorRate = float64(s.FramingErrors+s.ActionErrors) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== CMRI Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", s.TotalFrames)
	result += fmt.Sprintf("  INIT:            %6d\n", s.Inits)
	result += fmt.Sprintf("  POLL:            %6d\n", s.Polls)
	result += fmt.Sprintf("  TRANSMIT:        %6d\n", s.Transmits)
	if s.Ignored > 0 {
		result += fmt.Sprintf("  Ignored:         %6d\n", s.Ignored)
	}
	if s.OtherAddress > 0 {
		result += fmt.Sprintf("Other Address:   %8d\n", s.OtherAddress)
	}
	result += fmt.Sprintf("Responses:       %8d\n", s.Responses)
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", s.FramingErrors)
	}
	if s.ActionErrors > 0 {
		result += fmt.Sprintf("Action Errors:   %8d\n", s.ActionErrors)
	}

	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", s.FrameRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "======================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
