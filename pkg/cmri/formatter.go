// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmri

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.Timestamp.Format("15:04:05.000")
	result := fmt.Sprintf("[%s] %s (0x%02X) ua=%d len=%d\n",
		timestamp, FormatType(f.Type), f.Type, f.Address, len(f.Body))

	if len(f.Body) > 0 {
		result += FormatBody(f.Type, f.Body)
	}

	return result
}

// FormatType returns the human-readable name for a message type
func FormatType(t byte) string {
	switch t {
	case TypeInit:
		return "INIT"
	case TypePoll:
		return "POLL"
	case TypeReceive:
		return "RECEIVE"
	case TypeTransmit:
		return "TRANSMIT"
	case TypeError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// FormatBody formats the body based on message type
func FormatBody(t byte, body []byte) string {
	switch t {
	case TypeInit:
		ini, err := ParseInit(body)
		if err != nil {
			break
		}
		return fmt.Sprintf("  Node type: %c, Delay: %d, Sets: %d\n", ini.NodeType, ini.Delay, ini.Sets)

	case TypeTransmit, TypeReceive:
		return fmt.Sprintf("  Bytes: % X\n  Set bits: %s\n", body, FormatBits(body))
	}

	return fmt.Sprintf("  Bytes: % X\n", body)
}

// FormatBits lists the indices of set bits, LSB of byte 0 first
func FormatBits(body []byte) string {
	var bits []string
	for i, b := range body {
		for j := 0; j < 8; j++ {
			if b&(1<<j) != 0 {
				bits = append(bits, fmt.Sprintf("%d", i*8+j))
			}
		}
	}
	if len(bits) == 0 {
		return "(none)"
	}
	return strings.Join(bits, ", ")
}
