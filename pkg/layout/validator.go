// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package layout

import "fmt"

// AnomalyType represents different kinds of definition problems
type AnomalyType int

const (
	AnomalySelfLock AnomalyType = iota
	AnomalyInvalidRef
	AnomalyInvalidType
	AnomalyInvalidMode
)

// ValidationError represents a definition validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// ValidateOutputDef checks an OutputDef stored at self.
// Returns a slice of validation errors (empty if the definition is valid)
func ValidateOutputDef(def *OutputDef, self Ref) []ValidationError {
	errors := []ValidationError{}

	if !def.Type.Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidType,
			Message: fmt.Sprintf("Invalid output type=%d", uint8(def.Type)),
			Details: map[string]interface{}{"type": uint8(def.Type)},
		})
	}

	errors = append(errors, validateLocks("lo", def.LoLocks[:], self)...)
	errors = append(errors, validateLocks("hi", def.HiLocks[:], self)...)

	return errors
}

func validateLocks(side string, locks []Lock, self Ref) []ValidationError {
	errors := []ValidationError{}

	for i, l := range locks {
		if !l.Enabled {
			continue
		}
		if !l.Ref.Valid() {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidRef,
				Message: fmt.Sprintf("%s lock %d references invalid output %s", side, i, l.Ref),
				Details: map[string]interface{}{"side": side, "index": i, "ref": l.Ref},
			})
			continue
		}
		if l.Ref == self {
			errors = append(errors, ValidationError{
				Type:    AnomalySelfLock,
				Message: fmt.Sprintf("%s lock %d references its own output %s", side, i, self),
				Details: map[string]interface{}{"side": side, "index": i, "ref": l.Ref},
			})
		}
	}

	return errors
}

// ValidateInputDef checks the mode and every used output slot.
func ValidateInputDef(def *InputDef) []ValidationError {
	errors := []ValidationError{}

	if !def.Mode.Valid() {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidMode,
			Message: fmt.Sprintf("Invalid input mode=%d", uint8(def.Mode)),
			Details: map[string]interface{}{"mode": uint8(def.Mode)},
		})
	}

	for i, s := range def.Slots {
		if s.Used && !s.Delay && !s.Ref.Valid() {
			errors = append(errors, ValidationError{
				Type:    AnomalyInvalidRef,
				Message: fmt.Sprintf("slot %d references invalid output %s", i, s.Ref),
				Details: map[string]interface{}{"index": i, "ref": s.Ref},
			})
		}
	}

	return errors
}
