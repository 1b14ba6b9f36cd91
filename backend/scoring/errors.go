// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package scoring

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrSelectionRequired is a precondition failure: the scorer has to pick
	// a batsman or bowler first. Nothing was changed.
	ErrSelectionRequired = errors.New("selection required")

	// ErrInvalidState means the operation is not allowed in the current phase.
	ErrInvalidState = errors.New("invalid state")

	// ErrMatchCompleted is returned for any write to a completed match.
	ErrMatchCompleted = fmt.Errorf("%w: match already completed", ErrInvalidState)

	ErrInvalidDelivery = errors.New("invalid delivery")
	ErrUnknownPlayer   = errors.New("unknown player")
	ErrInvalidMatch    = errors.New("invalid match")
	ErrInvalidTeam     = errors.New("invalid team")
)

// Selection is a bit set of the on-field slots that must be filled.
type Selection uint8

const (
	SelectNone       Selection = 0
	SelectStriker    Selection = 1 << 0
	SelectNonStriker Selection = 1 << 1
	SelectBowler     Selection = 1 << 2
)

func (s Selection) String() string {
	if s == SelectNone {
		return "none"
	}
	var parts []string
	if s&SelectStriker != 0 {
		parts = append(parts, "striker")
	}
	if s&SelectNonStriker != 0 {
		parts = append(parts, "non-striker")
	}
	if s&SelectBowler != 0 {
		parts = append(parts, "bowler")
	}
	return strings.Join(parts, "+")
}

func (s Selection) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Selection) UnmarshalText(b []byte) error {
	*s = SelectNone
	if string(b) == "none" {
		return nil
	}
	for _, part := range strings.Split(string(b), "+") {
		switch part {
		case "striker":
			*s |= SelectStriker
		case "non-striker":
			*s |= SelectNonStriker
		case "bowler":
			*s |= SelectBowler
		default:
			return fmt.Errorf("unknown selection %q", part)
		}
	}
	return nil
}

// SelectionError reports which selections are missing.
type SelectionError struct {
	Missing Selection
}

func (e *SelectionError) Error() string {
	return "select " + e.Missing.String() + " before recording a ball"
}

func (e *SelectionError) Unwrap() error {
	return ErrSelectionRequired
}
