// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package stream

import "strings"

// Smoother rechunks raw model deltas on word boundaries.
//
// # Description
//
// Upstream token deltas split words arbitrarily ("str", "awber", "ry"),
// which renders badly in clients that animate per chunk. Smoother buffers
// fragments and re-emits them so every chunk ends on whitespace. The
// concatenation of emitted chunks is always byte-identical to the
// concatenation of pushed fragments.
//
// # Limitations
//
//   - Not safe for concurrent use; callers serialize Push/Flush.
type Smoother struct {
	pending string
	emit    func(text string) error
}

// NewSmoother creates a smoother that delivers rechunked text to emit.
func NewSmoother(emit func(text string) error) *Smoother {
	return &Smoother{emit: emit}
}

// Push adds a raw fragment, emitting any now-complete words.
func (s *Smoother) Push(fragment string) error {
	if fragment == "" {
		return nil
	}
	s.pending += fragment

	// Emit up to and including the last whitespace; everything after it
	// may still be a partial word.
	cut := strings.LastIndexAny(s.pending, " \t\n\r")
	if cut < 0 {
		return nil
	}
	out := s.pending[:cut+1]
	s.pending = s.pending[cut+1:]
	return s.emit(out)
}

// Flush emits any buffered partial word. Called once at end of generation.
func (s *Smoother) Flush() error {
	if s.pending == "" {
		return nil
	}
	out := s.pending
	s.pending = ""
	return s.emit(out)
}
