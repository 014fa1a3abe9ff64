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

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collectSmoother() (*Smoother, *[]string) {
	var chunks []string
	s := NewSmoother(func(text string) error {
		chunks = append(chunks, text)
		return nil
	})
	return s, &chunks
}

func TestSmoother_BuffersPartialWords(t *testing.T) {
	s, chunks := collectSmoother()

	require.NoError(t, s.Push("str"))
	require.NoError(t, s.Push("awber"))
	require.NoError(t, s.Push("ry"))

	// No whitespace seen yet, nothing should be emitted.
	assert.Empty(t, *chunks)

	require.NoError(t, s.Push(" season"))
	require.Equal(t, []string{"strawberry "}, *chunks)

	require.NoError(t, s.Flush())
	assert.Equal(t, []string{"strawberry ", "season"}, *chunks)
}

func TestSmoother_EveryChunkEndsOnWhitespace(t *testing.T) {
	s, chunks := collectSmoother()

	fragments := []string{"The ", "qui", "ck bro", "wn\nfox ", "jum", "ps"}
	for _, f := range fragments {
		require.NoError(t, s.Push(f))
	}

	for _, chunk := range *chunks {
		last := chunk[len(chunk)-1]
		assert.Contains(t, " \t\n\r", string(last),
			"chunk %q must end on whitespace before flush", chunk)
	}
}

func TestSmoother_ConcatenationIsByteIdentical(t *testing.T) {
	s, chunks := collectSmoother()

	fragments := []string{"Run", "ning  sh", "oes\tare ", "", "in sto", "ck!"}
	for _, f := range fragments {
		require.NoError(t, s.Push(f))
	}
	require.NoError(t, s.Flush())

	assert.Equal(t, strings.Join(fragments, ""), strings.Join(*chunks, ""))
}

func TestSmoother_FlushOnEmptyBufferEmitsNothing(t *testing.T) {
	s, chunks := collectSmoother()

	require.NoError(t, s.Flush())
	assert.Empty(t, *chunks)

	require.NoError(t, s.Push("word "))
	require.NoError(t, s.Flush())
	require.NoError(t, s.Flush())
	assert.Equal(t, []string{"word "}, *chunks)
}

func TestSmoother_PropagatesEmitError(t *testing.T) {
	sinkErr := errors.New("sink closed")
	s := NewSmoother(func(string) error { return sinkErr })

	assert.NoError(t, s.Push("partial"))
	assert.ErrorIs(t, s.Push(" more"), sinkErr)
	assert.ErrorIs(t, s.Flush(), sinkErr)
}
