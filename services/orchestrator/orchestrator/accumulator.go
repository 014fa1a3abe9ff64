// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// This file implements secure accumulation of the assistant's answer during
// streaming. Tokens are stored in mlocked memory so partial responses never
// swap to disk, and are incrementally hashed for the persisted content hash.
package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"log/slog"
	"os"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

const (
	// AnswerBufferSize is the mlocked buffer size for answer accumulation.
	// 512 KB holds roughly 131,000 tokens at 4 bytes/token.
	AnswerBufferSize = 512 * 1024

	// minMlockLimitKB is the minimum mlock limit required in kilobytes.
	minMlockLimitKB = 512
)

var (
	memguardInitOnce    sync.Once
	mlockSufficient     bool
	currentMlockLimitKB int64
)

// AnswerAccumulator collects streamed answer tokens for final persistence.
//
// # Description
//
// Write appends tokens as they arrive; Finalize returns the complete answer
// plus its SHA-256 hash and wipes the buffer. Destroy wipes without
// returning data, for error paths. Neither can be called after the other.
//
// # Thread Safety
//
// Implementations are safe for concurrent use.
type AnswerAccumulator interface {
	Write(token string) error
	Finalize() (answer string, hash string, err error)
	Destroy()
	ID() string
}

// NewAnswerAccumulator creates an accumulator backed by mlocked memory.
//
// If the system's mlock limit is too low, behavior depends on
// ALEUTIAN_INSECURE_MEMORY: "true" falls back to ordinary memory with a
// warning, anything else is a hard error.
func NewAnswerAccumulator() (AnswerAccumulator, error) {
	memguardInitOnce.Do(func() {
		memguard.CatchInterrupt()
		mlockSufficient, currentMlockLimitKB = checkMlockLimit()
		if mlockSufficient {
			slog.Info("Secure memory initialized",
				"mlock_limit_kb", currentMlockLimitKB, "required_kb", minMlockLimitKB)
		}
	})

	if !mlockSufficient {
		if os.Getenv("ALEUTIAN_INSECURE_MEMORY") == "true" {
			slog.Warn("SECURITY: Using insecure answer accumulator - mlock limit insufficient",
				"current_limit_kb", currentMlockLimitKB, "required_kb", minMlockLimitKB)
			return newInsecureAccumulator(), nil
		}
		return nil, fmt.Errorf(
			"mlock limit insufficient: have %d KB, need %d KB. "+
				"Configure system limits or set ALEUTIAN_INSECURE_MEMORY=true",
			currentMlockLimitKB, minMlockLimitKB)
	}

	buf := memguard.NewBuffer(AnswerBufferSize)
	if buf == nil {
		return nil, fmt.Errorf("failed to allocate secure buffer of %d bytes", AnswerBufferSize)
	}
	buf.Melt()
	return &secureAccumulator{
		id:     uuid.New().String(),
		buffer: buf,
		hasher: sha256.New(),
	}, nil
}

// checkMlockLimit queries the kernel's RLIMIT_MEMLOCK.
func checkMlockLimit() (bool, int64) {
	var rlimit unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlimit); err != nil {
		slog.Warn("Could not determine mlock limit", "error", err)
		return true, -1
	}
	if rlimit.Cur == unix.RLIM_INFINITY {
		return true, -1
	}
	limitKB := int64(rlimit.Cur / 1024)
	return limitKB >= minMlockLimitKB, limitKB
}

// PurgeSecureMemory wipes all memguard-allocated memory. Called during
// graceful shutdown.
func PurgeSecureMemory() {
	memguard.Purge()
	slog.Info("Purged all secure memory")
}

// =============================================================================
// Secure Implementation
// =============================================================================

// secureAccumulator stores tokens in an mlocked, guard-paged buffer and
// hashes them as they arrive.
type secureAccumulator struct {
	id        string
	mu        sync.Mutex
	buffer    *memguard.LockedBuffer
	offset    int
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func (a *secureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("secure buffer overflow - response too large")
	}
	tokenBytes := []byte(token)
	if a.offset+len(tokenBytes) > AnswerBufferSize {
		a.overflow = true
		return fmt.Errorf("secure buffer overflow: need %d bytes, have %d remaining",
			len(tokenBytes), AnswerBufferSize-a.offset)
	}
	copy(a.buffer.Bytes()[a.offset:], tokenBytes)
	a.offset += len(tokenBytes)
	a.hasher.Write(tokenBytes)
	return nil
}

func (a *secureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	answer := string(a.buffer.Bytes()[:a.offset])
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()

	slog.Debug("Finalized answer accumulator",
		"accumulator_id", a.id, "answer_length", len(answer))
	return answer, hashStr, nil
}

func (a *secureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *secureAccumulator) ID() string { return a.id }

func (a *secureAccumulator) wipe() {
	if a.buffer != nil {
		a.buffer.Destroy()
	}
	a.destroyed = true
}

// =============================================================================
// Insecure Fallback
// =============================================================================

// insecureAccumulator is the fallback for systems without sufficient mlock.
// Same contract, ordinary Go memory; wiping is best-effort only.
type insecureAccumulator struct {
	id        string
	mu        sync.Mutex
	data      []byte
	hasher    hash.Hash
	overflow  bool
	destroyed bool
}

func newInsecureAccumulator() *insecureAccumulator {
	return &insecureAccumulator{
		id:     uuid.New().String(),
		data:   make([]byte, 0, AnswerBufferSize),
		hasher: sha256.New(),
	}
}

func (a *insecureAccumulator) Write(token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		return fmt.Errorf("buffer overflow - response too large")
	}
	tokenBytes := []byte(token)
	if len(a.data)+len(tokenBytes) > AnswerBufferSize {
		a.overflow = true
		return fmt.Errorf("buffer overflow: need %d bytes, have %d remaining",
			len(tokenBytes), AnswerBufferSize-len(a.data))
	}
	a.data = append(a.data, tokenBytes...)
	a.hasher.Write(tokenBytes)
	return nil
}

func (a *insecureAccumulator) Finalize() (string, string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.destroyed {
		return "", "", fmt.Errorf("accumulator already destroyed")
	}
	if a.overflow {
		a.wipe()
		return "", "", fmt.Errorf("buffer overflowed during accumulation")
	}

	answer := string(a.data)
	hashStr := hex.EncodeToString(a.hasher.Sum(nil))
	a.wipe()
	return answer, hashStr, nil
}

func (a *insecureAccumulator) Destroy() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.destroyed {
		return
	}
	a.wipe()
}

func (a *insecureAccumulator) ID() string { return a.id }

func (a *insecureAccumulator) wipe() {
	for i := range a.data {
		a.data[i] = 0
	}
	a.data = nil
	a.destroyed = true
}

var (
	_ AnswerAccumulator = (*secureAccumulator)(nil)
	_ AnswerAccumulator = (*insecureAccumulator)(nil)
)
