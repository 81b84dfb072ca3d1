// pool.go: Scratch buffer pools for stream chunks and framing.
//
// Buffers hold plaintext, so every buffer is wiped before it goes back to a
// pool and a pooled buffer never reaches a caller.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"sync"
	"sync/atomic"
)

const (
	smallBufferSize  = 32
	mediumBufferSize = 512
	largeBufferSize  = 4 * 1024
	chunkBufferSize  = DefaultChunkSize
)

var (
	smallBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, smallBufferSize) // nonces, keys, frame headers
			return &buf
		},
	}

	mediumBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, mediumBufferSize)
			return &buf
		},
	}

	largeBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, largeBufferSize)
			return &buf
		},
	}

	chunkBufferPool = sync.Pool{
		New: func() interface{} {
			buf := make([]byte, chunkBufferSize) // one stream chunk at the default size
			return &buf
		},
	}

	poolGets   atomic.Int64
	poolPuts   atomic.Int64
	poolMisses atomic.Int64
)

// getBuffer returns a buffer of exactly size bytes. Sizes above the chunk
// class are allocated directly and are not pooled.
func getBuffer(size int) *[]byte {
	var pool *sync.Pool
	switch {
	case size <= smallBufferSize:
		pool = &smallBufferPool
	case size <= mediumBufferSize:
		pool = &mediumBufferPool
	case size <= largeBufferSize:
		pool = &largeBufferPool
	case size <= chunkBufferSize:
		pool = &chunkBufferPool
	default:
		poolMisses.Add(1)
		buf := make([]byte, size)
		return &buf
	}
	poolGets.Add(1)
	buf := pool.Get().(*[]byte)
	*buf = (*buf)[:size]
	return buf
}

// putBuffer wipes the whole backing array and returns it to its pool.
func putBuffer(buf *[]byte) {
	if buf == nil {
		return
	}
	full := (*buf)[:cap(*buf)]
	Zeroize(full)

	switch cap(full) {
	case smallBufferSize:
		smallBufferPool.Put(buf)
	case mediumBufferSize:
		mediumBufferPool.Put(buf)
	case largeBufferSize:
		largeBufferPool.Put(buf)
	case chunkBufferSize:
		chunkBufferPool.Put(buf)
	default:
		return
	}
	poolPuts.Add(1)
}

// PoolStats reports buffer pool usage since process start.
type PoolStats struct {
	Gets   int64 // buffers served from a pool
	Puts   int64 // buffers wiped and returned
	Misses int64 // oversized requests allocated directly
}

// GetPoolStats returns the current pool counters.
func GetPoolStats() PoolStats {
	return PoolStats{
		Gets:   poolGets.Load(),
		Puts:   poolPuts.Load(),
		Misses: poolMisses.Load(),
	}
}

// WarmupPools pre-allocates count buffers in every size class.
func WarmupPools(count int) {
	bufs := make([]*[]byte, 0, count*4)
	for i := 0; i < count; i++ {
		bufs = append(bufs,
			getBuffer(smallBufferSize),
			getBuffer(mediumBufferSize),
			getBuffer(largeBufferSize),
			getBuffer(chunkBufferSize))
	}
	for _, b := range bufs {
		putBuffer(b)
	}
}
