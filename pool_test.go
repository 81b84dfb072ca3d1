// pool_test.go: White-box tests for the scratch buffer pools.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetBufferExactSize(t *testing.T) {
	for _, size := range []int{0, 1, 12, 32, 33, 512, 513, 4096, 4097, DefaultChunkSize} {
		buf := getBuffer(size)
		require.NotNil(t, buf)
		assert.Len(t, *buf, size)
		putBuffer(buf)
	}
}

func TestPutBufferWipesWholeCapacity(t *testing.T) {
	buf := getBuffer(10)
	full := (*buf)[:cap(*buf)]
	for i := range full {
		full[i] = 0xAA
	}
	putBuffer(buf)
	for i, b := range full {
		if b != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
}

func TestOversizeBuffersAreNotPooled(t *testing.T) {
	before := GetPoolStats()
	buf := getBuffer(DefaultChunkSize + 1)
	assert.Len(t, *buf, DefaultChunkSize+1)
	putBuffer(buf)
	after := GetPoolStats()

	assert.Equal(t, before.Misses+1, after.Misses)
	assert.Equal(t, before.Puts, after.Puts, "odd capacities are dropped")
	assert.NotPanics(t, func() { putBuffer(nil) })
}

func TestPoolStatsAndWarmup(t *testing.T) {
	before := GetPoolStats()
	WarmupPools(3)
	after := GetPoolStats()
	assert.Equal(t, before.Gets+12, after.Gets)
	assert.Equal(t, before.Puts+12, after.Puts)
}
