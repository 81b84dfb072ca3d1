// audit_test.go: Test cases for audit loggers.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package crypto_test

import (
	"bufio"
	"bytes"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	crypto "github.com/agilira/cryptex"
)

func TestNoOpAuditLogger(t *testing.T) {
	var l crypto.AuditLogger = crypto.NoOpAuditLogger{}
	assert.NoError(t, l.Log("anything", true, nil))
}

func TestMemoryAuditLogger(t *testing.T) {
	l := &crypto.MemoryAuditLogger{}
	require.NoError(t, l.Log("a", true, map[string]interface{}{"k": "v"}))
	require.NoError(t, l.Log("b", false, nil))

	events := l.Events()
	require.Len(t, events, 2)
	assert.Equal(t, "a", events[0].Action)
	assert.True(t, events[0].Success)
	assert.Equal(t, "v", events[0].Metadata["k"])
	assert.Equal(t, "b", events[1].Action)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.False(t, events[0].Timestamp.IsZero())

	events[0].Action = "mutated"
	assert.Equal(t, "a", l.Events()[0].Action, "Events returns a copy")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = l.Log("concurrent", true, nil)
		}()
	}
	wg.Wait()
	assert.Len(t, l.Events(), 12)
}

func TestJSONAuditLogger(t *testing.T) {
	var buf bytes.Buffer
	l := crypto.NewJSONAuditLogger(&buf)
	require.NoError(t, l.Log("keyring.rotate", true, map[string]interface{}{"key_id": "abc"}))
	require.NoError(t, l.Log("config.decrypt", false, nil))

	sc := bufio.NewScanner(&buf)
	var got []crypto.AuditEvent
	for sc.Scan() {
		var ev crypto.AuditEvent
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
		got = append(got, ev)
	}
	require.Len(t, got, 2)
	assert.Equal(t, "keyring.rotate", got[0].Action)
	assert.Equal(t, "abc", got[0].Metadata["key_id"])
	assert.Equal(t, "config.decrypt", got[1].Action)
	assert.False(t, got[1].Success)
	assert.Len(t, got[0].ID, 36)
}
