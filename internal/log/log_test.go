// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package log

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogLevels(t *testing.T) {
	rl := new(RecordLogger)
	undo := UseLogger(rl)
	defer undo()

	SetLevel(LevelWarn)
	defer SetLevel(LevelWarn)
	Debug("this message is dropped %d", 1)
	Warn("warning %s", "one")
	Info("info %s", "two")
	logs := rl.Logs()
	require.Len(t, logs, 2)
	assert.Contains(t, logs[0], "WARN: warning one")
	assert.Contains(t, logs[1], "INFO: info two")

	rl.Reset()
	SetLevel(LevelDebug)
	assert.True(t, DebugEnabled())
	Debug("debug %s", "three")
	logs = rl.Logs()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "DEBUG: debug three")
}

func TestErrorAggregation(t *testing.T) {
	rl := new(RecordLogger)
	undo := UseLogger(rl)
	defer undo()

	for i := 0; i < 10; i++ {
		Error("something broke: %d", i)
	}
	Flush()
	logs := rl.Logs()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "ERROR: something broke: 0")
	assert.Contains(t, logs[0], "9 additional messages skipped")

	// a flush resets the aggregation
	rl.Reset()
	Flush()
	assert.Empty(t, rl.Logs())
}

func TestErrorLimit(t *testing.T) {
	rl := new(RecordLogger)
	undo := UseLogger(rl)
	defer undo()

	for i := 0; i < defaultErrorLimit+50; i++ {
		Error("spammy error")
	}
	Flush()
	logs := rl.Logs()
	require.Len(t, logs, 1)
	assert.Contains(t, logs[0], "additional messages skipped")
}

func TestPrefix(t *testing.T) {
	rl := new(RecordLogger)
	undo := UseLogger(rl)
	defer undo()
	Warn("hello")
	logs := rl.Logs()
	require.Len(t, logs, 1)
	assert.True(t, strings.HasPrefix(logs[0], "Datadog Tracer v"))
}
