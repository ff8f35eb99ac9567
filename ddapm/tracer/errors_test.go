// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorWithPrefix(t *testing.T) {
	err := newError(ErrCodeInvalidInteger, "%q is not a valid integer", "abc")
	chained := err.WithPrefix("could not extract trace ID from x-datadog-trace-id: ")
	assert.True(t, IsErrorCode(chained, ErrCodeInvalidInteger))
	assert.Contains(t, chained.Error(), "x-datadog-trace-id")
	assert.Contains(t, chained.Error(), `"abc"`)
	// the original is untouched
	assert.NotContains(t, err.Error(), "x-datadog-trace-id")
}

func TestIsErrorCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("outer context: %w", newError(ErrCodeNoSpanToExtract, "nothing there"))
	assert.True(t, IsErrorCode(err, ErrCodeNoSpanToExtract))
	assert.False(t, IsErrorCode(err, ErrCodeInvalidInteger))
	assert.False(t, IsErrorCode(nil, ErrCodeInvalidInteger))
}

func TestErrorCodeString(t *testing.T) {
	assert.Equal(t, "inconsistent extraction styles", ErrCodeInconsistentExtractionStyles.String())
	assert.Contains(t, (&Error{Code: ErrCodeRateOutOfRange, Message: "boom"}).Error(), "rate out of range")
}
