// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016 Datadog, Inc.

package tracer

// Rate is a sampling probability, guaranteed to be within [0, 1] when
// obtained from RateFrom.
type Rate struct {
	value float64
}

// RateFrom validates v and returns it as a Rate. Values outside of [0, 1],
// including NaN, yield an error with code ErrCodeRateOutOfRange.
func RateFrom(v float64) (Rate, error) {
	// The comparison is written so that NaN fails it.
	if !(v >= 0 && v <= 1) {
		return Rate{}, newError(ErrCodeRateOutOfRange, "sampling rate %v is not within [0, 1]", v)
	}
	return Rate{value: v}, nil
}

// Float64 returns the rate as a float64.
func (r Rate) Float64() float64 { return r.value }

func rateOne() Rate  { return Rate{value: 1} }
func rateZero() Rate { return Rate{value: 0} }
