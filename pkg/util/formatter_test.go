package util

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatValueFactor(t *testing.T) {
	tests := []struct {
		value float64
		unit  string
		want  string
	}{
		{8.644, "V", "8.644 V"},
		{-2.5e-3, "A", "-2.500 mA"},
		{4.7e-6, "A", "4.700 uA"},
		{1e-9, "A", "1.000 nA"},
		{3.3e-12, "A", "3.300 pA"},
		{20e-15, "A", "20.000 fA"},
		{15e3, "Ohm", "15.000 kOhm"},
		{-2.2e6, "Ohm", "-2.200 MOhm"},
		{0, "V", "0.000 V"},
		{math.Copysign(0, -1), "A", "0.000 A"},
		{1e-18, "A", "1.000e-18 A"},
		{5e15, "W", "5.000e+15 W"},
		{math.NaN(), "V", "NaN V"},
		{math.Inf(-1), "V", "-Inf V"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatValueFactor(tt.value, tt.unit))
	}
}
