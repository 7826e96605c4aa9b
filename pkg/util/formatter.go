package util

import (
	"fmt"
	"math"
)

// prefixes are the scale factors the netlist reader accepts, largest first.
var prefixes = []struct {
	scale  float64
	symbol string
}{
	{1e12, "T"},
	{1e9, "G"},
	{1e6, "M"},
	{1e3, "k"},
	{1, ""},
	{1e-3, "m"},
	{1e-6, "u"},
	{1e-9, "n"},
	{1e-12, "p"},
	{1e-15, "f"},
}

// FormatValueFactor prints a value with three decimals behind the SI prefix
// that keeps the mantissa below 1000. Exact zeros, such as the current of a
// blocking ideal diode, print without a prefix. Values outside the prefix
// range fall back to exponent form.
func FormatValueFactor(value float64, unit string) string {
	switch {
	case math.IsNaN(value) || math.IsInf(value, 0):
		return fmt.Sprintf("%v %s", value, unit)
	case value == 0:
		return fmt.Sprintf("0.000 %s", unit)
	}

	abs := math.Abs(value)
	if abs < 1e3*prefixes[0].scale {
		for _, p := range prefixes {
			if abs >= p.scale {
				return fmt.Sprintf("%.3f %s%s", value/p.scale, p.symbol, unit)
			}
		}
	}
	return fmt.Sprintf("%.3e %s", value, unit)
}
