package safe

import (
	"math"
	"testing"
)

func TestSafeUint64ToInt64(t *testing.T) {
	tests := []struct {
		name            string
		input           uint64
		expectedValue   int64
		expectedClamped bool
	}{
		{
			name:            "zero value",
			input:           0,
			expectedValue:   0,
			expectedClamped: false,
		},
		{
			name:            "small positive value",
			input:           12345,
			expectedValue:   12345,
			expectedClamped: false,
		},
		{
			name:            "max int64 value",
			input:           math.MaxInt64,
			expectedValue:   math.MaxInt64,
			expectedClamped: false,
		},
		{
			name:            "max int64 plus one (overflow)",
			input:           math.MaxInt64 + 1,
			expectedValue:   math.MaxInt64,
			expectedClamped: true,
		},
		{
			name:            "max uint64 value (overflow)",
			input:           math.MaxUint64,
			expectedValue:   math.MaxInt64,
			expectedClamped: true,
		},
		{
			name:            "large value below max int64",
			input:           math.MaxInt64 - 1000,
			expectedValue:   math.MaxInt64 - 1000,
			expectedClamped: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, clamped := Uint64ToInt64(tt.input)
			if value != tt.expectedValue {
				t.Errorf("Uint64ToInt64(%d) value = %d, expected %d", tt.input, value, tt.expectedValue)
			}
			if clamped != tt.expectedClamped {
				t.Errorf("Uint64ToInt64(%d) clamped = %v, expected %v", tt.input, clamped, tt.expectedClamped)
			}
		})
	}
}

func TestIntToInt32(t *testing.T) {
	tests := []struct {
		name            string
		input           int
		expectedValue   int32
		expectedClamped bool
	}{
		{"zero", 0, 0, false},
		{"negative", -42, -42, false},
		{"max int32", math.MaxInt32, math.MaxInt32, false},
		{"above max int32", math.MaxInt32 + 1, math.MaxInt32, true},
		{"min int32", math.MinInt32, math.MinInt32, false},
		{"below min int32", math.MinInt32 - 1, math.MinInt32, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, clamped := IntToInt32(tt.input)
			if value != tt.expectedValue || clamped != tt.expectedClamped {
				t.Errorf("IntToInt32(%d) = (%d, %v), expected (%d, %v)",
					tt.input, value, clamped, tt.expectedValue, tt.expectedClamped)
			}
		})
	}
}

func TestIntToUint64(t *testing.T) {
	tests := []struct {
		name            string
		input           int
		expectedValue   uint64
		expectedClamped bool
	}{
		{"zero", 0, 0, false},
		{"positive frequency", 99, 99, false},
		{"negative clamps to zero", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, clamped := IntToUint64(tt.input)
			if value != tt.expectedValue || clamped != tt.expectedClamped {
				t.Errorf("IntToUint64(%d) = (%d, %v), expected (%d, %v)",
					tt.input, value, clamped, tt.expectedValue, tt.expectedClamped)
			}
		})
	}
}

func TestInt32ToUint32(t *testing.T) {
	tests := []struct {
		name            string
		input           int32
		expectedValue   uint32
		expectedClamped bool
	}{
		{"zero", 0, 0, false},
		{"positive stack id", 12345, 12345, false},
		{"negative stack id clamps to zero", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, clamped := Int32ToUint32(tt.input)
			if value != tt.expectedValue || clamped != tt.expectedClamped {
				t.Errorf("Int32ToUint32(%d) = (%d, %v), expected (%d, %v)",
					tt.input, value, clamped, tt.expectedValue, tt.expectedClamped)
			}
		})
	}
}
