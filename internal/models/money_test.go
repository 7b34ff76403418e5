package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMulAmount(t *testing.T) {
	tests := []struct {
		name string
		a, b int64
		want int64
		ok   bool
	}{
		{name: "small", a: 250, b: 4, want: 1000, ok: true},
		{name: "zero", a: 0, b: math.MaxInt64, want: 0, ok: true},
		{name: "bounded price and stock", a: MaxUnitPrice, b: MaxStock, want: MaxUnitPrice * MaxStock, ok: true},
		{name: "wraps past 64 bits", a: (1 << 62) + 1, b: 4, ok: false},
		{name: "exceeds int64", a: 1 << 62, b: 2, ok: false},
		{name: "negative", a: -1, b: 2, ok: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MulAmount(tt.a, tt.b)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAddAmount(t *testing.T) {
	got, ok := AddAmount(math.MaxInt64-1, 1)
	assert.True(t, ok)
	assert.Equal(t, int64(math.MaxInt64), got)

	_, ok = AddAmount(math.MaxInt64, 1)
	assert.False(t, ok)

	_, ok = AddAmount(math.MinInt64, -1)
	assert.False(t, ok)
}
