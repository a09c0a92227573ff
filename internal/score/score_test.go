package score

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func intPtr(n int) *int { return &n }

func TestCalculate(t *testing.T) {
	tests := []struct {
		name  string
		stars *int
		votes int
		want  float64
	}{
		{"no stars no votes", nil, 0, 0},
		{"nil stars counts as zero", nil, 5, 1},
		{"zero stars", intPtr(0), 0, 0},
		{"nine stars", intPtr(9), 0, 0.8},
		{"999 stars", intPtr(999), 0, 2.4},
		{"stars and votes", intPtr(99), 3, 2.2},
		{"negative stars treated as zero", intPtr(-10), 1, 0.2},
		{"rounds to two decimals", intPtr(1000), 0, 2.4},
		{"large star count", intPtr(150000), 10, 6.14},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Calculate(tt.stars, tt.votes))
		})
	}
}

func TestCalculate_Monotonic(t *testing.T) {
	assert.Greater(t, Calculate(intPtr(100), 1), Calculate(intPtr(100), 0))
	assert.Greater(t, Calculate(intPtr(1000), 0), Calculate(intPtr(100), 0))
}

func TestFromSQL(t *testing.T) {
	assert.Equal(t, Calculate(intPtr(99), 3), FromSQL(int64(99), int64(3)))
	assert.Equal(t, Calculate(nil, 2), FromSQL(nil, int64(2)))
	assert.Equal(t, Calculate(intPtr(9), 0), FromSQL(float64(9), nil))
	assert.Equal(t, 0.0, FromSQL("garbage", nil))
}
