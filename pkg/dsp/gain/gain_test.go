package gain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDbConversion(t *testing.T) {
	tests := []struct {
		name    string
		linear  float64
		db      float64
		epsilon float64
	}{
		{"Unity gain", 1.0, 0.0, 0.001},
		{"Half amplitude", 0.5, -6.02, 0.01},
		{"Double amplitude", 2.0, 6.02, 0.01},
		{"Quarter amplitude", 0.25, -12.04, 0.01},
		{"Zero amplitude", 0.0, MinDB, 0.001},
		{"Negative amplitude", -1.0, MinDB, 0.001},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.db, LinearToDb(tt.linear), tt.epsilon)

			// DbToLinear is skipped for MinDB cases
			if tt.db != MinDB {
				assert.InDelta(t, math.Abs(tt.linear), DbToLinear(tt.db), tt.epsilon)
			}
		})
	}
}

func TestPowerConversion(t *testing.T) {
	assert.InDelta(t, -3.0103, PowerToDb(0.5), 1e-4)
	assert.InDelta(t, 0.5, DbToPower(PowerToDb(0.5)), 1e-12)
	assert.Equal(t, MinDB, PowerToDb(0))
	assert.Equal(t, 0.0, DbToPower(MinDB))
}

func TestFloors(t *testing.T) {
	assert.Equal(t, -100.0, LinearToDbFloor(0, -100))
	assert.Equal(t, -100.0, LinearToDbFloor(1e-9, -100))
	assert.InDelta(t, -6.02, LinearToDbFloor(0.5, -100), 0.01)
	assert.Equal(t, -100.0, PowerToDbFloor(0, -100))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 24.0, Clamp(30, -24, 24))
	assert.Equal(t, -24.0, Clamp(-30, -24, 24))
	assert.Equal(t, 3.0, Clamp(3, -24, 24))
}

func TestApplyDb(t *testing.T) {
	in := []float64{1.0, 0.5, -0.5, -1.0}
	out := ApplyDb(in, -6.0206)

	for i := range in {
		assert.InDelta(t, in[i]*0.5, out[i], 1e-4)
	}
	// input untouched
	assert.Equal(t, 1.0, in[0])
}
