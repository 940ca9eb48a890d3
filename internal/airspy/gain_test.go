package airspy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNearestAttenuatorStepBounds(t *testing.T) {
	assert.Equal(t, uint8(0), nearestAttenuatorStep(100))
	assert.Equal(t, uint8(8), nearestAttenuatorStep(-100))
}

func TestNearestAttenuatorStepMidRange(t *testing.T) {
	// gain 24 dB -> atten 24 dB -> step 4.
	assert.Equal(t, uint8(4), nearestAttenuatorStep(24))
}
