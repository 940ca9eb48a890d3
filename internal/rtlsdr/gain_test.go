package rtlsdr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNearestGainSnapsToClosestStep(t *testing.T) {
	table := []int{0, 90, 190, 420}
	assert.Equal(t, 0, nearestGain(table, -50))
	assert.Equal(t, 90, nearestGain(table, 100))
	assert.Equal(t, 190, nearestGain(table, 150))
	assert.Equal(t, 420, nearestGain(table, 1000))
}

func TestTunerGainTableNonEmptyForKnownTuners(t *testing.T) {
	for _, tuner := range []Tuner{TunerE4000, TunerFC0012, TunerFC0013, TunerR820T, TunerR828D} {
		assert.NotEmpty(t, tunerGainTable(tuner), tuner.String())
	}
}

func TestTunerStringUnknown(t *testing.T) {
	assert.Equal(t, "Unknown", TunerUnknown.String())
}
