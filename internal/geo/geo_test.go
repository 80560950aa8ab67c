package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKm(t *testing.T) {
	// Istanbul to Ankara.
	assert.InDelta(t, 351, DistanceKm(41.0082, 28.9784, 39.9334, 32.8597), 5)
	assert.Equal(t, 0.0, DistanceKm(10, 10, 10, 10))
}

func TestQibla(t *testing.T) {
	assert.InDelta(t, 151.6, Qibla(41.0082, 28.9784), 1)
	assert.InDelta(t, 125.6, Qibla(52.37, 4.90), 1)
}
