package collector

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSummary(t *testing.T) {
	s := NewSummary()
	require.Empty(t, s.Quantiles())

	for i := 1; i <= 100; i++ {
		s.Observe(time.Duration(i) * time.Millisecond)
	}

	require.Equal(t, uint64(100), s.Count())
	require.InDelta(t, 5.05, s.Sum(), 1e-9)

	quantiles := s.Quantiles()
	require.Len(t, quantiles, len(defaultObjectives))
	require.InDelta(t, 0.1, quantiles[1.0], 0.005)
	require.InDelta(t, 0.05, quantiles[0.5], 0.01)
}

func TestSummary_WithObjectives(t *testing.T) {
	s := NewSummary(WithObjectives(map[float64]float64{0.5: 0.05}))
	s.Observe(time.Second)

	require.Equal(t, map[float64]float64{0.5: 1}, s.Quantiles())
}
