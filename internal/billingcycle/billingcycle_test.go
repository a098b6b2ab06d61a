package billingcycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	cycle, err := Parse(" monthly ")
	require.NoError(t, err)
	assert.Equal(t, Monthly, cycle)

	_, err = Parse("weekly")
	assert.ErrorIs(t, err, ErrInvalidCycle)
}

func TestAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), Monthly.Advance(start))
	assert.Equal(t, time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC), Quarterly.Advance(start))
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), SemiAnnual.Advance(start))
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), Annual.Advance(start))
}
