package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadInput(t *testing.T) {
	_, err := New(-1, "TRY")
	assert.ErrorIs(t, err, ErrNegativeAmount)

	_, err = New(100, "tl")
	assert.ErrorIs(t, err, ErrInvalidCurrency)

	_, err = New(100, "TRYY")
	assert.ErrorIs(t, err, ErrInvalidCurrency)
}

func TestAddRequiresMatchingCurrency(t *testing.T) {
	try := MustNew(100, "TRY")
	usd := MustNew(100, "USD")

	_, err := try.Add(usd)
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	sum, err := try.Add(MustNew(50, "TRY"))
	require.NoError(t, err)
	assert.Equal(t, MustNew(150, "TRY"), sum)
}

func TestSubtractNeverGoesNegative(t *testing.T) {
	a := MustNew(50, "TRY")
	b := MustNew(80, "TRY")

	_, err := a.Subtract(b)
	assert.ErrorIs(t, err, ErrNegativeResult)

	rest, err := b.Subtract(a)
	require.NoError(t, err)
	assert.Equal(t, int64(30), rest.Amount)
}

func TestMultiplyPreservesCurrency(t *testing.T) {
	m := MustNew(10, "TRY")

	out, err := m.Multiply(3)
	require.NoError(t, err)
	assert.Equal(t, MustNew(30, "TRY"), out)

	_, err = m.Multiply(-1)
	assert.ErrorIs(t, err, ErrInvalidFactor)
}

func TestPercentRounds(t *testing.T) {
	m := MustNew(15000, "TRY")

	tenPct, err := m.Percent(10)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), tenPct.Amount)

	odd, err := MustNew(333, "TRY").Percent(10)
	require.NoError(t, err)
	assert.Equal(t, int64(33), odd.Amount)

	_, err = m.Percent(-5)
	assert.ErrorIs(t, err, ErrInvalidFactor)
}

func TestMin(t *testing.T) {
	a := MustNew(1000, "TRY")
	b := MustNew(400, "TRY")

	got, err := a.Min(b)
	require.NoError(t, err)
	assert.Equal(t, b, got)

	_, err = a.Min(MustNew(1, "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
}
