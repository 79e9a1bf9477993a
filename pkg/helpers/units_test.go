package helpers

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToBaseUnits(t *testing.T) {
	v, err := ToBaseUnits("1.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "1500000000000000000", v.String())

	v, err = ToBaseUnits("42", 0)
	require.NoError(t, err)
	assert.Equal(t, "42", v.String())

	_, err = ToBaseUnits("0.0000001", 6)
	assert.Error(t, err)
	_, err = ToBaseUnits("-1", 18)
	assert.Error(t, err)
	_, err = ToBaseUnits("abc", 18)
	assert.Error(t, err)
}

func TestFromBaseUnits(t *testing.T) {
	v, _ := new(big.Int).SetString("1234567890000000000", 10)
	assert.Equal(t, "1.23456789", FromBaseUnits(v, 18, -1))
	assert.Equal(t, "1.234", FromBaseUnits(v, 18, 3))
	assert.Equal(t, "0", FromBaseUnits(nil, 18, 3))
}
