package toothconv

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFDIToIndex(t *testing.T) {
	for code, want := range map[int]int{11: 0, 18: 7, 21: 8, 28: 15, 31: 16, 41: 24, 48: 31} {
		idx, err := FDIToIndex(code)
		require.NoError(t, err)
		assert.Equal(t, want, idx, "tooth %d", code)
	}
}

func TestFDIRoundTrip(t *testing.T) {
	seen := make(map[int]bool)
	for idx := 0; idx < NumClasses; idx++ {
		code, err := IndexToFDI(idx)
		require.NoError(t, err)
		assert.True(t, IsValidFDI(code))
		assert.False(t, seen[code], "code %d mapped twice", code)
		seen[code] = true

		back, err := FDIToIndex(code)
		require.NoError(t, err)
		assert.Equal(t, idx, back)
	}
	assert.Len(t, seen, NumClasses)
	assert.Equal(t, 11, FDICodes()[0])
	assert.Equal(t, 48, FDICodes()[NumClasses-1])
}

func TestInvalidFDI(t *testing.T) {
	for _, code := range []int{-1, 0, 9, 10, 19, 20, 39, 49, 51, 55, 85, 99, 111} {
		assert.False(t, IsValidFDI(code), "tooth %d", code)
		_, err := FDIToIndex(code)
		assert.Equal(t, ErrInvalidClass, errors.Cause(err), "tooth %d", code)
	}

	for _, idx := range []int{-1, NumClasses} {
		_, err := IndexToFDI(idx)
		assert.Equal(t, ErrInvalidClass, errors.Cause(err))
	}
}

func TestClassNames(t *testing.T) {
	names := ClassNames(nil)
	require.Len(t, names, NumClasses)
	assert.Equal(t, "11", names[0])
	assert.Equal(t, "21", names[8])

	names = ClassNames(map[int]string{21: "upper left central incisor", 12: ""})
	assert.Equal(t, "upper left central incisor", names[8])
	assert.Equal(t, "12", names[1])
}
