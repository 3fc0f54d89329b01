package toothconv

// FDI two-digit tooth numbering and the dense class index mapping.

import (
	"strconv"

	"github.com/pkg/errors"
)

// NumClasses is the number of permanent-tooth FDI codes, and therefore the number of dense
// class indices.
const NumClasses = 32

// fdiCodes lists the permanent-tooth FDI codes in class index order: quadrant 1-4, then position
// 1-8 within the quadrant.
var fdiCodes = func() (codes [NumClasses]int) {
	for q := 1; q <= 4; q++ {
		for p := 1; p <= 8; p++ {
			codes[(q-1)*8+p-1] = q*10 + p
		}
	}
	return codes
}()

// IsValidFDI reports whether code is one of the 32 permanent-tooth FDI codes.
func IsValidFDI(code int) bool {
	q, p := code/10, code%10
	return q >= 1 && q <= 4 && p >= 1 && p <= 8
}

// FDIToIndex returns the dense class index of the FDI code, e.g. 11 -> 0, 48 -> 31.
func FDIToIndex(code int) (int, error) {
	if !IsValidFDI(code) {
		return -1, errors.Wrapf(ErrInvalidClass, "tooth %d is not a permanent-tooth FDI code", code)
	}
	return (code/10-1)*8 + code%10 - 1, nil
}

// IndexToFDI is the inverse of FDIToIndex.
func IndexToFDI(idx int) (int, error) {
	if idx < 0 || idx >= NumClasses {
		return -1, errors.Wrapf(ErrInvalidClass, "class index %d out of range [0, %d)", idx,
			NumClasses)
	}
	return fdiCodes[idx], nil
}

// FDICodes returns the FDI codes in class index order.
func FDICodes() []int {
	codes := fdiCodes
	return codes[:]
}

// ClassNames returns the class names in index order. A name from labels (keyed by FDI code)
// takes precedence over the bare FDI number.
func ClassNames(labels map[int]string) []string {
	names := make([]string, NumClasses)
	for i, code := range fdiCodes {
		if name, ok := labels[code]; ok && name != "" {
			names[i] = name
		} else {
			names[i] = strconv.Itoa(code)
		}
	}
	return names
}
