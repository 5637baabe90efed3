package modbus

import "testing"

// assertUint16Equal checks if two slices of uint16 are equal.
func assertUint16Equal(t *testing.T, expected []uint16, actual []uint16) {
	if len(expected) != len(actual) {
		t.Errorf("Expected length %d, but got %d", len(expected), len(actual))
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("Expected %v, but got %v", expected, actual)
			return
		}
	}
}

// assertBoolEqual checks if two slices of bool are equal.
func assertBoolEqual(t *testing.T, expected []bool, actual []bool) {
	if len(expected) != len(actual) {
		t.Errorf("Expected length %d, but got %d", len(expected), len(actual))
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("Expected %v, but got %v", expected, actual)
			return
		}
	}
}

// assertBytesEqual checks if two byte slices are equal.
func assertBytesEqual(t *testing.T, expected []byte, actual []byte) {
	if len(expected) != len(actual) {
		t.Errorf("Expected % X, but got % X", expected, actual)
		return
	}
	for i := range expected {
		if expected[i] != actual[i] {
			t.Errorf("Expected % X, but got % X", expected, actual)
			return
		}
	}
}
