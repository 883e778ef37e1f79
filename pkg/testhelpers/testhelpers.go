// Package testhelpers provides small assertion helpers for tests that
// don't warrant a full-blown assertion library.
package testhelpers

import (
	"reflect"
	"testing"
)

// AssertEqual fails the test if expected != actual.
func AssertEqual[T comparable](t *testing.T, expected, actual T) {
	t.Helper()
	if expected != actual {
		t.Errorf("Expected %v, got %v", expected, actual)
	}
}

// AssertNotNil fails the test if v is nil.
func AssertNotNil(t *testing.T, v any) {
	t.Helper()
	if v == nil {
		t.Error("Expected a non-nil value")
		return
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Func, reflect.Map, reflect.Slice, reflect.Chan, reflect.Interface:
		if rv.IsNil() {
			t.Error("Expected a non-nil value")
		}
	}
}

// AssertTrue fails the test with msg if cond is false.
func AssertTrue(t *testing.T, cond bool, msg string) {
	t.Helper()
	if !cond {
		t.Error(msg)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Error("Expected an error, got nil")
	}
}

// AssertNoError fails the test if err is non-nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

// CommandAnnotationTest describes one expected annotation on a command.
type CommandAnnotationTest struct {
	Key      string
	Expected string
}

// TestCommandAnnotations checks a command's annotations against the expected values.
func TestCommandAnnotations(t *testing.T, annotations map[string]string, tests []CommandAnnotationTest) {
	t.Helper()
	for _, tt := range tests {
		if got := annotations[tt.Key]; got != tt.Expected {
			t.Errorf("Expected annotation %q = %q, got %q", tt.Key, tt.Expected, got)
		}
	}
}
