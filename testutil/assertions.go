// Package testutil holds assertion helpers and fakes shared by qacut tests.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"reflect"
	"strings"
	"testing"
	"time"
)

func fail(t *testing.T, msg, format string, args ...interface{}) {
	t.Helper()
	args = append([]interface{}{msg}, args...)
	t.Fatalf("%s: "+format, args...)
}

// AssertEqual compares comparable values with ==. Use len checks or
// reflect.DeepEqual for slices and maps.
func AssertEqual(t *testing.T, expected, actual interface{}, msg string) {
	t.Helper()
	if expected != actual {
		fail(t, msg, "expected %v, got %v", expected, actual)
	}
}

func AssertTrue(t *testing.T, condition bool, msg string) {
	t.Helper()
	if !condition {
		fail(t, msg, "expected true, got false")
	}
}

func AssertFalse(t *testing.T, condition bool, msg string) {
	t.Helper()
	if condition {
		fail(t, msg, "expected false, got true")
	}
}

// isNil also treats typed nil pointers, maps, slices and funcs as nil.
func isNil(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func AssertNotNil(t *testing.T, value interface{}, msg string) {
	t.Helper()
	if isNil(value) {
		fail(t, msg, "expected non-nil value")
	}
}

func AssertNoError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		fail(t, msg, "unexpected error: %v", err)
	}
}

func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		fail(t, msg, "expected an error but got nil")
	}
}

// AssertErrorContains requires a non-nil error whose message has substr.
func AssertErrorContains(t *testing.T, err error, substr string, msg string) {
	t.Helper()
	if err == nil {
		fail(t, msg, "expected an error containing %q, got nil", substr)
	}
	if !strings.Contains(err.Error(), substr) {
		fail(t, msg, "error %q does not contain %q", err.Error(), substr)
	}
}

func AssertStringContains(t *testing.T, str, substr string, msg string) {
	t.Helper()
	if !strings.Contains(str, substr) {
		fail(t, msg, "%q does not contain %q", str, substr)
	}
}

func AssertStringNotContains(t *testing.T, str, substr string, msg string) {
	t.Helper()
	if strings.Contains(str, substr) {
		fail(t, msg, "%q should not contain %q", str, substr)
	}
}

// AssertFloatNear compares timestamps and similarity scores within eps.
func AssertFloatNear(t *testing.T, expected, actual, eps float64, msg string) {
	t.Helper()
	if math.Abs(expected-actual) > eps {
		fail(t, msg, "expected %v ± %v, got %v", expected, eps, actual)
	}
}

// AssertFileExists requires path to exist.
func AssertFileExists(t *testing.T, path, msg string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		fail(t, msg, "expected %s to exist: %v", path, err)
	}
}

// AssertNoFile requires path to be absent.
func AssertNoFile(t *testing.T, path, msg string) {
	t.Helper()
	if _, err := os.Stat(path); err == nil {
		fail(t, msg, "expected %s to be absent", path)
	} else if !os.IsNotExist(err) {
		fail(t, msg, "stat %s: %v", path, err)
	}
}

// AssertJSONKeys decodes data as an object and requires every key.
func AssertJSONKeys(t *testing.T, data []byte, msg string, keys ...string) {
	t.Helper()
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		fail(t, msg, "invalid JSON object: %v", err)
	}
	for _, k := range keys {
		if _, ok := obj[k]; !ok {
			fail(t, msg, "missing key %q", k)
		}
	}
}

// AssertEventually polls condition every interval until it holds or
// timeout passes.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, interval time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		if condition() {
			return
		}
		if time.Now().After(deadline) {
			fail(t, msg, "condition did not become true within %v", timeout)
		}
		time.Sleep(interval)
	}
}
