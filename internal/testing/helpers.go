package testing

import (
	"os"
	"testing"
)

// DefaultNATSURL is used by integration tests when OMNITARGET_NATS_URL is unset.
const DefaultNATSURL = "nats://127.0.0.1:4222"

// Unit returns true if running in unit test mode.
// Unit tests should be fast and not require external services.
// OMNITARGET_UNIT_TESTS_ONLY=true forces unit mode and
// OMNITARGET_RUN_INTEGRATION_TESTS=true enables integration tests.
func Unit() bool {
	if os.Getenv("OMNITARGET_UNIT_TESTS_ONLY") == "true" {
		return true
	}
	if os.Getenv("OMNITARGET_RUN_INTEGRATION_TESTS") == "true" {
		return false
	}
	// Default to unit mode if not explicitly running integration tests
	return true
}

// Integration returns true if running in integration test mode.
// Integration tests may require external services such as a NATS server.
func Integration() bool {
	return !Unit()
}

// SkipIfUnit skips the test if running in unit test mode.
func SkipIfUnit(t *testing.T, message ...string) {
	t.Helper()
	if Unit() {
		msg := "Skipping integration test in unit mode"
		if len(message) > 0 {
			msg = message[0]
		}
		t.Skip(msg)
	}
}

// SkipIfIntegration skips the test if running in integration test mode.
func SkipIfIntegration(t *testing.T, message ...string) {
	t.Helper()
	if Integration() {
		msg := "Skipping unit-only test in integration mode"
		if len(message) > 0 {
			msg = message[0]
		}
		t.Skip(msg)
	}
}

// NATSURL returns the server integration tests publish to.
func NATSURL() string {
	if u := os.Getenv("OMNITARGET_NATS_URL"); u != "" {
		return u
	}
	return DefaultNATSURL
}
