package emoji

import "testing"

func TestStatus(t *testing.T) {
	if got := Status(true); got != Success {
		t.Errorf("Status(true) = %q, want %q", got, Success)
	}
	if got := Status(false); got != Error {
		t.Errorf("Status(false) = %q, want %q", got, Error)
	}
}
