package reactor

import (
	"os"
	"testing"
)

// pipeForTest returns an os.Pipe for tests that need a real readable
// descriptor (e.g. exercising ReadFromFD's readv path).
func pipeForTest(t *testing.T) (*os.File, *os.File, error) {
	t.Helper()
	return os.Pipe()
}
