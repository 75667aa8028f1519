package sandbox

import (
	"os"
	"testing"
)

// TestMain lets the test binary double as the sandbox worker so the process
// backend can be exercised without building the server.
func TestMain(m *testing.M) {
	if len(os.Args) > 1 && os.Args[1] == WorkerCommand {
		os.Exit(RunWorker(os.Stdin, os.Stdout, os.Stderr))
	}
	os.Exit(m.Run())
}
