package main

import (
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/matheus3301/cipherlog/internal/lock"
)

func TestDaemonDiagnosis(t *testing.T) {
	dir := t.TempDir()

	if got := daemonDiagnosis(dir); !strings.Contains(got, "not running") {
		t.Errorf("without lock: %q, want a not running hint", got)
	}

	l, err := lock.Acquire(dir)
	if err != nil {
		t.Fatal(err)
	}
	got := daemonDiagnosis(dir)
	if want := fmt.Sprintf("PID %d", os.Getpid()); !strings.Contains(got, want) {
		t.Errorf("with lock: %q, want it to name %s", got, want)
	}

	if err := l.Release(); err != nil {
		t.Fatal(err)
	}
	if got := daemonDiagnosis(dir); !strings.Contains(got, "not running") {
		t.Errorf("after release: %q, want a not running hint", got)
	}
}
