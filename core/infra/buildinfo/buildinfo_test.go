package buildinfo

import (
	"bytes"
	"log"
	"runtime"
	"strings"
	"testing"
)

func TestInfoAndLog(t *testing.T) {
	origVersion := Version
	origCommit := Commit
	origDate := Date
	t.Cleanup(func() {
		Version = origVersion
		Commit = origCommit
		Date = origDate
	})

	Version = "1.2.3"
	Commit = "abc123"
	Date = "2024-01-02"

	info := Info()
	want := "version=1.2.3 commit=abc123 date=2024-01-02 go=" + runtime.Version()
	if info != want {
		t.Fatalf("unexpected info: %s", info)
	}

	fields := Fields()
	if fields["version"] != "1.2.3" || fields["commit"] != "abc123" || fields["date"] != "2024-01-02" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if fields["go"] != runtime.Version() {
		t.Fatalf("unexpected go version field: %s", fields["go"])
	}

	var buf bytes.Buffer
	origOutput := log.Writer()
	origFlags := log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(origOutput)
		log.SetFlags(origFlags)
	})

	Log("svc")
	got := strings.TrimSpace(buf.String())
	if !strings.Contains(got, "svc") || !strings.Contains(got, info) {
		t.Fatalf("unexpected log output: %s", got)
	}
}
