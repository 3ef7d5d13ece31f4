package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/mergegate/mergegate/core/engine/decide"
)

func TestEnvOr(t *testing.T) {
	t.Setenv("TEST_ENV", "")
	if got := envOr("TEST_ENV", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback value")
	}
	t.Setenv("TEST_ENV", " value ")
	if got := envOr("TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("expected trimmed env value")
	}
}

func TestNewFlagSetDefaults(t *testing.T) {
	t.Setenv("MERGEGATE_GATEWAY", "http://example.com")
	t.Setenv("MERGEGATE_ACTOR", "dev-1")
	t.Setenv("MERGEGATE_ROLES", "dev,security")
	fs := newFlagSet("test")
	if *fs.gateway != "http://example.com" {
		t.Fatalf("expected gateway from env, got %s", *fs.gateway)
	}
	if *fs.actor != "dev-1" {
		t.Fatalf("expected actor from env, got %s", *fs.actor)
	}
	if *fs.roles != "dev,security" {
		t.Fatalf("expected roles from env, got %s", *fs.roles)
	}
}

func TestNewClientTrimsGateway(t *testing.T) {
	c := newClient("http://localhost:8080/", "dev-1", "dev")
	if c.BaseURL != "http://localhost:8080" {
		t.Fatalf("expected trimmed base url, got %s", c.BaseURL)
	}
}

func TestSplitRoles(t *testing.T) {
	got := splitRoles(" dev, security ,,")
	want := []string{"dev", "security"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected roles: %v", got)
	}
	if splitRoles("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestChangedFilesInlinesContentFile(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "policy.yaml")
	if err := os.WriteFile(manifest, []byte("kind: NetworkPolicy\n"), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	cf := changesFile{Files: []changeEntry{
		{Path: "tenant-a/policies/p.yaml", Kind: "modified", ContentFile: manifest},
		{Path: "tenant-a/apps/a.yaml", Kind: "deleted"},
	}}
	files, err := cf.changedFiles()
	if err != nil {
		t.Fatalf("changedFiles: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files, got %d", len(files))
	}
	if string(files[0].Content) != "kind: NetworkPolicy\n" {
		t.Fatalf("content file not inlined: %q", files[0].Content)
	}
	if files[1].Content != nil {
		t.Fatalf("expected no content for deleted file")
	}
	if files[0].Kind != decide.ChangeModified {
		t.Fatalf("unexpected kind %s", files[0].Kind)
	}
}

func TestClientSendsActorHeaders(t *testing.T) {
	var gotActor, gotRoles string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotActor = r.Header.Get("X-Actor-Id")
		gotRoles = r.Header.Get("X-Actor-Roles")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]decide.Approval{})
	}))
	defer srv.Close()

	c := newClient(srv.URL, "sec-1", "security")
	if _, err := c.ListApprovals(context.Background(), "cs-1"); err != nil {
		t.Fatalf("list approvals: %v", err)
	}
	if gotActor != "sec-1" || gotRoles != "security" {
		t.Fatalf("actor headers not sent: %q %q", gotActor, gotRoles)
	}
}

func TestClientSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "changeset not awaiting approval", http.StatusConflict)
	}))
	defer srv.Close()

	c := newClient(srv.URL, "sec-1", "security")
	_, err := c.RecordApproval(context.Background(), "cs-1", "security")
	if err == nil {
		t.Fatalf("expected error")
	}
	if got := err.Error(); !strings.Contains(got, "409") || !strings.Contains(got, "changeset not awaiting approval") {
		t.Fatalf("unexpected error: %s", got)
	}
}
