package policy

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const validPolicy = `
permissions:
  browsing:
    enabled: true
    blocked_domains: ["badsite.example"]
  search:
    enabled: true
    engine: duckduckgo
  file_system:
    enabled: true
    read: true
    write: true
    delete: false
    blocked_paths: ["/etc", "~/secrets"]
  terminal:
    enabled: true
    require_confirm: true
    blocked_commands: ["rm -rf", "mkfs"]
  app_control:
    enabled: false
  input_control:
    enabled: false
  calendar:
    enabled: true
    read: true
    write: false
  system_info:
    enabled: true
  camera:
    enabled: false
    mode: photo
  voice:
    enabled: false
    tts_engine: system
    stt_engine: whisper
  proactive:
    enabled: true
    max_messages_per_hour: 3
    quiet_hours:
      start: "22:00"
      end: "08:00"
`

func writePolicy(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValid(t *testing.T) {
	p, err := Load(writePolicy(t, validPolicy))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	fs := p.Get("file_system")
	if !fs.IsEnabled() {
		t.Error("file_system should be enabled")
	}
	if fs.Write == nil || !*fs.Write {
		t.Error("file_system.write should be true")
	}
	if fs.Delete == nil || *fs.Delete {
		t.Error("file_system.delete should be false")
	}

	pro := p.Get("proactive")
	if pro.MaxMessagesPerHour == nil || *pro.MaxMessagesPerHour != 3 {
		t.Error("proactive.max_messages_per_hour should be 3")
	}
	if pro.QuietHours == nil || pro.QuietHours.Start != "22:00" {
		t.Errorf("quiet_hours = %+v", pro.QuietHours)
	}
}

func TestLoadTildeExpansion(t *testing.T) {
	p, err := Load(writePolicy(t, validPolicy))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	home, _ := os.UserHomeDir()
	fs := p.Get("file_system")
	found := false
	for _, bp := range fs.BlockedPaths {
		if bp == home+"/secrets" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected ~ expansion in blocked_paths, got %v", fs.BlockedPaths)
	}
}

func TestLoadMissingSectionNamed(t *testing.T) {
	body := strings.Replace(validPolicy, "  camera:\n    enabled: false\n    mode: photo\n", "", 1)
	_, err := Load(writePolicy(t, body))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), `missing section "camera"`) {
		t.Errorf("error should name the missing section: %v", err)
	}
}

func TestLoadMissingFieldNamed(t *testing.T) {
	body := strings.Replace(validPolicy, "    engine: duckduckgo\n", "", 1)
	_, err := Load(writePolicy(t, body))
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(err.Error(), `section "search"`) || !strings.Contains(err.Error(), `"engine"`) {
		t.Errorf("error should name section and field: %v", err)
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	body := `
permissions:
  browsing:
    enabled: true
`
	_, err := Load(writePolicy(t, body))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"search", "file_system", "proactive"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %q: %v", want, err)
		}
	}
}

func TestReloadKeepsSnapshotOnFailure(t *testing.T) {
	path := writePolicy(t, validPolicy)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if err := os.WriteFile(path, []byte("permissions: {}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(); err == nil {
		t.Fatal("expected reload failure")
	}

	// Old snapshot still served.
	if !p.Get("terminal").IsEnabled() {
		t.Error("previous snapshot should survive a failed reload")
	}
}

func TestReloadSwapsSnapshot(t *testing.T) {
	path := writePolicy(t, validPolicy)
	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	updated := strings.Replace(validPolicy, "  terminal:\n    enabled: true", "  terminal:\n    enabled: false", 1)
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := p.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if p.Get("terminal").IsEnabled() {
		t.Error("terminal should be disabled after reload")
	}
}

func TestGetReturnsDefensiveCopy(t *testing.T) {
	p, err := Load(writePolicy(t, validPolicy))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	sec := p.Get("terminal")
	sec.BlockedCommands[0] = "mutated"
	*sec.Enabled = false

	again := p.Get("terminal")
	if again.BlockedCommands[0] != "rm -rf" {
		t.Error("mutation leaked through Get")
	}
	if !again.IsEnabled() {
		t.Error("enabled flag mutation leaked through Get")
	}
}

func TestGetUnknownSection(t *testing.T) {
	p, err := Load(writePolicy(t, validPolicy))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if sec := p.Get("nope"); sec != nil {
		t.Errorf("unknown section should be nil, got %+v", sec)
	}
	if sec := p.Get("nope"); sec.IsEnabled() {
		t.Error("nil section must report disabled")
	}
}
