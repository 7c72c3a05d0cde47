package languages

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultCatalogOrder(t *testing.T) {
	all := Default().All()
	want := []Code{English, Hausa, Yoruba, Igbo, Pidgin}
	if len(all) != len(want) {
		t.Fatalf("len(All()) = %d, want %d", len(all), len(want))
	}
	for i, code := range want {
		if all[i].Code != code {
			t.Fatalf("All()[%d] = %q, want %q", i, all[i].Code, code)
		}
		if all[i].Greeting == "" {
			t.Fatalf("language %q has empty greeting", code)
		}
	}
}

func TestLookupFallsBackToEnglish(t *testing.T) {
	c := Default()
	if got := c.Lookup("xx"); got.Code != English {
		t.Fatalf("Lookup(xx) = %q, want en", got.Code)
	}
	if _, ok := c.Get("xx"); ok {
		t.Fatalf("Get(xx) should report unsupported")
	}
}

func TestVoiceOverrideFromEnv(t *testing.T) {
	t.Setenv("COPILOT_VOICE_HA", "voice-ha-custom")
	l, _ := Default().Get(Hausa)
	if l.VoiceID != "voice-ha-custom" {
		t.Fatalf("VoiceID = %q, want env override", l.VoiceID)
	}
}

func TestLoadMergesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	body := `languages:
  - code: HA
    voice_id: ha-ward-voice
  - code: ff
    name: Fulfulde
    greeting: "Jam waali!"
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	ha, _ := c.Get(Hausa)
	if ha.VoiceID != "ha-ward-voice" {
		t.Fatalf("ha VoiceID = %q, want override", ha.VoiceID)
	}
	if ha.Greeting == "" {
		t.Fatalf("ha greeting should be kept from default")
	}
	ff, ok := c.Get("ff")
	if !ok || ff.Greeting != "Jam waali!" {
		t.Fatalf("ff = %+v, ok=%v", ff, ok)
	}
	if got := c.All(); got[len(got)-1].Code != "ff" {
		t.Fatalf("new language should sort last, got %q", got[len(got)-1].Code)
	}
}

func TestLoadRejectsNewLanguageWithoutGreeting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "languages.yaml")
	if err := os.WriteFile(path, []byte("languages:\n  - code: ff\n"), 0o600); err != nil {
		t.Fatalf("write yaml: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("Load() expected error for missing greeting")
	}
}
