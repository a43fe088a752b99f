package automation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileStore_LoadMissing(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "none.json"))

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("Load() = %v, want empty non-nil slice", got)
	}
}

func TestFileStore_LoadMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"truncated", `{"automations": [`},
		{"wrong shape", `{"automations": {"id": "x"}}`},
		{"unknown trigger", `{"automations": [{"id":"x","triggers":[{"type":"sunrise"}]}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "automations.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := NewFileStore(path).Load(context.Background())
			if !errors.Is(err, ErrPersistence) {
				t.Errorf("Load() error = %v, want ErrPersistence", err)
			}
		})
	}
}

func TestFileStore_SaveFormat(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "automations.json")
	s := NewFileStore(path)

	err := s.Save(context.Background(), []Automation{validAutomation()})
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	body := string(data)
	if !strings.HasPrefix(body, "{\n  \"automations\": [\n    {\n      \"id\": \"a1\",") {
		t.Errorf("file is not two-space indented:\n%s", body)
	}
	if !strings.HasSuffix(body, "}\n") || strings.HasSuffix(body, "\n\n") {
		t.Errorf("file must end with exactly one newline: %q", body[len(body)-5:])
	}
	if !strings.Contains(body, `"conditions": []`) {
		t.Error("nil conditions should be written as an empty list")
	}

	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Errorf("directory holds %d entries, want only the rule file (no temp files)", len(entries))
	}
}

func TestFileStore_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automations.json")
	s := NewFileStore(path)

	in := validAutomation()
	in.Enabled = false
	in.Actions = append(in.Actions, Action{
		Type:      ActionConditional,
		Condition: &Condition{Type: ConditionDeviceState, Device: "d", Property: "contact", Equals: false},
		Then:      []Action{{Type: ActionDeviceSet, Device: "lamp", Payload: map[string]any{"state": "ON"}}},
	})

	if err := s.Save(context.Background(), []Automation{in}); err != nil {
		t.Fatal(err)
	}
	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 {
		t.Fatalf("Load() returned %d automations", len(out))
	}
	got := out[0]
	if got.Enabled {
		t.Error("Enabled=false did not survive a round trip")
	}
	cond := got.Actions[1]
	if cond.Condition == nil || cond.Condition.Equals != false || cond.Then[0].Device != "lamp" {
		t.Errorf("conditional = %+v", cond)
	}
}

func TestFileStore_SaveReplacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "automations.json")
	s := NewFileStore(path)

	first := validAutomation()
	second := validAutomation()
	second.ID = "a2"
	if err := s.Save(context.Background(), []Automation{first, second}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save(context.Background(), []Automation{second}); err != nil {
		t.Fatal(err)
	}

	out, err := s.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 1 || out[0].ID != "a2" {
		t.Errorf("Load() = %+v", out)
	}
}
