package main

import (
	"os"
	"path/filepath"
	"testing"
)

// TestParseInput covers inline JSON, file indirection, and bad input.
func TestParseInput(t *testing.T) {
	t.Run("inline", func(t *testing.T) {
		input, err := parseInput(`{"user_prompt": "hello"}`)
		if err != nil {
			t.Fatalf("parseInput: %v", err)
		}
		if input["user_prompt"] != "hello" {
			t.Errorf("input = %v", input)
		}
	})

	t.Run("empty object", func(t *testing.T) {
		input, err := parseInput("{}")
		if err != nil {
			t.Fatalf("parseInput: %v", err)
		}
		if len(input) != 0 {
			t.Errorf("input = %v, want empty", input)
		}
	})

	t.Run("from file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "input.json")
		if err := os.WriteFile(path, []byte(`{"n": 3}`), 0644); err != nil {
			t.Fatal(err)
		}
		input, err := parseInput("@" + path)
		if err != nil {
			t.Fatalf("parseInput: %v", err)
		}
		if input["n"] != float64(3) {
			t.Errorf("input = %v", input)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := parseInput("@does/not/exist.json"); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("invalid json", func(t *testing.T) {
		if _, err := parseInput("not json"); err == nil {
			t.Error("expected error")
		}
	})
}

// TestLoadWorkflow parses a definition file and rejects a missing one.
func TestLoadWorkflow(t *testing.T) {
	definition := `{
		"id": "wf-cli",
		"name": "cli test",
		"tasks": {
			"hello": {"kind": "tool", "tool_name": "echo",
				"input_data": {"message": "${user_prompt}"}}
		},
		"task_order": ["hello"]
	}`

	path := filepath.Join(t.TempDir(), "wf.json")
	if err := os.WriteFile(path, []byte(definition), 0644); err != nil {
		t.Fatal(err)
	}

	wf, err := loadWorkflow(path)
	if err != nil {
		t.Fatalf("loadWorkflow: %v", err)
	}
	if wf.ID != "wf-cli" || wf.Len() != 1 {
		t.Errorf("workflow = %s with %d tasks", wf.ID, wf.Len())
	}

	if _, err := loadWorkflow(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
