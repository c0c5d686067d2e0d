package main

import (
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfigYAML_EverythingCommented(t *testing.T) {
	data, err := defaultConfigYAML()
	if err != nil {
		t.Fatalf("defaultConfigYAML failed: %v", err)
	}

	for i, line := range strings.Split(strings.TrimRight(string(data), "\n"), "\n") {
		if !strings.HasPrefix(line, "#") {
			t.Errorf("Line %d is not commented out: %q", i+1, line)
		}
	}

	// The file as written must override nothing.
	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("Template is not valid YAML: %v", err)
	}
	if len(parsed) != 0 {
		t.Errorf("Template sets %d keys, want none until edited", len(parsed))
	}
}

func TestDefaultConfigYAML_UncommentsToValidConfig(t *testing.T) {
	data, err := defaultConfigYAML()
	if err != nil {
		t.Fatalf("defaultConfigYAML failed: %v", err)
	}

	// Skip the three-line prose header, uncomment the rest.
	var uncommented []string
	for i, line := range strings.Split(string(data), "\n") {
		if i < 3 || !strings.HasPrefix(line, "# ") {
			continue
		}
		uncommented = append(uncommented, strings.TrimPrefix(line, "# "))
	}

	var parsed map[string]any
	if err := yaml.Unmarshal([]byte(strings.Join(uncommented, "\n")), &parsed); err != nil {
		t.Fatalf("Uncommented template is not valid YAML: %v", err)
	}
	if _, ok := parsed["pool"]; !ok {
		t.Error("Uncommented template missing pool section")
	}
	if _, ok := parsed["detector"]; !ok {
		t.Error("Uncommented template missing detector section")
	}
}
