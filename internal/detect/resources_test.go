package detect

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFixture(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestProcSampler_MemoryPercent(t *testing.T) {
	dir := t.TempDir()
	meminfo := writeFixture(t, dir, "meminfo",
		"MemTotal:       1000 kB\nMemFree:         100 kB\nMemAvailable:    250 kB\n")

	s := &procSampler{meminfoPath: meminfo}
	got, err := s.MemoryPercent()
	if err != nil {
		t.Fatalf("MemoryPercent failed: %v", err)
	}
	if got != 75.0 {
		t.Errorf("MemoryPercent = %g, want 75", got)
	}
}

func TestProcSampler_MemoryPercent_MissingTotal(t *testing.T) {
	dir := t.TempDir()
	meminfo := writeFixture(t, dir, "meminfo", "MemFree: 100 kB\n")

	s := &procSampler{meminfoPath: meminfo}
	if _, err := s.MemoryPercent(); err == nil {
		t.Error("Expected error when MemTotal is missing")
	}
}

func TestProcSampler_CPUPercent_PrimesThenReports(t *testing.T) {
	dir := t.TempDir()
	// user nice system idle iowait
	stat := writeFixture(t, dir, "stat", "cpu  100 0 100 800 0 0 0 0 0 0\n")

	s := &procSampler{statPath: stat}

	_, ok, err := s.CPUPercent()
	if err != nil {
		t.Fatalf("CPUPercent failed: %v", err)
	}
	if ok {
		t.Fatal("First sample should not be primed")
	}

	// 200 busy ticks and 200 idle ticks elapsed: 50% usage.
	writeFixture(t, dir, "stat", "cpu  250 0 150 1000 0 0 0 0 0 0\n")
	got, ok, err := s.CPUPercent()
	if err != nil {
		t.Fatalf("CPUPercent failed: %v", err)
	}
	if !ok {
		t.Fatal("Second sample should be primed")
	}
	if got != 50.0 {
		t.Errorf("CPUPercent = %g, want 50", got)
	}
}

func TestProcSampler_CPUPercent_NoCPULine(t *testing.T) {
	dir := t.TempDir()
	stat := writeFixture(t, dir, "stat", "intr 12345\n")

	s := &procSampler{statPath: stat}
	if _, _, err := s.CPUPercent(); err == nil {
		t.Error("Expected error when the cpu line is missing")
	}
}
