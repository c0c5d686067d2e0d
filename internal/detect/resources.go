package detect

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// ResourceSampler reports system memory and CPU usage. The CPU reading is
// a delta since the previous sample; ok is false until the delta is
// primed by a first call.
type ResourceSampler interface {
	MemoryPercent() (float64, error)
	CPUPercent() (percent float64, ok bool, err error)
}

// procSampler reads /proc. It never blocks: CPU usage is derived from the
// counter delta between consecutive samples.
type procSampler struct {
	meminfoPath string
	statPath    string

	mu        sync.Mutex
	prevIdle  uint64
	prevTotal uint64
	primed    bool
}

// NewProcSampler creates a sampler over the standard /proc files.
func NewProcSampler() ResourceSampler {
	return &procSampler{
		meminfoPath: "/proc/meminfo",
		statPath:    "/proc/stat",
	}
}

// MemoryPercent reports used memory as a percentage of total, computed
// from MemTotal and MemAvailable.
func (s *procSampler) MemoryPercent() (float64, error) {
	f, err := os.Open(s.meminfoPath)
	if err != nil {
		return 0, fmt.Errorf("open meminfo: %w", err)
	}
	defer f.Close()

	var total, available uint64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 2 {
			continue
		}
		switch fields[0] {
		case "MemTotal:":
			total, _ = strconv.ParseUint(fields[1], 10, 64)
		case "MemAvailable:":
			available, _ = strconv.ParseUint(fields[1], 10, 64)
		}
		if total > 0 && available > 0 {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("read meminfo: %w", err)
	}
	if total == 0 {
		return 0, fmt.Errorf("meminfo: MemTotal not found")
	}
	return 100 * float64(total-available) / float64(total), nil
}

// CPUPercent reports aggregate CPU usage since the previous call. The
// first call primes the counters and reports ok=false.
func (s *procSampler) CPUPercent() (float64, bool, error) {
	idle, total, err := s.readStat()
	if err != nil {
		return 0, false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.primed {
		s.prevIdle, s.prevTotal, s.primed = idle, total, true
		return 0, false, nil
	}

	idleDelta := float64(idle - s.prevIdle)
	totalDelta := float64(total - s.prevTotal)
	s.prevIdle, s.prevTotal = idle, total

	if totalDelta <= 0 {
		return 0, false, nil
	}
	return 100 * (1 - idleDelta/totalDelta), true, nil
}

// readStat parses the aggregate "cpu" line of /proc/stat.
func (s *procSampler) readStat() (idle, total uint64, err error) {
	f, err := os.Open(s.statPath)
	if err != nil {
		return 0, 0, fmt.Errorf("open stat: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		for i, field := range fields[1:] {
			v, parseErr := strconv.ParseUint(field, 10, 64)
			if parseErr != nil {
				continue
			}
			total += v
			// Fields 4 and 5 are idle and iowait.
			if i == 3 || i == 4 {
				idle += v
			}
		}
		return idle, total, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("read stat: %w", err)
	}
	return 0, 0, fmt.Errorf("stat: cpu line not found")
}
