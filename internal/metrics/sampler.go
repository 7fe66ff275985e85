package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shirou/gopsutil/v4/process"
)

// ResourceSample holds one CPU/memory observation of the running instance.
type ResourceSample struct {
	PID        int32     `json:"pid"`
	CPUPercent float64   `json:"cpu_percent"`
	MemoryMB   float64   `json:"memory_mb"`
	MemoryRSS  uint64    `json:"memory_rss"`
	NumThreads int32     `json:"num_threads"`
	NumFDs     int32     `json:"num_fds,omitempty"` // Unix only
	Timestamp  time.Time `json:"timestamp"`
}

// SamplerConfig holds configuration for resource sampling.
type SamplerConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Interval   time.Duration `mapstructure:"interval"`
	MaxHistory int           `mapstructure:"max_history"`
}

// Sampler periodically samples the instance's own resource usage and
// exposes it as Prometheus gauges plus an in-memory ring of recent samples.
type Sampler struct {
	enabled    bool
	interval   time.Duration
	maxHistory int

	mu       sync.RWMutex
	ring     []ResourceSample
	startIdx int
	count    int

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	cpuPercent prometheus.Gauge
	memoryMB   prometheus.Gauge
	numThreads prometheus.Gauge
	numFDs     prometheus.Gauge
}

// NewSampler creates a resource sampler. Defaults: 5s interval, 100 samples.
func NewSampler(cfg SamplerConfig) *Sampler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = 100
	}
	gauge := func(name, help string) prometheus.Gauge {
		return prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "potter",
			Subsystem: "agent",
			Name:      name,
			Help:      help,
		})
	}
	return &Sampler{
		enabled:    cfg.Enabled,
		interval:   interval,
		maxHistory: maxHistory,
		ring:       make([]ResourceSample, maxHistory),
		stopCh:     make(chan struct{}),
		cpuPercent: gauge("cpu_percent", "CPU usage percentage of the running instance."),
		memoryMB:   gauge("memory_mb", "Resident memory in MB of the running instance."),
		numThreads: gauge("num_threads", "Thread count of the running instance."),
		numFDs:     gauge("num_fds", "Open file descriptors of the running instance (Unix only)."),
	}
}

// RegisterMetrics registers the sampler gauges with the provided registerer.
func (s *Sampler) RegisterMetrics(r prometheus.Registerer) error {
	if !s.enabled {
		return nil
	}
	cs := []prometheus.Collector{s.cpuPercent, s.memoryMB, s.numThreads}
	if runtime.GOOS != "windows" {
		cs = append(cs, s.numFDs)
	}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	return nil
}

// Start begins periodic sampling of the given pid until ctx is done or Stop
// is called. No-op when disabled.
func (s *Sampler) Start(ctx context.Context, pid int) {
	if !s.enabled {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if sample, err := collectSample(int32(pid)); err == nil {
					s.record(sample)
				} else {
					slog.Debug("resource sample failed", "pid", pid, "error", err)
				}
			}
		}
	}()
}

// Stop halts sampling and waits for the collection goroutine to exit.
func (s *Sampler) Stop() {
	if !s.enabled {
		return
	}
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// IsEnabled reports whether sampling is active.
func (s *Sampler) IsEnabled() bool { return s.enabled }

// Latest returns the most recent sample, if any.
func (s *Sampler) Latest() (ResourceSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.count == 0 {
		return ResourceSample{}, false
	}
	return s.ring[s.latestIdxLocked()], true
}

// History returns the recorded samples in chronological order.
func (s *Sampler) History() []ResourceSample {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ResourceSample, s.count)
	if s.count < s.maxHistory {
		copy(out, s.ring[:s.count])
		return out
	}
	n := copy(out, s.ring[s.startIdx:])
	copy(out[n:], s.ring[:s.startIdx])
	return out
}

// record appends a sample to the circular buffer and updates gauges.
func (s *Sampler) record(sample ResourceSample) {
	s.mu.Lock()
	if s.count < s.maxHistory {
		s.ring[s.count] = sample
		s.count++
	} else {
		s.ring[s.startIdx] = sample
		s.startIdx = (s.startIdx + 1) % s.maxHistory
	}
	s.mu.Unlock()

	s.cpuPercent.Set(sample.CPUPercent)
	s.memoryMB.Set(sample.MemoryMB)
	s.numThreads.Set(float64(sample.NumThreads))
	if runtime.GOOS != "windows" && sample.NumFDs > 0 {
		s.numFDs.Set(float64(sample.NumFDs))
	}
}

func (s *Sampler) latestIdxLocked() int {
	if s.count < s.maxHistory {
		return s.count - 1
	}
	return (s.startIdx - 1 + s.maxHistory) % s.maxHistory
}

func collectSample(pid int32) (ResourceSample, error) {
	proc, err := process.NewProcess(pid)
	if err != nil {
		return ResourceSample{}, fmt.Errorf("process handle: %w", err)
	}
	sample := ResourceSample{PID: pid, Timestamp: time.Now().UTC()}
	if cpu, err := proc.CPUPercent(); err == nil {
		sample.CPUPercent = cpu
	}
	memInfo, err := proc.MemoryInfo()
	if err != nil {
		return ResourceSample{}, fmt.Errorf("memory info: %w", err)
	}
	sample.MemoryRSS = memInfo.RSS
	sample.MemoryMB = float64(memInfo.RSS) / 1024 / 1024
	if n, err := proc.NumThreads(); err == nil {
		sample.NumThreads = n
	}
	if runtime.GOOS != "windows" {
		if n, err := proc.NumFDs(); err == nil {
			sample.NumFDs = n
		}
	}
	return sample, nil
}
