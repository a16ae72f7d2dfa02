package stats

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/royalcat/autobuild/placement"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/process"
)

// RuntimeStats holds everything collected during one placement run.
type RuntimeStats struct {
	StartTime    time.Time
	EndTime      time.Time
	TotalElapsed time.Duration
	Samples      []Sample
	Summary      Summary
}

// Sample is one tick of process and placement progress.
type Sample struct {
	Elapsed time.Duration

	HeapAlloc  uint64
	Sys        uint64
	ProcessRSS uint64
	NumGC      uint32

	CPUPercent   float64
	SystemCPU    []float64
	NumGoroutine int

	Buildings int
	Attempts  int
}

type Summary struct {
	PeakHeapAlloc  uint64
	PeakSys        uint64
	PeakProcessRSS uint64
	PeakCPUPercent float64
	AvgCPUPercent  float64
	PeakGoroutines int
	TotalGCCycles  uint32
	Buildings      int
	Attempts       int
	AttemptsPerSec float64
	SampleCount    int
	SampleInterval time.Duration
}

// Collector samples runtime statistics in the background. Feed placement
// progress into it with Observe.
type Collector struct {
	mu       sync.Mutex
	stats    RuntimeStats
	stopChan chan struct{}
	doneChan chan struct{}
	interval time.Duration
	proc     *process.Process

	buildings atomic.Int64
	attempts  atomic.Int64

	stopOnce sync.Once
}

func NewCollector(interval time.Duration) (*Collector, error) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("failed to get process info: %w", err)
	}

	return &Collector{
		stats: RuntimeStats{
			Samples: make([]Sample, 0, 256),
		},
		interval: interval,
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
		proc:     proc,
	}, nil
}

// Observe matches placement.Observer.
func (c *Collector) Observe(p placement.Progress) {
	c.buildings.Store(int64(p.Buildings))
	c.attempts.Store(int64(p.Attempts))
}

func (c *Collector) Start() {
	c.stats.StartTime = time.Now()
	go c.collect()
}

func (c *Collector) collect() {
	defer close(c.doneChan)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.sample()
	for {
		select {
		case <-c.stopChan:
			c.sample()
			return
		case <-ticker.C:
			c.sample()
		}
	}
}

func (c *Collector) sample() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	s := Sample{
		Elapsed:      time.Since(c.stats.StartTime),
		HeapAlloc:    memStats.HeapAlloc,
		Sys:          memStats.Sys,
		NumGC:        memStats.NumGC,
		NumGoroutine: runtime.NumGoroutine(),
		Buildings:    int(c.buildings.Load()),
		Attempts:     int(c.attempts.Load()),
	}

	if memInfo, err := c.proc.MemoryInfo(); err == nil && memInfo != nil {
		s.ProcessRSS = memInfo.RSS
	}
	if cpuPercent, err := c.proc.CPUPercent(); err == nil {
		s.CPUPercent = cpuPercent
	}
	if systemCPU, err := cpu.Percent(0, false); err == nil {
		s.SystemCPU = systemCPU
	}

	c.mu.Lock()
	c.stats.Samples = append(c.stats.Samples, s)
	c.mu.Unlock()
}

// Stop ends collection and returns the final stats. Later calls return the
// same stats.
func (c *Collector) Stop() RuntimeStats {
	c.stopOnce.Do(func() {
		close(c.stopChan)
		<-c.doneChan

		c.mu.Lock()
		defer c.mu.Unlock()

		c.stats.EndTime = time.Now()
		c.stats.TotalElapsed = c.stats.EndTime.Sub(c.stats.StartTime)
		c.stats.Summary = summarize(c.stats.Samples, c.stats.TotalElapsed, c.interval)
	})

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

func summarize(samples []Sample, elapsed, interval time.Duration) Summary {
	sum := Summary{SampleCount: len(samples), SampleInterval: interval}
	if len(samples) == 0 {
		return sum
	}

	var totalCPU float64
	for _, s := range samples {
		sum.PeakHeapAlloc = max(sum.PeakHeapAlloc, s.HeapAlloc)
		sum.PeakSys = max(sum.PeakSys, s.Sys)
		sum.PeakProcessRSS = max(sum.PeakProcessRSS, s.ProcessRSS)
		sum.PeakCPUPercent = max(sum.PeakCPUPercent, s.CPUPercent)
		sum.PeakGoroutines = max(sum.PeakGoroutines, s.NumGoroutine)
		sum.TotalGCCycles = max(sum.TotalGCCycles, s.NumGC)
		totalCPU += s.CPUPercent
	}
	sum.AvgCPUPercent = totalCPU / float64(len(samples))

	last := samples[len(samples)-1]
	sum.Buildings = last.Buildings
	sum.Attempts = last.Attempts
	if elapsed > 0 {
		sum.AttemptsPerSec = float64(last.Attempts) / elapsed.Seconds()
	}
	return sum
}

const rule = "--------------------------------------------------------------------------------\n"

// maxReportSamples limits the sample table, samples are picked evenly.
const maxReportSamples = 100

func (stats *RuntimeStats) WriteReport(w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("RUNTIME STATISTICS\n%s", rule)
	ew.printf("  Start:           %s\n", stats.StartTime.Format(time.RFC3339))
	ew.printf("  End:             %s\n", stats.EndTime.Format(time.RFC3339))
	ew.printf("  Duration:        %s\n\n", stats.TotalElapsed)

	s := stats.Summary
	ew.printf("PLACEMENT\n%s", rule)
	ew.printf("  Buildings:       %s\n", humanize.Comma(int64(s.Buildings)))
	ew.printf("  Attempts:        %s (%s/s)\n\n", humanize.Comma(int64(s.Attempts)), humanize.CommafWithDigits(s.AttemptsPerSec, 1))

	ew.printf("PEAKS\n%s", rule)
	ew.printf("  Heap allocated:  %s\n", humanize.IBytes(s.PeakHeapAlloc))
	ew.printf("  Total system:    %s\n", humanize.IBytes(s.PeakSys))
	ew.printf("  Process RSS:     %s\n", humanize.IBytes(s.PeakProcessRSS))
	ew.printf("  CPU:             %.2f%% (avg %.2f%%)\n", s.PeakCPUPercent, s.AvgCPUPercent)
	ew.printf("  Goroutines:      %d\n", s.PeakGoroutines)
	ew.printf("  GC cycles:       %d\n\n", s.TotalGCCycles)

	ew.printf("SAMPLES (%d every %s)\n%s", s.SampleCount, s.SampleInterval, rule)
	ew.printf("%-12s %-12s %-12s %-8s %-12s %-12s\n", "Elapsed", "Heap", "RSS", "CPU %", "Buildings", "Attempts")
	for _, sample := range evenly(stats.Samples, maxReportSamples) {
		ew.printf("%-12s %-12s %-12s %-8.1f %-12d %-12d\n",
			sample.Elapsed.Truncate(time.Millisecond),
			humanize.IBytes(sample.HeapAlloc),
			humanize.IBytes(sample.ProcessRSS),
			sample.CPUPercent,
			sample.Buildings,
			sample.Attempts)
	}

	return ew.err
}

func (stats *RuntimeStats) SaveToFile(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create stats file: %w", err)
	}
	defer file.Close()

	if err := stats.WriteReport(file); err != nil {
		return fmt.Errorf("failed to write stats file: %w", err)
	}
	return file.Close()
}

func evenly(samples []Sample, n int) []Sample {
	if len(samples) <= n {
		return samples
	}
	out := make([]Sample, 0, n)
	step := float64(len(samples)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, samples[int(float64(i)*step)])
	}
	return out
}

type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}
	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
