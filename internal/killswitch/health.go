package killswitch

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Check is the outcome of one health dimension.
type Check struct {
	Name   string
	OK     bool
	Detail string
}

// Probe evaluates a single health dimension. A nil error means healthy.
type Probe interface {
	Name() string
	Probe(ctx context.Context) error
}

// Checker runs a fixed set of probes and reports each dimension separately so
// a blocked recovery always names what is failing.
type Checker struct {
	probes []Probe
}

// NewChecker creates a Checker over the given probes.
func NewChecker(probes ...Probe) *Checker {
	return &Checker{probes: probes}
}

// Check runs every probe and returns one Check per dimension.
func (c *Checker) Check(ctx context.Context) []Check {
	out := make([]Check, 0, len(c.probes))
	for _, p := range c.probes {
		chk := Check{Name: p.Name(), OK: true}
		if err := p.Probe(ctx); err != nil {
			chk.OK = false
			chk.Detail = err.Error()
		}
		out = append(out, chk)
	}
	return out
}

// ---------------------------------------------------------------------------
// Concrete probes
// ---------------------------------------------------------------------------

// MemoryProbe fails when system available memory drops below a configured
// minimum. It reads MemAvailable from /proc/meminfo.
type MemoryProbe struct {
	MinAvailableBytes uint64
}

func (p MemoryProbe) Name() string { return "memory" }

func (p MemoryProbe) Probe(ctx context.Context) error {
	avail, err := memAvailable()
	if err != nil {
		return fmt.Errorf("read meminfo: %w", err)
	}
	if avail < p.MinAvailableBytes {
		return fmt.Errorf("available %d bytes below minimum %d", avail, p.MinAvailableBytes)
	}
	return nil
}

func memAvailable() (uint64, error) {
	fh, err := os.Open("/proc/meminfo")
	if err != nil {
		return 0, err
	}
	defer fh.Close()

	sc := bufio.NewScanner(fh)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, fmt.Errorf("MemAvailable not found")
}

// CPUProbe fails when overall CPU utilisation exceeds a configured maximum.
// Utilisation is measured as the busy fraction between consecutive samples of
// /proc/stat; the first probe after startup always passes.
type CPUProbe struct {
	MaxPercent float64

	mu        sync.Mutex
	prevBusy  uint64
	prevTotal uint64
}

func (p *CPUProbe) Name() string { return "cpu" }

func (p *CPUProbe) Probe(ctx context.Context) error {
	busy, total, err := cpuTimes()
	if err != nil {
		return fmt.Errorf("read cpu stat: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	prevBusy, prevTotal := p.prevBusy, p.prevTotal
	p.prevBusy, p.prevTotal = busy, total

	if prevTotal == 0 || total <= prevTotal {
		return nil
	}
	pct := 100 * float64(busy-prevBusy) / float64(total-prevTotal)
	if pct > p.MaxPercent {
		return fmt.Errorf("utilisation %.1f%% above maximum %.1f%%", pct, p.MaxPercent)
	}
	return nil
}

func cpuTimes() (busy, total uint64, err error) {
	data, err := os.ReadFile("/proc/stat")
	if err != nil {
		return 0, 0, err
	}
	sc := bufio.NewScanner(strings.NewReader(string(data)))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 5 || fields[0] != "cpu" {
			continue
		}
		var vals []uint64
		for _, f := range fields[1:] {
			v, perr := strconv.ParseUint(f, 10, 64)
			if perr != nil {
				return 0, 0, perr
			}
			vals = append(vals, v)
		}
		for _, v := range vals {
			total += v
		}
		// idle + iowait are the 4th and 5th columns.
		idle := vals[3]
		if len(vals) > 4 {
			idle += vals[4]
		}
		return total - idle, total, nil
	}
	return 0, 0, fmt.Errorf("cpu line not found")
}

// FeedStatus is the view of the market-data feed the probes need.
type FeedStatus interface {
	Connected() bool
	LastTickAge() time.Duration
}

// ConnectivityProbe fails when the exchange feed is not connected.
type ConnectivityProbe struct {
	Feed FeedStatus
}

func (p ConnectivityProbe) Name() string { return "exchange_connectivity" }

func (p ConnectivityProbe) Probe(ctx context.Context) error {
	if !p.Feed.Connected() {
		return fmt.Errorf("feed disconnected")
	}
	return nil
}

// StalenessProbe fails when the price feed has not ticked within the allowed
// threshold.
type StalenessProbe struct {
	Feed         FeedStatus
	MaxStaleness time.Duration
}

func (p StalenessProbe) Name() string { return "price_feed_staleness" }

func (p StalenessProbe) Probe(ctx context.Context) error {
	if age := p.Feed.LastTickAge(); age > p.MaxStaleness {
		return fmt.Errorf("last tick %s ago exceeds threshold %s", age.Round(time.Millisecond), p.MaxStaleness)
	}
	return nil
}
