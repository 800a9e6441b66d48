package main

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// dotsTotal fits an 80 column terminal with the summary suffix
const dotsTotal = 40

// SimpleProgressMonitor prints a row of dots as rounds complete
type SimpleProgressMonitor struct {
	mu          sync.Mutex
	w           io.Writer
	total       int
	done        int
	dotsPrinted int
	startTime   time.Time
	finished    bool
}

// NewSimpleProgressMonitor creates a simple progress monitor
func NewSimpleProgressMonitor(w io.Writer, total int) *SimpleProgressMonitor {
	if total <= 0 {
		total = 1
	}
	fmt.Fprint(w, "Simulating: ")
	return &SimpleProgressMonitor{w: w, total: total, startTime: time.Now()}
}

// OnRoundComplete is called by the simulator with the running total
func (m *SimpleProgressMonitor) OnRoundComplete(done int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if done > m.done {
		m.done = done
	}
	target := min(m.done*dotsTotal/m.total, dotsTotal)
	for ; m.dotsPrinted < target; m.dotsPrinted++ {
		fmt.Fprint(m.w, ".")
	}
}

// Finish prints the completion line once
func (m *SimpleProgressMonitor) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.finished {
		return
	}
	m.finished = true

	elapsed := time.Since(m.startTime)
	rate := float64(m.done) / max(elapsed.Seconds(), 1e-9)
	fmt.Fprintf(m.w, " %d rounds in %s (%.0f rounds/sec)\n", m.done, elapsed.Round(time.Millisecond), rate)
}
