package gpucmd

import (
	"fmt"
	"sync"
)

// MemoryStats reports the bytes held by live physical allocations of
// buffers, textures and transfer buffers. Retired allocations count until
// the GPU releases them.
type MemoryStats struct {
	// BudgetBytes is the configured budget; zero means unlimited.
	BudgetBytes uint64

	// UsedBytes is the currently allocated memory in bytes.
	UsedBytes uint64

	// PeakBytes is the highest UsedBytes seen.
	PeakBytes uint64

	// Allocations is the number of live physical allocations.
	Allocations int

	// Rejected counts allocations refused for exceeding the budget.
	Rejected uint64
}

// Utilization returns UsedBytes as a fraction of the budget, or 0 without
// a budget.
func (s MemoryStats) Utilization() float64 {
	if s.BudgetBytes == 0 {
		return 0
	}
	return float64(s.UsedBytes) / float64(s.BudgetBytes)
}

// String returns a human-readable summary.
func (s MemoryStats) String() string {
	return fmt.Sprintf("Memory[%.1f%% used, %d/%d MB, peak %d MB, %d allocations, %d rejected]",
		s.Utilization()*100,
		s.UsedBytes/(1024*1024),
		s.BudgetBytes/(1024*1024),
		s.PeakBytes/(1024*1024),
		s.Allocations,
		s.Rejected)
}

// memoryBudget tracks allocation sizes against a byte budget.
//
// memoryBudget is safe for concurrent use.
type memoryBudget struct {
	mu       sync.Mutex
	budget   uint64
	used     uint64
	peak     uint64
	count    int
	rejected uint64
}

func newMemoryBudget(budget uint64) *memoryBudget {
	return &memoryBudget{budget: budget}
}

// reserve accounts for size bytes, failing with ErrOutOfMemory when the
// budget would be exceeded.
func (m *memoryBudget) reserve(size uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.budget > 0 && m.used+size > m.budget {
		m.rejected++
		return fmt.Errorf("%w: %d bytes requested, %d of %d in use",
			ErrOutOfMemory, size, m.used, m.budget)
	}
	m.used += size
	m.count++
	m.peak = max(m.peak, m.used)
	return nil
}

// release returns size bytes to the budget.
func (m *memoryBudget) release(size uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.used -= min(size, m.used)
	if m.count > 0 {
		m.count--
	}
}

func (m *memoryBudget) stats() MemoryStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	return MemoryStats{
		BudgetBytes: m.budget,
		UsedBytes:   m.used,
		PeakBytes:   m.peak,
		Allocations: m.count,
		Rejected:    m.rejected,
	}
}
