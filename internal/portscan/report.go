package portscan

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ScanReport 收集一次扫描的开放端口.
// 由多个探测任务并发写入, 扫描结束后读取.
type ScanReport struct {
	ID        string
	Target    netip.Addr
	Mode      ScanMode
	StartedAt time.Time
	Duration  time.Duration

	mu        sync.RWMutex
	open      map[uint16]ProbeResult
	attempted int
}

// NewScanReport 创建空报告
func NewScanReport(target ScanTarget) *ScanReport {
	return &ScanReport{
		ID:     uuid.NewString(),
		Target: target.Address,
		Mode:   target.Mode,
		open:   make(map[uint16]ProbeResult),
	}
}

// Record 计入一次探测, 端口开放时保存结果.
// 同一端口重复记录时覆盖旧结果.
func (r *ScanReport) Record(res ProbeResult) (found bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempted++
	if !res.Open() {
		return false
	}
	r.open[res.Port] = res
	return true
}

// Len 返回开放端口数量
func (r *ScanReport) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.open)
}

// Attempted 返回已记录的探测次数 (无论是否开放)
func (r *ScanReport) Attempted() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.attempted
}

// Get 查询某个开放端口的结果
func (r *ScanReport) Get(port uint16) (ProbeResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.open[port]
	return res, ok
}

// OpenPorts 按升序返回开放端口
func (r *ScanReport) OpenPorts() []uint16 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.open))
}

// Results 返回按端口排序的开放端口结果
func (r *ScanReport) Results() []ProbeResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ProbeResult, 0, len(r.open))
	for _, p := range slices.Sorted(maps.Keys(r.open)) {
		out = append(out, r.open[p])
	}
	return out
}

// Progress 每次探测后发布的进度快照, 仅供参考
type Progress struct {
	Attempted int
	Total     int
	Found     int
	Status    string
}

type progressTracker struct {
	mu        sync.Mutex
	attempted int
	found     int
	total     int
	onUpdate  func(Progress)
}

func (t *progressTracker) update(found bool) {
	t.mu.Lock()
	t.attempted++
	if found {
		t.found++
	}
	p := Progress{
		Attempted: t.attempted,
		Total:     t.total,
		Found:     t.found,
		Status:    statusText(t.found),
	}
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(p)
	}
}

func statusText(found int) string {
	if found == 1 {
		return "found 1 open port"
	}
	return fmt.Sprintf("found %d open ports", found)
}
