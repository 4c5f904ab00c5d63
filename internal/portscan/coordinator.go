package portscan

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// 并发数默认值与上限
const (
	DefaultConcurrency = 100
	MaxConcurrency     = 5000
)

// State 扫描器生命周期状态
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
)

// String 返回状态名称
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Scanner 在有界协程池中对目标的每个端口执行一次探测.
// 每个 Scanner 只能运行一次.
type Scanner struct {
	target     ScanTarget
	prober     Prober
	log        *logrus.Entry
	onProgress func(Progress)
	state      atomic.Int32
}

// Option 扫描器配置项
type Option func(*Scanner)

// WithLogger 设置日志记录器, 默认使用 logrus 标准 logger
func WithLogger(log *logrus.Entry) Option {
	return func(s *Scanner) { s.log = log }
}

// WithProgress 注册每次探测后的回调, fn 可能被多个协程同时调用
func WithProgress(fn func(Progress)) Option {
	return func(s *Scanner) { s.onProgress = fn }
}

// NewScanner 创建一个新的扫描器实例
func NewScanner(target ScanTarget, prober Prober, opts ...Option) (*Scanner, error) {
	if prober == nil {
		return nil, fmt.Errorf("%w: no prober", ErrInvalidInput)
	}
	if target.Ports == nil || target.Ports.Count() == 0 {
		return nil, fmt.Errorf("%w: no ports to scan", ErrInvalidInput)
	}
	if target.Concurrency <= 0 {
		return nil, fmt.Errorf("%w: concurrency must be positive, got %d", ErrInvalidInput, target.Concurrency)
	}
	if target.Concurrency > MaxConcurrency {
		target.Concurrency = MaxConcurrency
	}
	s := &Scanner{target: target, prober: prober}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logrus.NewEntry(logrus.StandardLogger())
	}
	return s, nil
}

// State 返回扫描器当前状态
func (s *Scanner) State() State { return State(s.state.Load()) }

// Run 对每个端口恰好探测一次, 同时进行的探测不超过 Concurrency 个,
// 全部完成后返回. ctx 取消后停止派发新任务, 等待已开始的探测结束,
// 并返回部分报告和 ctx.Err().
func (s *Scanner) Run(ctx context.Context) (*ScanReport, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, ErrAlreadyStarted
	}
	defer s.state.Store(int32(StateCompleted))

	report := NewScanReport(s.target)
	report.StartedAt = time.Now()
	log := s.log.WithFields(logrus.Fields{
		"scan_id": report.ID,
		"target":  s.target.Address,
		"mode":    s.target.Mode,
	})
	tracker := &progressTracker{total: s.target.Ports.Count(), onUpdate: s.onProgress}

	log.WithFields(logrus.Fields{
		"ports":       tracker.total,
		"concurrency": s.target.Concurrency,
	}).Info("scan started")

	var g errgroup.Group
	g.SetLimit(s.target.Concurrency)
	for port := range s.target.Ports.Ports() {
		// 检查上下文是否已取消
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			res := s.prober.Probe(ctx, port)
			res.Port = port
			if res.Err != nil {
				var te *TransportError
				if errors.As(res.Err, &te) {
					log.WithField("port", port).Warnf("probe skipped: %v", te.Err)
				} else {
					log.WithField("port", port).Warnf("probe failed: %v", res.Err)
				}
				res.State = StateClosedOrFiltered
			}
			tracker.update(report.Record(res))
			return nil
		})
	}
	// 等待所有正在进行的扫描任务完成
	_ = g.Wait()
	report.Duration = time.Since(report.StartedAt)

	log.WithFields(logrus.Fields{
		"attempted": report.Attempted(),
		"open":      report.Len(),
		"elapsed":   report.Duration.Round(time.Millisecond),
	}).Info("scan completed")

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
