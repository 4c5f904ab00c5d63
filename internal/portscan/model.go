package portscan

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ScanMode 定义扫描模式
type ScanMode int

const (
	ModeConnect ScanMode = iota // TCP 全连接扫描 (默认, 无需 Root)
	ModeSYN                     // TCP SYN 半开放扫描 (需 Root)
)

// String 返回模式名称
func (m ScanMode) String() string {
	switch m {
	case ModeConnect:
		return "connect"
	case ModeSYN:
		return "syn"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseScanMode 解析扫描模式, 支持 "connect"/"tcp" 和 "syn"/"stealth"
func ParseScanMode(s string) (ScanMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "connect", "tcp":
		return ModeConnect, nil
	case "syn", "stealth":
		return ModeSYN, nil
	}
	return 0, fmt.Errorf("%w: unknown scan mode %q", ErrInvalidInput, s)
}

// PortState 单次探测的结果, 不区分关闭与过滤
type PortState int

const (
	StateClosedOrFiltered PortState = iota
	StateOpen
)

// String 返回端口状态名称
func (s PortState) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed|filtered"
}

// ScanTarget 经过校验的扫描输入
type ScanTarget struct {
	Address     netip.Addr
	Concurrency int
	Mode        ScanMode
	Ports       PortSpec
}

// ProbeResult 扫描结果
//
// Err 仅在传输失败 (原始报文无法发送) 时设置.
// 普通的拒绝或超时为 StateClosedOrFiltered, Err 为 nil.
type ProbeResult struct {
	Port   uint16
	State  PortState
	Banner []byte
	Err    error
}

// Open 判断端口是否开放
func (r ProbeResult) Open() bool { return r.State == StateOpen }

// Prober 探测固定目标的单个端口.
// 实现必须并发安全, 且在探测结束前不得返回.
type Prober interface {
	Probe(ctx context.Context, port uint16) ProbeResult
}

// 哨兵错误
var (
	ErrInvalidInput   = errors.New("invalid input")
	ErrPrivilege      = errors.New("raw socket access requires elevated privileges (root or CAP_NET_RAW)")
	ErrAlreadyStarted = errors.New("scan already started")
)

// TransportError 某个端口的原始报文构造或发送失败
type TransportError struct {
	Port uint16
	Op   string
	Err  error
}

// Error 实现 error 接口
func (e *TransportError) Error() string {
	return fmt.Sprintf("port %d: %s: %v", e.Port, e.Op, e.Err)
}

// Unwrap 返回底层错误
func (e *TransportError) Unwrap() error { return e.Err }
