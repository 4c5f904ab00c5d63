package portscan

import (
	"context"
	"net"
	"net/netip"
	"time"
)

// 全连接扫描默认参数
const (
	DefaultConnectTimeout = time.Second
	DefaultBannerTimeout  = time.Second
	DefaultBannerSize     = 1024
)

// ConnectProber 对每个端口完成一次完整的 TCP 握手
type ConnectProber struct {
	Addr          netip.Addr
	Timeout       time.Duration
	GrabBanner    bool
	BannerTimeout time.Duration
	BannerSize    int
}

var _ Prober = (*ConnectProber)(nil)

// NewConnectProber 创建一个全连接探测器
func NewConnectProber(addr netip.Addr, timeout time.Duration, grabBanner bool) *ConnectProber {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &ConnectProber{
		Addr:          addr,
		Timeout:       timeout,
		GrabBanner:    grabBanner,
		BannerTimeout: DefaultBannerTimeout,
		BannerSize:    DefaultBannerSize,
	}
}

// Probe 单个端口扫描逻辑
//
// 连接被拒绝, 不可达或超时均视为 StateClosedOrFiltered, 不返回错误.
func (p *ConnectProber) Probe(ctx context.Context, port uint16) ProbeResult {
	res := ProbeResult{Port: port, State: StateClosedOrFiltered}

	// 优化 Dialer 配置
	d := net.Dialer{
		Timeout:   p.Timeout,
		KeepAlive: -1, // 禁用 KeepAlive，扫描不需要保持连接
	}
	conn, err := d.DialContext(ctx, "tcp4", netip.AddrPortFrom(p.Addr, port).String())
	if err != nil {
		return res
	}
	defer conn.Close()

	res.State = StateOpen
	if p.GrabBanner {
		res.Banner = p.readBanner(conn)
	}
	return res
}

// readBanner 读取一次服务 Banner, 服务无输出不视为错误
func (p *ConnectProber) readBanner(conn net.Conn) []byte {
	size := p.BannerSize
	if size <= 0 {
		size = DefaultBannerSize
	}
	timeout := p.BannerTimeout
	if timeout <= 0 {
		timeout = DefaultBannerTimeout
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil
	}
	buf := make([]byte, size)
	n, _ := conn.Read(buf)
	if n == 0 {
		return nil
	}
	return buf[:n]
}
