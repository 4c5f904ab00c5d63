package portscan

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"golang.org/x/net/ipv4"
)

// RawConn 与 IPv4 主机收发裸 TCP 报文段, 发送时由内核填充 IP 头部
type RawConn interface {
	WriteTo(segment []byte, dst netip.Addr) error
	// ReadFrom 读取一个 TCP 报文段, 已去除 IP 头部
	ReadFrom(b []byte) (int, netip.Addr, error)
	SetReadDeadline(t time.Time) error
	Close() error
}

type ipv4RawConn struct {
	pc *ipv4.PacketConn
}

// OpenRawConn 打开 ip4:tcp 原始套接字, 权限不足时返回的错误包装 ErrPrivilege
func OpenRawConn() (RawConn, error) {
	c, err := net.ListenPacket("ip4:tcp", "0.0.0.0")
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPrivilege, err)
		}
		return nil, fmt.Errorf("open raw socket: %w", err)
	}
	return &ipv4RawConn{pc: ipv4.NewPacketConn(c)}, nil
}

func (c *ipv4RawConn) WriteTo(segment []byte, dst netip.Addr) error {
	_, err := c.pc.WriteTo(segment, nil, &net.IPAddr{IP: dst.AsSlice()})
	return err
}

func (c *ipv4RawConn) ReadFrom(b []byte) (int, netip.Addr, error) {
	n, _, src, err := c.pc.ReadFrom(b)
	if err != nil {
		return 0, netip.Addr{}, err
	}
	var addr netip.Addr
	if ipa, ok := src.(*net.IPAddr); ok {
		addr, _ = netip.AddrFromSlice(ipa.IP)
		addr = addr.Unmap()
	}
	off := ipv4HeaderLen(b[:n])
	copy(b, b[off:n])
	return n - off, addr, nil
}

func (c *ipv4RawConn) SetReadDeadline(t time.Time) error { return c.pc.SetReadDeadline(t) }

func (c *ipv4RawConn) Close() error { return c.pc.Close() }

// ipv4HeaderLen 返回 b 开头 IPv4 头部的长度, b 直接从 TCP 头部开始时返回 0.
// 部分平台会交付完整数据报, 仅当总长度字段与 len(b) 一致时才视为 IP 头部.
func ipv4HeaderLen(b []byte) int {
	if len(b) < ipv4.HeaderLen || b[0]>>4 != ipv4.Version {
		return 0
	}
	hl := int(b[0]&0x0f) << 2
	if hl < ipv4.HeaderLen || hl > len(b) || b[9] != ipProtocolTCP {
		return 0
	}
	if int(binary.BigEndian.Uint16(b[2:4])) != len(b) {
		return 0
	}
	return hl
}

// LocalAddrFor 返回内核路由到 dst 时使用的本地 IPv4 地址.
// UDP 套接字 connect 不会发送任何数据.
func LocalAddrFor(dst netip.Addr) (netip.Addr, error) {
	conn, err := net.Dial("udp4", netip.AddrPortFrom(dst, 9).String())
	if err != nil {
		return netip.Addr{}, fmt.Errorf("route to %s: %w", dst, err)
	}
	defer conn.Close()
	ap, err := netip.ParseAddrPort(conn.LocalAddr().String())
	if err != nil {
		return netip.Addr{}, err
	}
	return ap.Addr().Unmap(), nil
}
