package portscan

import (
	"encoding/binary"
	"net/netip"
	"time"
)

// TCPFlags TCP 头部标志位
type TCPFlags uint8

const (
	FlagFIN TCPFlags = 1 << iota
	FlagSYN
	FlagRST
	FlagPSH
	FlagACK
	FlagURG
)

// Has 判断是否同时包含 flags 中的所有标志位
func (f TCPFlags) Has(flags TCPFlags) bool { return f&flags == flags }

const (
	tcpHeaderLen   = 20
	ipProtocolTCP  = 6
	DefaultWindow  = 64240
	defaultMSS     = 1460
	defaultWScale  = 7
	checksumOffset = 16
)

// TCP 选项类型
const (
	optEnd       = 0
	optNOP       = 1
	optMSS       = 2
	optWScale    = 3
	optSACKPerm  = 4
	optTimestamp = 8
)

// SegmentParams 描述一个不带载荷的 TCP 报文段
type SegmentParams struct {
	Src, Dst         netip.Addr
	SrcPort, DstPort uint16
	Seq, Ack         uint32
	Flags            TCPFlags
	Window           uint16 // 为 0 时使用 DefaultWindow
	Options          []byte
}

// SYNOptions 返回与 Linux 内核 SYN 一致的选项:
// MSS, SACK permitted, 时间戳, NOP, 窗口扩大因子
func SYNOptions(tsval uint32) []byte {
	opts := make([]byte, 20)
	opts[0], opts[1] = optMSS, 4
	binary.BigEndian.PutUint16(opts[2:4], defaultMSS)
	opts[4], opts[5] = optSACKPerm, 2
	opts[6], opts[7] = optTimestamp, 10
	binary.BigEndian.PutUint32(opts[8:12], tsval)
	// SYN 报文的 TSecr 为 0
	opts[16] = optNOP
	opts[17], opts[18], opts[19] = optWScale, 3, defaultWScale
	return opts
}

// BuildSegment 将 p 序列化为 TCP 头部, 校验和基于 IPv4 伪首部计算.
// 选项用 0 (选项表结束) 补齐到 4 字节的倍数.
func BuildSegment(p SegmentParams) []byte {
	optLen := (len(p.Options) + 3) &^ 3
	seg := make([]byte, tcpHeaderLen+optLen)

	binary.BigEndian.PutUint16(seg[0:2], p.SrcPort)
	binary.BigEndian.PutUint16(seg[2:4], p.DstPort)
	binary.BigEndian.PutUint32(seg[4:8], p.Seq)
	binary.BigEndian.PutUint32(seg[8:12], p.Ack)
	seg[12] = byte(len(seg)/4) << 4
	seg[13] = byte(p.Flags)
	window := p.Window
	if window == 0 {
		window = DefaultWindow
	}
	binary.BigEndian.PutUint16(seg[14:16], window)
	// 校验和 [16:18] 与紧急指针 [18:20] 初始为 0
	copy(seg[tcpHeaderLen:], p.Options)
	for i := tcpHeaderLen + len(p.Options); i < len(seg); i++ {
		seg[i] = optEnd
	}

	binary.BigEndian.PutUint16(seg[checksumOffset:], TCPChecksum(p.Src, p.Dst, seg))
	return seg
}

// Checksum 计算 b 的 RFC 1071 互联网校验和
func Checksum(b []byte) uint16 {
	return ^fold(sum16(0, b))
}

// TCPChecksum 计算 IPv4 伪首部加 segment 的校验和.
// 对校验和字段已正确的报文段计算结果为 0.
func TCPChecksum(src, dst netip.Addr, segment []byte) uint16 {
	var pseudo [12]byte
	s4, d4 := src.As4(), dst.As4()
	copy(pseudo[0:4], s4[:])
	copy(pseudo[4:8], d4[:])
	pseudo[9] = ipProtocolTCP
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))

	return ^fold(sum16(sum16(0, pseudo[:]), segment))
}

func sum16(sum uint32, b []byte) uint32 {
	for len(b) > 1 {
		sum += uint32(binary.BigEndian.Uint16(b))
		b = b[2:]
	}
	if len(b) == 1 {
		sum += uint32(b[0]) << 8
	}
	return sum
}

func fold(sum uint32) uint16 {
	for sum>>16 != 0 {
		sum = sum&0xffff + sum>>16
	}
	return uint16(sum)
}

var clockStart = time.Now()

// monotonicMillis 时间戳选项 TSval 的来源: 进程启动以来的单调时钟毫秒数
func monotonicMillis() uint32 {
	return uint32(time.Since(clockStart).Milliseconds())
}
