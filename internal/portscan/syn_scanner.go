package portscan

import (
	"context"
	"errors"
	"math/rand/v2"
	"net"
	"net/netip"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/sirupsen/logrus"
)

const (
	ephemeralPortStart = 32768
	ephemeralPortEnd   = 61000 // 不含

	readPollInterval = 250 * time.Millisecond
)

// SynOptions SYN 探测器参数
type SynOptions struct {
	Timeout time.Duration // 单次尝试超时, 默认 1s
	Retries int           // 首次发送后的重试次数
	// NoReset 收到 SYN-ACK 后不发送 RST, 保持半开连接
	NoReset bool
	Logger  *logrus.Entry
}

type flowKey struct {
	local, remote uint16
}

type synReply struct {
	flags TCPFlags
	seq   uint32
	ack   uint32
}

type pendingProbe struct {
	seq     uint32
	replies chan synReply
}

// SynProber 负责处理 SYN 扫描
//
// 单个接收循环读取原始套接字上的所有回复,
// 按 (源端口, 目的端口) 交给对应的等待中的探测.
type SynProber struct {
	conn     RawConn
	src, dst netip.Addr
	opts     SynOptions
	log      *logrus.Entry
	clock    func() uint32

	mu      sync.Mutex
	pending map[flowKey]*pendingProbe

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ Prober = (*SynProber)(nil)

// NewSynProber 接管 conn 并启动接收循环
func NewSynProber(conn RawConn, src, dst netip.Addr, opts SynOptions) *SynProber {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &SynProber{
		conn:    conn,
		src:     src,
		dst:     dst,
		opts:    opts,
		log:     log.WithField("prober", "syn"),
		clock:   monotonicMillis,
		pending: make(map[flowKey]*pendingProbe),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.recvLoop()
	return s
}

// Probe 向端口发送 SYN 并根据回复判断状态
func (s *SynProber) Probe(ctx context.Context, port uint16) ProbeResult {
	res := ProbeResult{Port: port, State: StateClosedOrFiltered}

	key, p := s.register(port)
	defer s.unregister(key)

	syn := BuildSegment(SegmentParams{
		Src:     s.src,
		Dst:     s.dst,
		SrcPort: key.local,
		DstPort: port,
		Seq:     p.seq,
		Flags:   FlagSYN,
		Options: SYNOptions(s.clock()),
	})

	for attempt := 0; attempt <= s.opts.Retries; attempt++ {
		if err := s.conn.WriteTo(syn, s.dst); err != nil {
			res.Err = &TransportError{Port: port, Op: "send syn", Err: err}
			return res
		}

		timer := time.NewTimer(s.opts.Timeout)
		select {
		case r := <-p.replies:
			timer.Stop()
			if r.flags.Has(FlagSYN | FlagACK) {
				res.State = StateOpen
				s.reset(key, r)
			}
			return res
		case <-ctx.Done():
			timer.Stop()
			return res
		case <-s.done:
			timer.Stop()
			return res
		case <-timer.C:
			s.log.WithField("port", port).Debugf("no reply (attempt %d)", attempt+1)
		}
	}
	return res
}

// reset 发送 RST 拆除目标建立的半开连接
func (s *SynProber) reset(key flowKey, r synReply) {
	if s.opts.NoReset {
		return
	}
	rst := BuildSegment(SegmentParams{
		Src:     s.src,
		Dst:     s.dst,
		SrcPort: key.local,
		DstPort: key.remote,
		Seq:     r.ack,
		Flags:   FlagRST,
	})
	if err := s.conn.WriteTo(rst, s.dst); err != nil {
		s.log.WithField("port", key.remote).Debugf("send rst: %v", err)
	}
}

// register 分配一个未被占用的源端口
func (s *SynProber) register(port uint16) (flowKey, *pendingProbe) {
	p := &pendingProbe{seq: rand.Uint32(), replies: make(chan synReply, 1)}
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		key := flowKey{
			local:  uint16(ephemeralPortStart + rand.IntN(ephemeralPortEnd-ephemeralPortStart)),
			remote: port,
		}
		if _, busy := s.pending[key]; !busy {
			s.pending[key] = p
			return key, p
		}
	}
}

func (s *SynProber) unregister(key flowKey) {
	s.mu.Lock()
	delete(s.pending, key)
	s.mu.Unlock()
}

func (s *SynProber) recvLoop() {
	defer s.wg.Done()
	buf := make([]byte, 1500)
	var tcp layers.TCP
	for {
		select {
		case <-s.done:
			return
		default:
		}
		if err := s.conn.SetReadDeadline(time.Now().Add(readPollInterval)); err != nil {
			s.log.Debugf("set read deadline: %v", err)
		}
		n, from, err := s.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, os.ErrDeadlineExceeded) {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Debugf("read: %v", err)
			continue
		}
		if from.IsValid() && from != s.dst {
			continue
		}
		if err := tcp.DecodeFromBytes(buf[:n], gopacket.NilDecodeFeedback); err != nil {
			continue
		}
		s.dispatch(&tcp)
	}
}

func (s *SynProber) dispatch(tcp *layers.TCP) {
	key := flowKey{local: uint16(tcp.DstPort), remote: uint16(tcp.SrcPort)}
	s.mu.Lock()
	p, ok := s.pending[key]
	s.mu.Unlock()
	if !ok || tcp.Ack != p.seq+1 {
		return
	}

	var flags TCPFlags
	if tcp.SYN {
		flags |= FlagSYN
	}
	if tcp.ACK {
		flags |= FlagACK
	}
	if tcp.RST {
		flags |= FlagRST
	}
	// 只处理 SYN-ACK 和 RST, 其余忽略
	if !flags.Has(FlagSYN|FlagACK) && !flags.Has(FlagRST) {
		return
	}
	select {
	case p.replies <- synReply{flags: flags, seq: tcp.Seq, ack: tcp.Ack}:
	default:
	}
}

// Close 停止接收循环并关闭原始套接字
func (s *SynProber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}
