package portscan

import (
	"context"
	"io"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var loopback = netip.MustParseAddr("127.0.0.1")

// listen 启动回环监听, 每个接入连接都交给 handle 处理
func listen(t *testing.T, handle func(net.Conn)) uint16 {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	go func() {
		for {
			c, err := l.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				if handle != nil {
					handle(c)
				}
			}()
		}
	}()
	return uint16(l.Addr().(*net.TCPAddr).Port)
}

// closedPort 返回一个刚关闭监听的回环端口
func closedPort(t *testing.T) uint16 {
	t.Helper()
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	p := uint16(l.Addr().(*net.TCPAddr).Port)
	require.NoError(t, l.Close())
	return p
}

func TestConnectProber_OpenAndClosed(t *testing.T) {
	open := listen(t, nil)
	closed := closedPort(t)
	p := NewConnectProber(loopback, time.Second, false)

	res := p.Probe(context.Background(), open)
	assert.Equal(t, StateOpen, res.State)
	assert.Equal(t, open, res.Port)
	assert.NoError(t, res.Err)

	res = p.Probe(context.Background(), closed)
	assert.Equal(t, StateClosedOrFiltered, res.State)
	assert.NoError(t, res.Err, "refused connections are not errors")
}

func TestConnectProber_Banner(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		_, _ = c.Write([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
		_, _ = io.Copy(io.Discard, c)
	})
	p := NewConnectProber(loopback, time.Second, true)

	res := p.Probe(context.Background(), port)
	require.Equal(t, StateOpen, res.State)
	assert.Equal(t, "SSH-2.0-OpenSSH_9.6\r\n", string(res.Banner))
}

func TestConnectProber_SilentServiceHasNoBanner(t *testing.T) {
	port := listen(t, func(c net.Conn) {
		_, _ = io.Copy(io.Discard, c)
	})
	p := NewConnectProber(loopback, time.Second, true)
	p.BannerTimeout = 100 * time.Millisecond

	start := time.Now()
	res := p.Probe(context.Background(), port)
	assert.Equal(t, StateOpen, res.State)
	assert.Empty(t, res.Banner)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConnectProber_ClosesConnection(t *testing.T) {
	gotEOF := make(chan error, 1)
	port := listen(t, func(c net.Conn) {
		_ = c.SetReadDeadline(time.Now().Add(3 * time.Second))
		_, err := c.Read(make([]byte, 1))
		gotEOF <- err
	})
	p := NewConnectProber(loopback, time.Second, false)

	res := p.Probe(context.Background(), port)
	require.Equal(t, StateOpen, res.State)

	select {
	case err := <-gotEOF:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("server never saw the connection close")
	}
}
