package portscan

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalAddrFor_Loopback(t *testing.T) {
	src, err := LocalAddrFor(loopback)
	require.NoError(t, err)
	assert.Equal(t, loopback, src)
}

func TestOpenRawConn_RequiresPrivilege(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("以 root 运行, 权限检查不适用")
	}
	conn, err := OpenRawConn()
	if err == nil {
		_ = conn.Close()
		t.Skip("当前进程拥有 CAP_NET_RAW")
	}
	assert.ErrorIs(t, err, ErrPrivilege)

	target := ScanTarget{Address: loopback, Concurrency: 1, Mode: ModeSYN, Ports: FullRange()}
	prober, err := OpenProber(target, ProberConfig{})
	assert.Nil(t, prober)
	assert.ErrorIs(t, err, ErrPrivilege)
}

func TestOpenProber_SynOnLoopback(t *testing.T) {
	if os.Geteuid() != 0 {
		t.Skip("需要 root 权限打开原始套接字")
	}
	open := listen(t, nil)
	closed := closedPort(t)

	target := ScanTarget{Address: loopback, Concurrency: 2, Mode: ModeSYN, Ports: mustList(t, open, closed)}
	prober, err := OpenProber(target, ProberConfig{Timeout: 500 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = CloseProber(prober) })
	require.IsType(t, &SynProber{}, prober)

	s, err := NewScanner(target, prober)
	require.NoError(t, err)
	report, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []uint16{open}, report.OpenPorts())
	assert.Equal(t, 2, report.Attempted())
}
