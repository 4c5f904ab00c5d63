package portscan

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// ProberConfig 两种探测策略共用的参数
type ProberConfig struct {
	Timeout    time.Duration
	GrabBanner bool
	Retries    int
	NoReset    bool
	Logger     *logrus.Entry
}

// OpenProber 按 target.Mode 创建探测器.
// ModeSYN 在此打开原始套接字, 权限不足时在发送任何报文前返回 ErrPrivilege.
// 调用方负责通过 CloseProber 释放资源.
func OpenProber(target ScanTarget, cfg ProberConfig) (Prober, error) {
	switch target.Mode {
	case ModeConnect:
		return NewConnectProber(target.Address, cfg.Timeout, cfg.GrabBanner), nil
	case ModeSYN:
		src, err := LocalAddrFor(target.Address)
		if err != nil {
			return nil, err
		}
		conn, err := OpenRawConn()
		if err != nil {
			return nil, err
		}
		return NewSynProber(conn, src, target.Address, SynOptions{
			Timeout: cfg.Timeout,
			Retries: cfg.Retries,
			NoReset: cfg.NoReset,
			Logger:  cfg.Logger,
		}), nil
	}
	return nil, fmt.Errorf("%w: unsupported scan mode %s", ErrInvalidInput, target.Mode)
}

// CloseProber 关闭持有资源的探测器
func CloseProber(p Prober) error {
	if c, ok := p.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
