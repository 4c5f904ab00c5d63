package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"

	"PortScanGo/internal/config"
	"PortScanGo/internal/output"
	"PortScanGo/internal/portscan"
)

// 进程退出码
const (
	exitOK        = 0
	exitUsage     = 2
	exitPrivilege = 3
	exitRuntime   = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Default()
	envFile := ".env"
	if v, ok := os.LookupEnv("PORTSCAN_ENV_FILE"); ok {
		envFile = v
	}
	if err := config.LoadEnv(&cfg, envFile); err != nil {
		color.Red("[-]配置错误: %v", err)
		return exitCode(err)
	}

	flag.StringVar(&cfg.Target, "ip", cfg.Target, "目标IP地址 (IPv4)")
	flag.StringVar(&cfg.Ports, "p", cfg.Ports, "端口: 22 | 22,80,443 | 1-1024 | - (全部)")
	flag.StringVar(&cfg.Mode, "m", cfg.Mode, "扫描模式: connect | syn")
	syn := flag.Bool("s", false, "SYN 半开放扫描 (需 Root), 等同 -m syn")
	flag.IntVar(&cfg.Concurrency, "t", cfg.Concurrency, fmt.Sprintf("并发数 (1-%d)", portscan.MaxConcurrency))
	timeoutMs := flag.Int("timeout", int(cfg.Timeout/time.Millisecond), "连接超时(毫秒)")
	flag.BoolVar(&cfg.Banner, "banner", cfg.Banner, "读取服务 banner (connect 模式)")
	flag.IntVar(&cfg.Retries, "retries", cfg.Retries, "SYN 无响应时的重发次数")
	flag.BoolVar(&cfg.NoReset, "no-rst", cfg.NoReset, "SYN-ACK 后不发送 RST")
	flag.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "显示详细日志")
	flag.BoolVar(&cfg.NoProgress, "no-progress", cfg.NoProgress, "不显示进度条")
	flag.Parse()

	if cfg.Target == "" && flag.NArg() > 0 {
		cfg.Target = flag.Arg(0)
	}
	if *syn {
		cfg.Mode = portscan.ModeSYN.String()
	}
	cfg.Timeout = time.Duration(*timeoutMs) * time.Millisecond

	log := logrus.NewEntry(newLogger(cfg.Verbose))

	target, err := cfg.Validate()
	if err != nil {
		color.Red("[-]%v", err)
		flag.Usage()
		return exitCode(err)
	}

	pcfg := cfg.ProberConfig()
	pcfg.Logger = log
	prober, err := portscan.OpenProber(target, pcfg)
	if err != nil {
		if errors.Is(err, portscan.ErrPrivilege) {
			color.Red("[-]SYN 扫描需要 raw socket 权限, 请使用 sudo 或 CAP_NET_RAW 运行, 或改用 -m connect")
		} else {
			color.Red("[-]%v", err)
		}
		return exitCode(err)
	}
	defer func() {
		if err := portscan.CloseProber(prober); err != nil {
			log.Debugf("close prober: %v", err)
		}
	}()

	total := target.Ports.Count()
	color.Cyan("--- 开始扫描 %s [端口 %v, 共 %d 个] ---\n", target.Address, target.Ports, total)
	color.Cyan("--- 模式: %s | 并发数: %d | 超时: %dms ---\n", target.Mode, target.Concurrency, *timeoutMs)

	bar := output.NewProgressBar(total, os.Stderr, !cfg.NoProgress)
	scanner, err := portscan.NewScanner(target, prober,
		portscan.WithLogger(log),
		portscan.WithProgress(bar.Update),
	)
	if err != nil {
		color.Red("[-]%v", err)
		return exitCode(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	report, err := scanner.Run(ctx)
	bar.Finish()
	if report != nil {
		output.PrintReport(os.Stdout, report)
	}
	if err != nil {
		color.Red("[-]扫描中断: %v", err)
	}
	return exitCode(err)
}

// newLogger 创建输出到 stderr 的日志记录器, 默认 Info 级别, verbose 时为 Debug
func newLogger(verbose bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(logrus.InfoLevel)
	if verbose {
		logger.SetLevel(logrus.DebugLevel)
	}
	return logger
}

// exitCode 将错误映射为退出码
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, portscan.ErrPrivilege):
		return exitPrivilege
	case errors.Is(err, portscan.ErrInvalidInput):
		return exitUsage
	default:
		return exitRuntime
	}
}
