package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"PortScanGo/internal/portscan"
)

// LoadEnv 读取的环境变量
const (
	EnvConcurrency = "PORTSCAN_CONCURRENCY"
	EnvTimeout     = "PORTSCAN_TIMEOUT"
	EnvMode        = "PORTSCAN_MODE"
	EnvPorts       = "PORTSCAN_PORTS"
	EnvBanner      = "PORTSCAN_BANNER"
	EnvRetries     = "PORTSCAN_RETRIES"
)

// Config 命令行与环境变量合并后的原始配置
type Config struct {
	Target      string
	Ports       string
	Mode        string
	Concurrency int
	Timeout     time.Duration
	Banner      bool
	Retries     int
	NoReset     bool
	Verbose     bool
	NoProgress  bool
}

// Default 返回默认配置
func Default() Config {
	return Config{
		Mode:        portscan.ModeConnect.String(),
		Concurrency: portscan.DefaultConcurrency,
		Timeout:     portscan.DefaultConnectTimeout,
		Retries:     1,
	}
}

// LoadEnv 加载 .env 文件 (不存在则跳过) 到进程环境, 再将 PORTSCAN_* 变量覆盖到 cfg.
// 环境中已有的变量优先于文件. 所有错误都包装 portscan.ErrInvalidInput.
func LoadEnv(cfg *Config, files ...string) error {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: load %s: %v", portscan.ErrInvalidInput, f, err)
		}
	}

	if v, ok := os.LookupEnv(EnvConcurrency); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", portscan.ErrInvalidInput, EnvConcurrency, err)
		}
		cfg.Concurrency = n
	}
	if v, ok := os.LookupEnv(EnvTimeout); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", portscan.ErrInvalidInput, EnvTimeout, err)
		}
		cfg.Timeout = d
	}
	if v, ok := os.LookupEnv(EnvRetries); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", portscan.ErrInvalidInput, EnvRetries, err)
		}
		cfg.Retries = n
	}
	if v, ok := os.LookupEnv(EnvBanner); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s: %v", portscan.ErrInvalidInput, EnvBanner, err)
		}
		cfg.Banner = b
	}
	if v, ok := os.LookupEnv(EnvMode); ok {
		cfg.Mode = v
	}
	if v, ok := os.LookupEnv(EnvPorts); ok {
		cfg.Ports = v
	}
	return nil
}

// Validate 校验配置并转换为 ScanTarget, 所有错误都包装 portscan.ErrInvalidInput
func (c Config) Validate() (portscan.ScanTarget, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(c.Target))
	if err != nil || !addr.Is4() {
		return portscan.ScanTarget{}, fmt.Errorf("%w: %q is not an IPv4 address", portscan.ErrInvalidInput, c.Target)
	}
	if c.Concurrency < 1 || c.Concurrency > portscan.MaxConcurrency {
		return portscan.ScanTarget{}, fmt.Errorf("%w: concurrency must be in 1..%d, got %d",
			portscan.ErrInvalidInput, portscan.MaxConcurrency, c.Concurrency)
	}
	if c.Timeout <= 0 {
		return portscan.ScanTarget{}, fmt.Errorf("%w: timeout must be positive", portscan.ErrInvalidInput)
	}
	if c.Retries < 0 {
		return portscan.ScanTarget{}, fmt.Errorf("%w: retries must not be negative", portscan.ErrInvalidInput)
	}
	mode, err := portscan.ParseScanMode(c.Mode)
	if err != nil {
		return portscan.ScanTarget{}, err
	}
	ports, err := ParsePortSpec(c.Ports)
	if err != nil {
		return portscan.ScanTarget{}, err
	}
	return portscan.ScanTarget{
		Address:     addr,
		Concurrency: c.Concurrency,
		Mode:        mode,
		Ports:       ports,
	}, nil
}

// ProberConfig 从配置中提取探测参数
func (c Config) ProberConfig() portscan.ProberConfig {
	return portscan.ProberConfig{
		Timeout:    c.Timeout,
		GrabBanner: c.Banner,
		Retries:    c.Retries,
		NoReset:    c.NoReset,
	}
}
