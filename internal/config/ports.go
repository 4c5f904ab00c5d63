package config

import (
	"fmt"
	"strconv"
	"strings"

	"PortScanGo/internal/portscan"
)

// ParsePortSpec 解析端口参数
// 支持的格式:
//   - "" 或 "-": 全部端口 1-65535
//   - 单个: "22"
//   - 范围: "1-1024"
//   - 列表: "22,80,443", 元素可以是范围 ("22,8000-8100")
//
// 单个端口与范围返回 PortRange, 列表返回 PortList.
func ParsePortSpec(spec string) (portscan.PortSpec, error) {
	spec = strings.ReplaceAll(strings.TrimSpace(spec), " ", "")
	if spec == "" || spec == "-" {
		return portscan.FullRange(), nil
	}

	if !strings.Contains(spec, ",") {
		lo, hi, err := parseToken(spec)
		if err != nil {
			return nil, err
		}
		return portscan.NewPortRange(lo, hi)
	}

	var ports []uint16
	for _, tok := range strings.Split(spec, ",") {
		if tok == "" {
			return nil, fmt.Errorf("%w: empty entry in port list %q", portscan.ErrInvalidInput, spec)
		}
		lo, hi, err := parseToken(tok)
		if err != nil {
			return nil, err
		}
		if lo > hi {
			return nil, fmt.Errorf("%w: range start greater than end: %s", portscan.ErrInvalidInput, tok)
		}
		for p := int(lo); p <= int(hi); p++ {
			ports = append(ports, uint16(p))
		}
	}
	return portscan.NewPortList(ports...)
}

// parseToken 解析 "a" 或 "a-b", 不调换上下界
func parseToken(tok string) (uint16, uint16, error) {
	if lo, hi, ok := strings.Cut(tok, "-"); ok {
		l, err := parsePort(lo)
		if err != nil {
			return 0, 0, err
		}
		h, err := parsePort(hi)
		if err != nil {
			return 0, 0, err
		}
		return l, h, nil
	}
	p, err := parsePort(tok)
	return p, p, err
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("%w: invalid port %q, must be in 1..65535", portscan.ErrInvalidInput, s)
	}
	return uint16(n), nil
}
