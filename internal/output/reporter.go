package output

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/fatih/color"

	"PortScanGo/internal/portscan"
)

// Banner 显示的最大字符数
const maxBannerLen = 80

var (
	headerColor = color.New(color.FgCyan)
	openColor   = color.New(color.FgGreen)
	emptyColor  = color.New(color.FgYellow)
)

// FormatResult 输出 "port" 或 "port: banner"
func FormatResult(res portscan.ProbeResult) string {
	port := strconv.Itoa(int(res.Port))
	banner := SanitizeBanner(res.Banner)
	if banner == "" {
		return port
	}
	return port + ": " + banner
}

// SanitizeBanner 保留 b 的第一行并去除首尾空白, 不可打印字符替换为 '.'
func SanitizeBanner(b []byte) string {
	b = bytes.TrimSpace(b)
	if i := bytes.IndexAny(b, "\r\n"); i >= 0 {
		b = b[:i]
	}
	s := strings.Map(func(r rune) rune {
		if r == unicode.ReplacementChar || !unicode.IsPrint(r) {
			return '.'
		}
		return r
	}, string(b))
	if r := []rune(s); len(r) > maxBannerLen {
		s = string(r[:maxBannerLen]) + "..."
	}
	return s
}

// PrintReport 按升序输出扫描完成后的所有开放端口
func PrintReport(w io.Writer, report *portscan.ScanReport) {
	headerColor.Fprintf(w, "[+]扫描完成! %s 耗时: %s, 已探测 %d 个端口\n",
		report.Target, report.Duration.Round(time.Millisecond), report.Attempted())

	results := report.Results()
	if len(results) == 0 {
		emptyColor.Fprintln(w, "[-]No open ports found")
		return
	}
	fmt.Fprintln(w, "============================")
	for _, res := range results {
		openColor.Fprintf(w, "[+]%s\n", FormatResult(res))
	}
	headerColor.Fprintf(w, "[+]Open Ports: %d\n", len(results))
}
