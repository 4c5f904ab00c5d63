package output

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"PortScanGo/internal/portscan"
)

// ProgressBar 在终端上显示扫描进度
type ProgressBar struct {
	bar *progressbar.ProgressBar
}

// NewProgressBar 创建进度条, 仅当 visible 为 true 且 w 为终端时绘制
func NewProgressBar(total int, w io.Writer, visible bool) *ProgressBar {
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		visible = false
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetVisibility(visible),
		progressbar.OptionEnableColorCodes(true), // 启用颜色代码支持
		progressbar.OptionShowBytes(false),       // 我们不是传输文件，不显示字节大小
		progressbar.OptionSetWidth(30),           // 进度条宽度
		progressbar.OptionShowCount(),
		progressbar.OptionSetDescription("[cyan][扫描中][reset]"), // 描述前缀
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
	return &ProgressBar{bar: bar}
}

// Update 每完成一次探测前进一格, 并发安全
func (p *ProgressBar) Update(pr portscan.Progress) {
	p.bar.Describe("[cyan][扫描中][reset] " + pr.Status)
	_ = p.bar.Add(1)
}

// Finish 结束并清除进度条
func (p *ProgressBar) Finish() {
	_ = p.bar.Finish()
	_ = p.bar.Clear()
}
