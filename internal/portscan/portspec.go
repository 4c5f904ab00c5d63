package portscan

import (
	"fmt"
	"iter"
	"slices"
)

// PortSpec 一次扫描要探测的端口集合
type PortSpec interface {
	// Count 返回 Ports 产出的端口数量
	Count() int
	// Ports 按升序产出每个端口各一次, 可重复遍历
	Ports() iter.Seq[uint16]
}

// PortList 显式指定且去重的端口列表
type PortList struct {
	ports []uint16
}

// NewPortList 排序并去重, 拒绝空列表和端口 0
func NewPortList(ports ...uint16) (PortList, error) {
	if len(ports) == 0 {
		return PortList{}, fmt.Errorf("%w: empty port list", ErrInvalidInput)
	}
	out := make([]uint16, 0, len(ports))
	for _, p := range ports {
		if p == 0 {
			return PortList{}, fmt.Errorf("%w: port 0 is not scannable", ErrInvalidInput)
		}
		out = append(out, p)
	}
	slices.Sort(out)
	return PortList{ports: slices.Compact(out)}, nil
}

// Count 返回端口数量
func (l PortList) Count() int { return len(l.ports) }

// Ports 按升序遍历端口
func (l PortList) Ports() iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		for _, p := range l.ports {
			if !yield(p) {
				return
			}
		}
	}
}

// String 返回端口列表的文本形式
func (l PortList) String() string { return fmt.Sprint(l.ports) }

// PortRange 连续端口区间 Lo..Hi (闭区间).
// 零值为空区间.
type PortRange struct {
	lo, hi uint16
}

// NewPortRange 校验 1 <= lo <= hi
func NewPortRange(lo, hi uint16) (PortRange, error) {
	if lo == 0 {
		return PortRange{}, fmt.Errorf("%w: port 0 is not scannable", ErrInvalidInput)
	}
	if lo > hi {
		return PortRange{}, fmt.Errorf("%w: range start %d greater than end %d", ErrInvalidInput, lo, hi)
	}
	return PortRange{lo: lo, hi: hi}, nil
}

// FullRange 覆盖全部可扫描端口 1-65535
func FullRange() PortRange { return PortRange{lo: 1, hi: 65535} }

// Lo 返回区间起始端口
func (r PortRange) Lo() uint16 { return r.lo }

// Hi 返回区间结束端口
func (r PortRange) Hi() uint16 { return r.hi }

// Count 返回区间内端口数量, 零值为 0
func (r PortRange) Count() int {
	if r.lo == 0 {
		return 0
	}
	return int(r.hi) - int(r.lo) + 1
}

// Ports 按升序遍历区间内端口
func (r PortRange) Ports() iter.Seq[uint16] {
	return func(yield func(uint16) bool) {
		if r.lo == 0 {
			return
		}
		// 用 int 作循环变量, 保证 hi == 65535 时能终止
		for p := int(r.lo); p <= int(r.hi); p++ {
			if !yield(uint16(p)) {
				return
			}
		}
	}
}

// String 返回 "lo-hi" 形式
func (r PortRange) String() string { return fmt.Sprintf("%d-%d", r.lo, r.hi) }
