package portscan

import (
	"encoding/binary"
	"encoding/hex"
	"net"
	"net/netip"
	"testing"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSrc = netip.MustParseAddr("10.0.0.1")
	testDst = netip.MustParseAddr("10.0.0.2")
)

func goldenSYN() SegmentParams {
	return SegmentParams{
		Src:     testSrc,
		Dst:     testDst,
		SrcPort: 40000,
		DstPort: 80,
		Seq:     0x01020304,
		Flags:   FlagSYN,
		Options: SYNOptions(100),
	}
}

func TestChecksum_Golden(t *testing.T) {
	cases := map[string]struct {
		in   string
		want uint16
	}{
		"rfc1071":     {"0001f203f4f5f6f7", 0x220d},
		"ipv4 header": {"450000730000400040110000c0a80001c0a800c7", 0xb861},
		"odd length":  {"01", 0xfeff},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			b, err := hex.DecodeString(c.in)
			require.NoError(t, err)
			assert.Equal(t, c.want, Checksum(b))
		})
	}
}

func TestBuildSegment_Golden(t *testing.T) {
	want := "9c4000500102030400000000a002faf098120000" +
		"020405b40402080a000000640000000001030307"

	seg := BuildSegment(goldenSYN())
	assert.Equal(t, want, hex.EncodeToString(seg))
	assert.Equal(t, uint16(0x9812), binary.BigEndian.Uint16(seg[16:18]))
}

func TestBuildSegment_RSTWithoutOptions(t *testing.T) {
	seg := BuildSegment(SegmentParams{
		Src: testSrc, Dst: testDst,
		SrcPort: 40000, DstPort: 80,
		Seq:   0xdeadbeef,
		Flags: FlagRST,
	})
	require.Len(t, seg, 20)
	assert.Equal(t, byte(5<<4), seg[12])
	assert.Equal(t, uint16(0x66bf), binary.BigEndian.Uint16(seg[16:18]))
}

func TestTCPChecksum_SelfVerifies(t *testing.T) {
	for _, p := range []SegmentParams{
		goldenSYN(),
		{Src: testSrc, Dst: testDst, SrcPort: 1, DstPort: 65535, Seq: 0xffffffff, Ack: 7, Flags: FlagRST | FlagACK},
		{Src: testSrc, Dst: testDst, SrcPort: 5, DstPort: 6, Flags: FlagSYN, Options: []byte{optNOP, optNOP, optNOP}},
	} {
		seg := BuildSegment(p)
		assert.Zero(t, TCPChecksum(p.Src, p.Dst, seg))
	}
}

func TestBuildSegment_PadsOptions(t *testing.T) {
	seg := BuildSegment(SegmentParams{
		Src: testSrc, Dst: testDst, SrcPort: 5, DstPort: 6,
		Flags:   FlagSYN,
		Options: []byte{optMSS, 4, 0x05, 0xb4, optNOP},
	})
	require.Len(t, seg, 28)
	assert.Equal(t, byte(7<<4), seg[12])
	assert.Equal(t, []byte{optNOP, optEnd, optEnd, optEnd}, seg[24:28])
}

func TestBuildSegment_DecodesWithGopacket(t *testing.T) {
	seg := BuildSegment(goldenSYN())

	var tcp layers.TCP
	require.NoError(t, tcp.DecodeFromBytes(seg, gopacket.NilDecodeFeedback))

	assert.Equal(t, layers.TCPPort(40000), tcp.SrcPort)
	assert.Equal(t, layers.TCPPort(80), tcp.DstPort)
	assert.Equal(t, uint32(0x01020304), tcp.Seq)
	assert.Zero(t, tcp.Ack)
	assert.Equal(t, uint8(10), tcp.DataOffset)
	assert.True(t, tcp.SYN)
	assert.False(t, tcp.ACK || tcp.RST || tcp.FIN)
	assert.Equal(t, uint16(DefaultWindow), tcp.Window)
	assert.Zero(t, tcp.Urgent)

	kinds := make([]layers.TCPOptionKind, 0, len(tcp.Options))
	for _, o := range tcp.Options {
		kinds = append(kinds, o.OptionType)
	}
	assert.Equal(t, []layers.TCPOptionKind{
		layers.TCPOptionKindMSS,
		layers.TCPOptionKindSACKPermitted,
		layers.TCPOptionKindTimestamps,
		layers.TCPOptionKindNop,
		layers.TCPOptionKindWindowScale,
	}, kinds)
	assert.Equal(t, []byte{0x05, 0xb4}, tcp.Options[0].OptionData)
	assert.Equal(t, uint32(100), binary.BigEndian.Uint32(tcp.Options[2].OptionData[:4]))
	assert.Equal(t, []byte{defaultWScale}, tcp.Options[4].OptionData)
}

// gopacket 基于同样的伪首部计算校验和, 两种序列化结果必须逐字节一致
func TestBuildSegment_MatchesGopacketSerialization(t *testing.T) {
	p := goldenSYN()
	p.Seq = 0x9abcdef0
	p.Options = SYNOptions(123456)

	ip := &layers.IPv4{
		Version:  4,
		SrcIP:    net.IP(p.Src.AsSlice()),
		DstIP:    net.IP(p.Dst.AsSlice()),
		Protocol: layers.IPProtocolTCP,
	}
	tcp := &layers.TCP{
		SrcPort: layers.TCPPort(p.SrcPort),
		DstPort: layers.TCPPort(p.DstPort),
		Seq:     p.Seq,
		SYN:     true,
		Window:  DefaultWindow,
		Options: []layers.TCPOption{
			{OptionType: layers.TCPOptionKindMSS, OptionData: []byte{0x05, 0xb4}},
			{OptionType: layers.TCPOptionKindSACKPermitted},
			{OptionType: layers.TCPOptionKindTimestamps, OptionData: p.Options[8:16]},
			{OptionType: layers.TCPOptionKindNop},
			{OptionType: layers.TCPOptionKindWindowScale, OptionData: []byte{defaultWScale}},
		},
	}
	require.NoError(t, tcp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, tcp.SerializeTo(buf, opts))

	assert.Equal(t, hex.EncodeToString(buf.Bytes()), hex.EncodeToString(BuildSegment(p)))
}

func TestTCPFlags_Has(t *testing.T) {
	f := FlagSYN | FlagACK
	assert.True(t, f.Has(FlagSYN))
	assert.True(t, f.Has(FlagSYN|FlagACK))
	assert.False(t, f.Has(FlagRST))
	assert.Equal(t, TCPFlags(0x12), f)
}
