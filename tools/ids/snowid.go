// Package ids issues connection identifiers: 64-bit snowflake values
// (41 bit ms timestamp, 10 bit node, 12 bit sequence) rendered in decimal.
package ids

import (
	"strconv"
	"sync"
	"time"
)

const (
	nodeBits = 10
	seqBits  = 12
	maxNode  = 1<<nodeBits - 1
	seqMask  = 1<<seqBits - 1
	tsMask   = 1<<41 - 1
)

var epochMS = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

type Generator struct {
	mu     sync.Mutex
	node   int64
	seq    int64
	lastMS int64
	now    func() int64
}

// NewGenerator node 超出 0~1023 时回退到 1
func NewGenerator(node int64) *Generator {
	if node < 0 || node > maxNode {
		node = 1
	}
	return &Generator{node: node, now: func() int64 { return time.Now().UnixMilli() }}
}

func (g *Generator) NodeID() int64 { return g.node }

func (g *Generator) NextString() string { return strconv.FormatInt(g.Next(), 10) }

// Next 时钟回拨时沿用上次的毫秒继续发号，序列耗尽再借用下一毫秒
func (g *Generator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now()
	if ms < g.lastMS {
		ms = g.lastMS
	}
	if ms == g.lastMS {
		g.seq = (g.seq + 1) & seqMask
		if g.seq == 0 {
			ms++
		}
	} else {
		g.seq = 0
	}
	g.lastMS = ms
	return ((ms-epochMS)&tsMask)<<(nodeBits+seqBits) | g.node<<seqBits | g.seq
}
