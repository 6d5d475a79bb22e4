package cp

import (
	"fmt"
	"math"

	"github.com/xenosgpu/gpucore/pm4"
)

// WriteRegister applies a single guest register write, routing
// shader-constant classes to their dedicated storage and everything
// else to the general register map.
func (p *Processor) WriteRegister(index int, value uint32) {
	switch pm4.ClassifyRegister(index) {
	case pm4.ClassALUConstant:
		p.writeALUConstant(index, value)
	case pm4.ClassFetchConstant:
		p.writeFetchConstant(index, value)
	case pm4.ClassBoolLoopConstant:
		p.writeBoolLoopConstant(index, value)
	default:
		p.regs[index] = value
	}
}

func (p *Processor) writeALUConstant(index int, value uint32) {
	const base = 0x4000
	rel := index - base
	if rel < 0 || rel >= len(p.aluConst) {
		return
	}
	p.aluConst[rel] = math.Float32frombits(value)
}

func (p *Processor) writeFetchConstant(index int, value uint32) {
	slot, off, ok := pm4.FetchConstantSlot(index)
	if !ok || slot >= len(p.fetchConst) {
		return
	}
	p.fetchConst[slot][off] = value
}

func (p *Processor) writeBoolLoopConstant(index int, value uint32) {
	const (
		boolBase = 0x4900
		boolN    = 8
		loopBase = 0x4908
	)
	switch {
	case index >= boolBase && index < boolBase+boolN:
		p.boolConst[index-boolBase] = value
	case index >= loopBase:
		rel := index - loopBase
		if rel >= 0 && rel < len(p.loopConst) {
			p.loopConst[rel] = value
		}
	}
}

// WriteRegisterRangeFromRing applies count sequential register writes
// whose values live in ring starting at ringOffset, targeting guest
// register indices [base, base+count).
func (p *Processor) WriteRegisterRangeFromRing(ring []uint32, ringOffset, base, count int) error {
	if ringOffset < 0 || ringOffset+count > len(ring) {
		return fmt.Errorf("cp: register range reads past end of ring")
	}
	for i := 0; i < count; i++ {
		p.WriteRegister(base+i, ring[ringOffset+i])
	}
	return nil
}

// WriteRegisterRangeFromMem applies count sequential register writes
// read from guest memory at ptr, targeting guest register indices
// [base, base+count).
func (p *Processor) WriteRegisterRangeFromMem(base int, ptr uint32, count int) error {
	if int64(ptr)+int64(count)*4 > int64(len(p.guestMem)) {
		return fmt.Errorf("cp: register range read exceeds guest memory")
	}
	for i := 0; i < count; i++ {
		off := ptr + uint32(i*4)
		v := uint32(p.guestMem[off]) | uint32(p.guestMem[off+1])<<8 |
			uint32(p.guestMem[off+2])<<16 | uint32(p.guestMem[off+3])<<24
		p.WriteRegister(base+i, v)
	}
	return nil
}
