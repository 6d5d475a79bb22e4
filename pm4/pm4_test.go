package pm4

import "testing"

func TestClassifyType3(t *testing.T) {
	// count=2, opcode=DRAW_INDX (0x22).
	header := uint32(3)<<30 | uint32(0x22)<<8 | uint32(1)<<16
	if typ := classify(header); typ != Type3 {
		t.Fatalf("classify:\nhave %v\nwant %v", typ, Type3)
	}
}

func TestDecodeType3(t *testing.T) {
	header := uint32(3)<<30 | uint32(OpDrawIndx)<<8 | uint32(1)<<16
	ring := []uint32{header, 0xaaaa, 0xbbbb}
	p, ok := decode(ring)
	if !ok {
		t.Fatalf("decode: ok = false")
	}
	if p.Type != Type3 {
		t.Fatalf("p.Type:\nhave %v\nwant %v", p.Type, Type3)
	}
	if p.Op != OpDrawIndx {
		t.Fatalf("p.Op:\nhave %#x\nwant %#x", p.Op, OpDrawIndx)
	}
	if len(p.Words) != 2 || p.Words[0] != 0xaaaa || p.Words[1] != 0xbbbb {
		t.Fatalf("p.Words:\nhave %v\nwant [0xaaaa 0xbbbb]", p.Words)
	}
	if p.Len != 3 {
		t.Fatalf("p.Len:\nhave %d\nwant 3", p.Len)
	}
}

func TestDecodeType0(t *testing.T) {
	// base register 0x100, auto-increment, count=3.
	header := uint32(0)<<30 | uint32(0x100) | uint32(2)<<16
	ring := []uint32{header, 1, 2, 3}
	p, ok := decode(ring)
	if !ok {
		t.Fatalf("decode: ok = false")
	}
	if p.Type != Type0 {
		t.Fatalf("p.Type:\nhave %v\nwant %v", p.Type, Type0)
	}
	if p.BaseRegister != 0x100 {
		t.Fatalf("p.BaseRegister:\nhave %#x\nwant %#x", p.BaseRegister, 0x100)
	}
	if len(p.Words) != 3 {
		t.Fatalf("len(p.Words):\nhave %d\nwant 3", len(p.Words))
	}
}

func TestDecodeType2(t *testing.T) {
	header := uint32(2) << 30
	p, ok := decode([]uint32{header})
	if !ok || p.Type != Type2 || p.Len != 1 {
		t.Fatalf("decode Type2:\nhave %+v, %v\nwant Len=1 ok=true", p, ok)
	}
}

func TestDecodeTruncated(t *testing.T) {
	// Declares count=10 but the ring only has the header.
	header := uint32(3)<<30 | uint32(OpNop)<<8 | uint32(9)<<16
	if _, ok := decode([]uint32{header}); ok {
		t.Fatalf("decode: ok = true, want false for truncated packet")
	}
}

func TestReaderAdvancesConservativelyOnMalformed(t *testing.T) {
	header := uint32(3)<<30 | uint32(OpNop)<<8 | uint32(9)<<16
	ring := []uint32{header, 0, 0}
	r := NewReader(ring, 0)
	_, ok, err := r.Next()
	if !ok || err == nil {
		t.Fatalf("Next: ok=%v err=%v, want ok=true err!=nil", ok, err)
	}
	if r.Pos() != 1 {
		t.Fatalf("r.Pos:\nhave %d\nwant 1", r.Pos())
	}
}

func TestReaderWalksMultiplePackets(t *testing.T) {
	nop := uint32(3)<<30 | uint32(OpNop)<<8
	drawHeader := uint32(3)<<30 | uint32(OpDrawIndx)<<8 | uint32(1)<<16
	// A type-3 count field of 0 still carries one payload dword.
	ring := []uint32{nop, 0, drawHeader, 1, 2}
	r := NewReader(ring, 0)

	p1, ok, err := r.Next()
	if !ok || err != nil || p1.Op != OpNop {
		t.Fatalf("first packet:\nhave %+v, %v, %v", p1, ok, err)
	}
	p2, ok, err := r.Next()
	if !ok || err != nil || p2.Op != OpDrawIndx || len(p2.Words) != 2 {
		t.Fatalf("second packet:\nhave %+v, %v, %v", p2, ok, err)
	}
	if _, ok, _ := r.Next(); ok {
		t.Fatalf("Next after exhausting ring: ok = true")
	}
}

func TestClassifyRegister(t *testing.T) {
	cases := []struct {
		index int
		want  RegisterClass
	}{
		{aluConstantBase, ClassALUConstant},
		{aluConstantBase + aluConstantCount - 1, ClassALUConstant},
		{fetchConstantBase, ClassFetchConstant},
		{boolConstantBase, ClassBoolLoopConstant},
		{loopConstantBase, ClassBoolLoopConstant},
		{0, ClassOther},
	}
	for _, c := range cases {
		if got := ClassifyRegister(c.index); got != c.want {
			t.Fatalf("ClassifyRegister(%#x):\nhave %v\nwant %v", c.index, got, c.want)
		}
	}
}

func TestFetchConstantSlot(t *testing.T) {
	slot, off, ok := FetchConstantSlot(fetchConstantBase + 6*3 + 2)
	if !ok || slot != 3 || off != 2 {
		t.Fatalf("FetchConstantSlot:\nhave slot=%d off=%d ok=%v\nwant slot=3 off=2 ok=true", slot, off, ok)
	}
	if _, _, ok := FetchConstantSlot(0); ok {
		t.Fatalf("FetchConstantSlot(0): ok = true, want false")
	}
}
