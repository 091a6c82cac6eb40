package i2c

import (
	"encoding/binary"
	"testing"
)

func TestVec3_ByteOrder(t *testing.T) {
	buf := []byte{0x01, 0x02, 0xFF, 0xFE, 0x80, 0x00}
	be, err := Vec3(buf, binary.BigEndian)
	if err != nil {
		t.Fatalf("Vec3: %v", err)
	}
	if be != [3]int16{0x0102, -2, -32768} {
		t.Fatalf("big endian=%v", be)
	}
	le, err := Vec3(buf, binary.LittleEndian)
	if err != nil {
		t.Fatalf("Vec3: %v", err)
	}
	if le != [3]int16{0x0201, -257, 0x0080} {
		t.Fatalf("little endian=%v", le)
	}
	if _, err := Vec3(buf[:5], binary.BigEndian); err == nil {
		t.Fatalf("expected short buffer error")
	}
}

func TestBusPathAndAddr(t *testing.T) {
	if got := BusPath(1); got != "/dev/i2c-1" {
		t.Fatalf("BusPath=%q", got)
	}
	for _, addr := range []uint16{0, 0x80, 0xFFFF} {
		if checkAddr(addr) == nil {
			t.Fatalf("addr 0x%X accepted", addr)
		}
	}
	if err := checkAddr(0x68); err != nil {
		t.Fatalf("0x68: %v", err)
	}
}
