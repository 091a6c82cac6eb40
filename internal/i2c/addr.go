package i2c

import (
	"encoding/binary"
	"fmt"
)

// BusPath returns the character device for adapter n.
func BusPath(n int) string { return fmt.Sprintf("/dev/i2c-%d", n) }

func checkAddr(addr uint16) error {
	if addr == 0 || addr > 0x7F {
		return fmt.Errorf("i2c: invalid addr 0x%X", addr)
	}
	return nil
}

// Vec3 decodes three consecutive signed 16-bit axis registers. Sensors differ
// in byte order: the ICM-20948 accel block is big-endian, the AK09916 block
// little-endian.
func Vec3(buf []byte, order binary.ByteOrder) ([3]int16, error) {
	if len(buf) < 6 {
		return [3]int16{}, fmt.Errorf("i2c: need 6 bytes for vector, got %d", len(buf))
	}
	return [3]int16{
		int16(order.Uint16(buf[0:2])),
		int16(order.Uint16(buf[2:4])),
		int16(order.Uint16(buf[4:6])),
	}, nil
}
