//go:build !linux || (!arm && !arm64)

package button

import (
	"fmt"
	"io"
	"time"
)

func openLine(pin int, debounce time.Duration, onPress func(time.Time)) (io.Closer, error) {
	return nil, fmt.Errorf("gpio unsupported on this platform")
}
