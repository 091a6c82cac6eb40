//go:build linux && (arm || arm64)

package button

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// openLine requests the BCM GPIO as a pulled-up input with falling edge
// detection using the Linux GPIO character device.
func openLine(pin int, debounce time.Duration, onPress func(time.Time)) (io.Closer, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("invalid gpio pin %d", pin)
	}

	// On Pi, line names are commonly "GPIO17", etc.
	lineName := fmt.Sprintf("GPIO%d", pin)

	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type != gpiocdev.LineEventFallingEdge {
			return
		}
		onPress(time.Now())
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithPullUp,
			gpiocdev.WithFallingEdge,
			gpiocdev.WithDebounce(debounce),
			gpiocdev.WithEventHandler(handler),
			gpiocdev.WithConsumer("locaty-button"),
		)
		if err != nil {
			_ = chip.Close()
			continue
		}
		return &gpiodButton{chip: chip, line: line}, nil
	}

	return nil, fmt.Errorf("gpio line %q not found (or busy)", lineName)
}

type gpiodButton struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodButton) Close() error {
	if g == nil || g.line == nil {
		return nil
	}
	err := g.line.Close()
	g.line = nil
	if g.chip != nil {
		_ = g.chip.Close()
		g.chip = nil
	}
	return err
}
