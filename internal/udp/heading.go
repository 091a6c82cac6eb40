package udp

import (
	"context"
	"encoding/json"
	"log"

	"locaty/internal/heading"
)

// Datagram is the JSON body sent for each result.
type Datagram struct {
	AngleDeg    float64 `json:"angle_deg"`
	Direction   string  `json:"direction"`
	Available   bool    `json:"available"`
	RotationDeg float64 `json:"rotation_deg"`
}

func Payload(res heading.Result) ([]byte, error) {
	return json.Marshal(Datagram{
		AngleDeg:    res.Angle,
		Direction:   string(res.Direction),
		Available:   res.Available,
		RotationDeg: res.Rotation(),
	})
}

type resultSource interface {
	Subscribe(buffer int) (int, <-chan heading.Result)
	Unsubscribe(id int)
}

type sender interface {
	Send(payload []byte) error
}

// Forward sends every published result until ctx is done or the
// subscription is closed.
func Forward(ctx context.Context, src resultSource, out sender) {
	id, ch := src.Subscribe(8)
	defer src.Unsubscribe(id)

	var sendErrs uint64
	for {
		select {
		case <-ctx.Done():
			return
		case res, ok := <-ch:
			if !ok {
				return
			}
			b, err := Payload(res)
			if err != nil {
				log.Printf("udp: encode: %v", err)
				continue
			}
			if err := out.Send(b); err != nil {
				sendErrs++
				// Unreachable receivers fail on every result.
				if sendErrs <= 3 {
					log.Printf("udp: send: %v", err)
				}
			}
		}
	}
}
