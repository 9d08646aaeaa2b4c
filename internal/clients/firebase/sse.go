package firebase

import (
	"io"

	sse "github.com/tmaxmax/go-sse"
)

// maxEventSize bounds a single event; initial put events carry the whole
// collection.
const maxEventSize = 16 << 20

type event struct {
	name string
	data string
}

// readEvents calls handle for each event in a text/event-stream body until
// handle returns false or the stream ends. A clean end of stream returns
// io.EOF.
func readEvents(r io.Reader, handle func(event) bool) error {
	for ev, err := range sse.Read(r, &sse.ReadConfig{MaxEventSize: maxEventSize}) {
		if err != nil {
			return err
		}
		name := ev.Type
		if name == "" {
			name = "message"
		}
		if !handle(event{name: name, data: ev.Data}) {
			return nil
		}
	}
	return io.EOF
}
