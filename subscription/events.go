package subscription

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// maxEventSize bounds a single event line.
const maxEventSize = 1 << 20

// Event types sent by the streaming endpoint besides the category itself.
const (
	eventConnected   = "connected"
	eventLastUpdated = "lastUpdated"
	eventError       = "error"
	eventStatic      = "static"
)

// eventSnapshot is what handleEvent reports for the category's own event.
const eventSnapshot = "snapshot"

// event is one decoded stream message.
type event struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// readEvents parses a text/event-stream body and calls fn with the data of
// each complete event. Comments and fields other than data are ignored; an
// event cut off by the end of the body is discarded. fn must not retain
// its argument.
func readEvents(r io.Reader, fn func(data []byte)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxEventSize)

	var data []byte
	hasData := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			if hasData {
				fn(data)
			}
			data = data[:0]
			hasData = false
			continue
		}
		if line[0] == ':' {
			continue
		}

		field, value, _ := bytes.Cut(line, []byte(":"))
		if string(field) != "data" {
			continue
		}
		value = bytes.TrimPrefix(value, []byte(" "))
		if hasData {
			data = append(data, '\n')
		}
		data = append(data, value...)
		hasData = true
	}
	return scanner.Err()
}
