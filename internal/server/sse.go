package server

import (
	"bufio"
	"encoding/json"
	"fmt"
)

// sseEvent è un evento Server-Sent Events
type sseEvent struct {
	ID    string
	Event string
	Data  any
}

// write serializza l'evento nel formato text/event-stream e fa flush
func (e sseEvent) write(w *bufio.Writer) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return err
	}

	if e.ID != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", e.ID); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Event, data); err != nil {
		return err
	}
	return w.Flush()
}
