// Package webui serves the dashboard's HTTP surface: the live update stream
// (SSE and WebSocket), the plain data endpoint, simulated updates, health
// and metrics.
// This file contains the stream message types and their wire encoding.
package webui

import (
	"encoding/json"
	"fmt"
	"io"
)

// Message types sent on a stream besides the category names themselves.
const (
	// MessageTypeConnected is the first message of every live stream.
	MessageTypeConnected = "connected"

	// MessageTypeStatic tells the client the category has no live updates.
	// The stream ends right after it.
	MessageTypeStatic = "static"

	// MessageTypeError reports a failed store read. The stream continues.
	MessageTypeError = "error"

	// MessageTypeLastUpdated carries the global LastUpdated timestamp.
	MessageTypeLastUpdated = "lastUpdated"
)

// LastUpdatedChannel is the stream channel that carries only timestamps.
const LastUpdatedChannel = MessageTypeLastUpdated

// fetchErrorMessage is the client-facing text of an error message.
const fetchErrorMessage = "Error fetching updates"

// StreamMessage is the envelope of every stream message.
//
// Snapshot messages use the category wire name as Type and the snapshot as
// Data; errors carry Message instead of Data.
type StreamMessage struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	Message  string          `json:"message,omitempty"`
	Category string          `json:"category,omitempty"`
}

// NewConnectedMessage creates the connection acknowledgement.
func NewConnectedMessage() StreamMessage {
	return StreamMessage{Type: MessageTypeConnected}
}

// NewStaticMessage tells the client that channel is not streamed.
func NewStaticMessage(channel string) StreamMessage {
	return StreamMessage{Type: MessageTypeStatic, Category: channel}
}

// NewErrorMessage creates a non-fatal error message.
func NewErrorMessage(message string) StreamMessage {
	return StreamMessage{Type: MessageTypeError, Message: message}
}

// NewSnapshotMessage wraps an already encoded snapshot of channel.
func NewSnapshotMessage(channel, snapshotJSON string) StreamMessage {
	return StreamMessage{Type: channel, Data: json.RawMessage(snapshotJSON)}
}

// NewLastUpdatedMessage wraps a LastUpdated timestamp.
func NewLastUpdatedMessage(timestamp string) StreamMessage {
	data, _ := json.Marshal(timestamp)
	return StreamMessage{Type: MessageTypeLastUpdated, Data: data}
}

// writeSSE writes msg as one server-sent event: "data: <json>\n\n".
func writeSSE(w io.Writer, msg StreamMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
		return err
	}
	return nil
}

// sseKeepAlive is the comment line written on every poll tick.
const sseKeepAlive = ": keep-alive\n\n"
