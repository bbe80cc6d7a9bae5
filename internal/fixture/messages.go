// Package fixture implements the client for the loopback capture fixture:
// a msgpack-over-websocket control channel plus a realtime audio page
// stream delivering interleaved S32_LE samples.
package fixture

import (
	"github.com/vmihailenco/msgpack/v5"
)

// Request is a control call sent to the fixture.
type Request struct {
	Type   string         `msgpack:"type"`
	ID     int64          `msgpack:"id"`
	Method string         `msgpack:"method"`
	Params map[string]any `msgpack:"params,omitempty"`
}

// Response answers one Request. Only the fields relevant to the invoked
// method are populated.
type Response struct {
	Type      string `msgpack:"type"`
	ID        int64  `msgpack:"id"`
	Error     string `msgpack:"error,omitempty"`
	Rate      int    `msgpack:"rate,omitempty"`
	Channels  int    `msgpack:"channels,omitempty"`
	Mapping   []int  `msgpack:"mapping,omitempty"`
	Path      string `msgpack:"path,omitempty"`
	Supported bool   `msgpack:"supported,omitempty"`
	Version   int    `msgpack:"version,omitempty"`
	Payload   []byte `msgpack:"payload,omitempty"`
}

// StreamOpen starts the realtime audio stream; sent first on the stream
// socket.
type StreamOpen struct {
	Type string `msgpack:"type"` // "Stream"
	Mode string `msgpack:"mode"`
}

// Page carries one chunk of captured audio. Count is the cumulative page
// counter on the fixture side; Samples holds interleaved S32_LE samples,
// a fixed number per capture channel.
type Page struct {
	Type    string  `msgpack:"type"` // "Page"
	Count   int64   `msgpack:"count"`
	Samples []int32 `msgpack:"samples"`
}

// StreamError reports a fixture-side stream failure.
type StreamError struct {
	Type    string `msgpack:"type"` // "Error"
	Message string `msgpack:"message"`
}

// StreamClose asks the fixture to stop streaming; the fixture answers with
// a "Stopped" message.
type StreamClose struct {
	Type string `msgpack:"type"` // "StopStream"
}

// StreamMessage is implemented by everything the stream socket delivers.
type StreamMessage interface {
	streamMessage()
}

func (*Page) streamMessage()        {}
func (*StreamError) streamMessage() {}

type streamStopped struct{}

func (*streamStopped) streamMessage() {}

// DecodeStreamMessage decodes one message received on the stream socket.
func DecodeStreamMessage(data []byte) (StreamMessage, error) {
	var header struct {
		Type string `msgpack:"type"`
	}
	if err := msgpack.Unmarshal(data, &header); err != nil {
		return nil, err
	}

	switch header.Type {
	case "Page":
		var p Page
		if err := msgpack.Unmarshal(data, &p); err != nil {
			return nil, err
		}
		return &p, nil
	case "Error":
		var e StreamError
		if err := msgpack.Unmarshal(data, &e); err != nil {
			return nil, err
		}
		return &e, nil
	case "Stopped":
		return &streamStopped{}, nil
	default:
		return nil, &UnknownMessageError{TypeName: header.Type}
	}
}

// UnknownMessageError reports a stream message type this client does not
// understand.
type UnknownMessageError struct {
	TypeName string
}

func (e *UnknownMessageError) Error() string {
	return "unknown stream message type " + e.TypeName
}
