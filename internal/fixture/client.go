package fixture

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// ControlEndpoint is the path of the fixture's control RPC API.
	ControlEndpoint = "/api/control"
	// StreamEndpoint is the path of the realtime audio stream API.
	StreamEndpoint = "/api/stream"

	// PageSamples is the number of samples per capture channel the
	// fixture packs into one stream page.
	PageSamples = 128

	apiKeyHeader = "loopback-api-key"
)

// StreamMode selects how the fixture behaves when the client falls behind.
type StreamMode string

const (
	// StreamBestEffort drops pages the client is too slow to consume.
	StreamBestEffort StreamMode = "best_effort"
	// StreamStopWhenOverflow aborts the stream instead of dropping, so
	// the page sequence stays gapless.
	StreamStopWhenOverflow StreamMode = "stop_when_overflow"
)

// InfoFrameKind names a metadata frame class the fixture can report.
type InfoFrameKind string

const (
	InfoFrameAudio InfoFrameKind = "audio"
	InfoFrameAVI   InfoFrameKind = "avi"
)

// ErrNoInfoFrame is returned by LastInfoFrame when the fixture has not
// received a frame of the requested kind.
var ErrNoInfoFrame = errors.New("fixture: no InfoFrame received")

// AudioFile references a recording kept on the fixture after a capture
// session ends.
type AudioFile struct {
	Path     string
	Rate     int
	Channels int
}

// RawInfoFrame is an undecoded metadata frame as received by the fixture.
type RawInfoFrame struct {
	Version int
	Payload []byte
}

// Client talks to the loopback fixture. The control connection is opened
// by Connect; the stream connection exists only between StreamStart and
// StreamStop. Methods must not be called concurrently with each other,
// matching the single orchestration loop that owns the client.
type Client struct {
	baseURL string
	apiKey  string

	mu      sync.Mutex
	control *websocket.Conn
	stream  *websocket.Conn
	nextID  int64
	closed  bool
}

// Connect dials the fixture's control endpoint.
func Connect(baseURL, apiKey string) (*Client, error) {
	c := &Client{baseURL: strings.TrimSuffix(baseURL, "/"), apiKey: apiKey}

	conn, _, err := websocket.DefaultDialer.Dial(c.baseURL+ControlEndpoint, c.header())
	if err != nil {
		return nil, fmt.Errorf("fixture: control dial failed: %w", err)
	}
	c.control = conn
	return c, nil
}

func (c *Client) header() http.Header {
	h := make(http.Header)
	if c.apiKey != "" {
		h.Set(apiKeyHeader, c.apiKey)
	}
	return h
}

func (c *Client) call(method string, params map[string]any) (*Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, websocket.ErrCloseSent
	}

	c.nextID++
	req := Request{Type: "Request", ID: c.nextID, Method: method, Params: params}
	data, err := msgpack.Marshal(&req)
	if err != nil {
		return nil, err
	}
	if err := c.control.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return nil, fmt.Errorf("fixture: %s: %w", method, err)
	}

	_, data, err = c.control.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("fixture: %s: %w", method, err)
	}
	var resp Response
	if err := msgpack.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("fixture: %s: bad response: %w", method, err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("fixture: %s: response id %d does not match request id %d",
			method, resp.ID, req.ID)
	}
	if resp.Error != "" {
		return &resp, fmt.Errorf("fixture: %s: %s", method, resp.Error)
	}
	return &resp, nil
}

// StartCapture tells the fixture to begin capturing audio on a port.
// analogOnly restricts capture to the analog path on fixtures that also
// decode the digital stream.
func (c *Client) StartCapture(port int, analogOnly bool) error {
	_, err := c.call("StartCapturingAudio", map[string]any{
		"port":        port,
		"analog_only": analogOnly,
	})
	return err
}

// StopCapture ends the capture session. The returned AudioFile references
// the fixture-side recording, if the fixture kept one.
func (c *Client) StopCapture(port int) (*AudioFile, error) {
	resp, err := c.call("StopCapturingAudio", map[string]any{"port": port})
	if err != nil {
		return nil, err
	}
	if resp.Path == "" {
		return nil, nil
	}
	return &AudioFile{Path: resp.Path, Rate: resp.Rate, Channels: resp.Channels}, nil
}

// AudioFormat reports the negotiated capture format. A zero rate means the
// fixture cannot report its capture rate; callers fall back to the
// playback rate. Only meaningful after playback has started.
func (c *Client) AudioFormat(port int) (rate, channels int, err error) {
	resp, err := c.call("GetAudioFormat", map[string]any{"port": port})
	if err != nil {
		return 0, 0, err
	}
	return resp.Rate, resp.Channels, nil
}

// ChannelMapping reports, for every capture channel, the playback channel
// it receives, or -1 for capture channels carrying no known source.
func (c *Client) ChannelMapping(port int) ([]int, error) {
	resp, err := c.call("GetAudioChannelMapping", map[string]any{"port": port})
	if err != nil {
		return nil, err
	}
	return resp.Mapping, nil
}

// SupportsInfoFrames reports whether this fixture can return received
// metadata frames. Older fixture firmware cannot.
func (c *Client) SupportsInfoFrames() bool {
	resp, err := c.call("HasInfoFrameSupport", nil)
	if err != nil {
		return false
	}
	return resp.Supported
}

// LastInfoFrame returns the most recent metadata frame of the given kind
// the fixture received, or ErrNoInfoFrame.
func (c *Client) LastInfoFrame(port int, kind InfoFrameKind) (*RawInfoFrame, error) {
	resp, err := c.call("GetLastInfoFrame", map[string]any{
		"port": port,
		"kind": string(kind),
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Payload) == 0 {
		return nil, ErrNoInfoFrame
	}
	return &RawInfoFrame{Version: resp.Version, Payload: resp.Payload}, nil
}

// StreamStart opens the realtime audio stream in the given mode.
func (c *Client) StreamStart(mode StreamMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stream != nil {
		return errors.New("fixture: stream already started")
	}

	conn, _, err := websocket.DefaultDialer.Dial(c.baseURL+StreamEndpoint, c.header())
	if err != nil {
		return fmt.Errorf("fixture: stream dial failed: %w", err)
	}

	open := StreamOpen{Type: "Stream", Mode: string(mode)}
	data, err := msgpack.Marshal(&open)
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		conn.Close()
		return fmt.Errorf("fixture: stream open failed: %w", err)
	}

	c.stream = conn
	return nil
}

// StreamReceive blocks until the next audio page arrives and returns its
// interleaved S32_LE samples.
func (c *Client) StreamReceive() ([]int32, error) {
	c.mu.Lock()
	conn := c.stream
	c.mu.Unlock()
	if conn == nil {
		return nil, errors.New("fixture: stream not started")
	}

	_, data, err := conn.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("fixture: stream receive failed: %w", err)
	}
	msg, err := DecodeStreamMessage(data)
	if err != nil {
		return nil, err
	}
	switch m := msg.(type) {
	case *Page:
		return m.Samples, nil
	case *StreamError:
		return nil, fmt.Errorf("fixture: stream error: %s", m.Message)
	default:
		return nil, errors.New("fixture: stream closed by fixture")
	}
}

// StreamStop closes the realtime audio stream, draining pages already in
// flight until the fixture acknowledges the stop.
func (c *Client) StreamStop() error {
	c.mu.Lock()
	conn := c.stream
	c.stream = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	defer conn.Close()

	data, err := msgpack.Marshal(&StreamClose{Type: "StopStream"})
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return fmt.Errorf("fixture: stream stop failed: %w", err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// The fixture may simply close instead of acknowledging.
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("fixture: stream stop failed: %w", err)
		}
		msg, err := DecodeStreamMessage(data)
		if err != nil {
			return err
		}
		if _, ok := msg.(*streamStopped); ok {
			return nil
		}
	}
}

// Close terminates the control connection and any open stream.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	stream := c.stream
	c.stream = nil
	c.mu.Unlock()

	if stream != nil {
		stream.Close()
	}

	_ = c.control.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
	)
	return c.control.Close()
}
