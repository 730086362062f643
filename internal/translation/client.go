package translation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
)

// wireClient is the long-lived WebSocket connection to the remote
// realtime translation API, one per PoolSession. Grounded directly on
// livetranslate/realtime/client.go's Connect/Send/readLoop shape,
// generalised from a hardcoded OpenAI URL to an arbitrary endpoint and
// source/target language pair.
type wireClient struct {
	url    string
	apiKey string

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool

	msgChan chan Event
	errChan chan error
	done    chan struct{}
}

// newWireClient constructs an unconnected client for url.
func newWireClient(url, apiKey string) *wireClient {
	return &wireClient{
		url:     url,
		apiKey:  apiKey,
		msgChan: make(chan Event, 64),
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}
}

// connect dials the remote endpoint and starts the background read loop.
func (c *wireClient) connect(ctx context.Context) error {
	opts := &websocket.DialOptions{
		HTTPHeader: map[string][]string{
			"Authorization": {"Bearer " + c.apiKey},
		},
	}

	conn, _, err := websocket.Dial(ctx, c.url, opts)
	if err != nil {
		return fmt.Errorf("translation: websocket dial: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop()
	return nil
}

// send marshals and writes event to the wire.
func (c *wireClient) send(ctx context.Context, event any) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return fmt.Errorf("translation: not connected")
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("translation: marshal event: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

// messages returns the channel of decoded server events. Closed when
// the connection ends.
func (c *wireClient) messages() <-chan Event { return c.msgChan }

// errors returns the channel carrying the terminal read error, if any.
func (c *wireClient) errors() <-chan error { return c.errChan }

// close tears down the connection; safe to call more than once.
func (c *wireClient) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)

	if c.conn != nil {
		return c.conn.Close(websocket.StatusNormalClosure, "closing")
	}
	return nil
}

func (c *wireClient) readLoop() {
	defer close(c.msgChan)

	ctx := context.Background()
	for {
		select {
		case <-c.done:
			return
		default:
		}

		_, data, err := c.conn.Read(ctx)
		if err != nil {
			select {
			case c.errChan <- fmt.Errorf("translation: read: %w", err):
			default:
			}
			return
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			continue
		}
		select {
		case c.msgChan <- event:
		case <-c.done:
			return
		}
	}
}
