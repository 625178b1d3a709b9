package fdxd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// RPCError is a protocol-level failure returned by the daemon.
type RPCError struct {
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Client is a synchronous JSONL client for the daemon. Safe for
// concurrent use; calls are serialized over the single connection.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	sc     *bufio.Scanner
	nextID atomic.Int64
}

func Dial(addr string, timeout time.Duration) (*Client, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("address is required")
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	return &Client{conn: conn, sc: newLineScanner(conn)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// Call invokes a method and decodes the result into out (ignored when
// out is nil).
func (c *Client) Call(method string, params any, out any) error {
	if c == nil || c.conn == nil {
		return fmt.Errorf("client is not connected")
	}

	id := c.nextID.Add(1)
	rawID := json.RawMessage(fmt.Sprintf("%d", id))
	req := Request{JSONRPC: ProtocolVersion, ID: &rawID, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return err
		}
		req.Params = raw
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := writeLine(c.conn, req); err != nil {
		return err
	}

	if !c.sc.Scan() {
		if err := c.sc.Err(); err != nil {
			return err
		}
		return fmt.Errorf("connection closed")
	}

	var resp Response
	if err := json.Unmarshal(c.sc.Bytes(), &resp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.Error != nil {
		return &RPCError{Code: resp.Error.Code, Message: resp.Error.Message}
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
