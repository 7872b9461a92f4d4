package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"

	"github.com/google/uuid"
)

// Client is a single-shot connection to a control server, suitable for
// synkctl's one-command-per-invocation usage.
type Client struct {
	conn net.Conn
	rw   *bufio.ReadWriter
}

// Dial connects to a daemon's control socket.
func Dial(socketPath string) (*Client, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	return &Client{
		conn: conn,
		rw:   bufio.NewReadWriter(bufio.NewReader(conn), bufio.NewWriter(conn)),
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

// Send writes req and reads back exactly one Response line.
func (c *Client) Send(req Request) (Response, error) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	line, err := marshalLine(req)
	if err != nil {
		return Response{}, err
	}
	if _, err := c.rw.Write(line); err != nil {
		return Response{}, err
	}
	if err := c.rw.Flush(); err != nil {
		return Response{}, err
	}

	respLine, err := c.rw.ReadBytes('\n')
	if err != nil {
		return Response{}, err
	}

	var resp Response
	if err := json.Unmarshal(respLine, &resp); err != nil {
		return Response{}, fmt.Errorf("malformed response: %w", err)
	}
	if resp.Error != "" {
		return resp, fmt.Errorf("%s", resp.Error)
	}
	return resp, nil
}
