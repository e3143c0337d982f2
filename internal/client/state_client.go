// Package client talks to the state server.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"vehicle-hud/internal/server"
)

var ErrUnexpectedReply = errors.New("unexpected reply")

// StateClient sends one request at a time over a single connection.
type StateClient struct {
	conn    net.Conn
	reader  *bufio.Reader
	timeout time.Duration
}

// Dial connects to addr (host:port). timeout bounds every request.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*StateClient, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial state server: %w", err)
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &StateClient{conn: conn, reader: bufio.NewReader(conn), timeout: timeout}, nil
}

func (c *StateClient) roundTrip(cmd string) (string, error) {
	if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return "", err
	}
	if _, err := c.conn.Write([]byte(cmd + "\n")); err != nil {
		return "", fmt.Errorf("send %s: %w", cmd, err)
	}
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read %s reply: %w", cmd, err)
	}
	line = strings.TrimRight(line, "\r\n")
	if msg, ok := strings.CutPrefix(line, "ERR "); ok {
		return "", fmt.Errorf("server: %s", msg)
	}
	return line, nil
}

func (c *StateClient) Ping() error {
	reply, err := c.roundTrip("PING")
	if err != nil {
		return err
	}
	if reply != "PONG" {
		return fmt.Errorf("%w to PING: %q", ErrUnexpectedReply, reply)
	}
	return nil
}

func (c *StateClient) State() (server.StateReply, error) {
	var out server.StateReply
	reply, err := c.roundTrip("STATE")
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(reply), &out); err != nil {
		return out, fmt.Errorf("%w to STATE: %v", ErrUnexpectedReply, err)
	}
	return out, nil
}

// Raw sends an arbitrary command and returns the reply line.
func (c *StateClient) Raw(cmd string) (string, error) {
	return c.roundTrip(cmd)
}

func (c *StateClient) Close() error {
	return c.conn.Close()
}
