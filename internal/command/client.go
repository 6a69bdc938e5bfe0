// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

import (
	"fmt"
	"net"
	"time"
)

// Client dials the local command socket and performs a single
// request/response exchange; it implements LocalSender for the
// Router and is also what the CLI entrypoint uses directly.
type Client struct {
	Host    string
	Port    int
	Timeout time.Duration
}

// Send delivers envelope to the receiver and returns its response
// envelope.
func (c *Client) Send(envelope string) (string, error) {
	addr := fmt.Sprintf("%s:%d", c.Host, c.Port)
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	if err := writeFrame(conn, []byte(envelope)); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}

	frame, err := readFrame(conn)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	return string(frame), nil
}
