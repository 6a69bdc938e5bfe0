// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/dfo-meds/erddaputil/pkg/log"
)

// eot is the end-of-transmission byte that terminates every envelope
// on the wire, per spec §4.4/§6: "envelope bytes followed by a single
// 0x04 byte".
const eot = 0x04

// Receiver is the length-delimited TCP server that terminates the
// local command socket: accept, read until EOT (with a timeout),
// dispatch via the Registry, write the response and EOT, close. One
// request per connection.
type Receiver struct {
	Serializer  Serializer
	Registry    *Registry
	Host        string
	Port        int
	Backlog     int
	ReadTimeout time.Duration

	listener net.Listener
}

// DefaultReadTimeout matches spec §5's stated default.
const DefaultReadTimeout = 5 * time.Second

// ListenAndServe binds the configured address and serves connections
// until halt is closed or Close is called. It returns once the
// listener is torn down.
func (r *Receiver) ListenAndServe(halt <-chan struct{}) error {
	addr := fmt.Sprintf("%s:%d", r.Host, r.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("receiver listen on %s: %w", addr, err)
	}
	r.listener = ln
	log.Infof("command receiver listening at %s", addr)

	go func() {
		<-halt
		ln.Close()
	}()

	timeout := r.ReadTimeout
	if timeout <= 0 {
		timeout = DefaultReadTimeout
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-halt:
				return nil
			default:
				log.Warnf("command receiver accept error: %v", err)
				continue
			}
		}
		go r.handle(conn, timeout)
	}
}

// Close stops accepting new connections.
func (r *Receiver) Close() error {
	if r.listener != nil {
		return r.listener.Close()
	}
	return nil
}

func (r *Receiver) handle(conn net.Conn, timeout time.Duration) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		log.Warnf("command receiver: set read deadline: %v", err)
	}

	frame, err := readFrame(conn)
	var resp *CommandResponse
	if err != nil {
		resp = Error(fmt.Sprintf("malformed request: %v", err), "")
	} else {
		env, uerr := r.Serializer.Unserialize(string(frame))
		if uerr != nil {
			resp = Error(fmt.Sprintf("integrity error: %v", uerr), "")
		} else {
			cmd := FromEnvelope(env)
			resp = r.Registry.Dispatch(cmd)
		}
	}

	respEnv, serr := r.Serializer.Serialize(resp.ToEnvelope())
	if serr != nil {
		log.Warnf("command receiver: serialize response: %v", serr)
		return
	}

	if err := writeFrame(conn, []byte(respEnv)); err != nil {
		log.Warnf("command receiver: write response: %v", err)
	}
}

// readFrame reads bytes from conn until it sees the EOT byte, returning
// everything before it.
func readFrame(conn net.Conn) ([]byte, error) {
	reader := bufio.NewReader(conn)
	frame, err := reader.ReadBytes(eot)
	if err != nil {
		return nil, err
	}
	return frame[:len(frame)-1], nil
}

// writeFrame writes payload followed by the EOT byte.
func writeFrame(conn net.Conn, payload []byte) error {
	buf := make([]byte, 0, len(payload)+1)
	buf = append(buf, payload...)
	buf = append(buf, eot)
	_, err := conn.Write(buf)
	return err
}
