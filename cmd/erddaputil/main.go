// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// erddaputil is a thin command-line client: it builds a single
// Command from its flags, sends it to the locally running
// erddaputild over the loopback socket, and prints the response.
// Concrete authentication/authorization is out of scope for this
// client; it is carried only so the module ships a usable CLI entry
// point alongside the daemon.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dfo-meds/erddaputil/internal/command"
	"github.com/dfo-meds/erddaputil/internal/config"
	"github.com/dfo-meds/erddaputil/internal/serializer"
)

var validCommands = []string{
	"reload_dataset",
	"reload_all_datasets",
	"set_active_flag",
	"update_email_block_list",
	"update_ip_block_list",
	"update_allow_unlimited_list",
	"clear_cache",
	"compile_datasets",
	"flush",
	"list_datasets",
}

func main() {
	var (
		flagHost      string
		flagPort      int
		flagArgs      string
		flagBroadcast int
		flagTimeout   time.Duration
	)

	flag.StringVar(&flagHost, "host", "127.0.0.1", "Receiver host to connect to")
	flag.IntVar(&flagPort, "port", 0, "Receiver port to connect to (defaults to the configured receiver port)")
	flag.StringVar(&flagArgs, "args", "{}", "JSON object of keyword arguments for the command")
	flag.IntVar(&flagBroadcast, "broadcast", 0, "Broadcast scope: 0=none, 1=cluster, 2=global")
	flag.DurationVar(&flagTimeout, "timeout", 10*time.Second, "Socket read/write timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: erddaputil [flags] <command>\nvalid commands: %s\n",
			strings.Join(validCommands, ", "))
		os.Exit(2)
	}
	name := flag.Arg(0)
	if !isValidCommand(name) {
		fmt.Fprintf(os.Stderr, "erddaputil: unknown command %q\nvalid commands: %s\n",
			name, strings.Join(validCommands, ", "))
		os.Exit(2)
	}

	var kwargs map[string]interface{}
	if err := json.Unmarshal([]byte(flagArgs), &kwargs); err != nil {
		fmt.Fprintf(os.Stderr, "erddaputil: -args must be a JSON object: %v\n", err)
		os.Exit(2)
	}

	if err := config.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "erddaputil: loading config: %v\n", err)
		os.Exit(1)
	}

	port := flagPort
	if port == 0 {
		port = config.Keys.Receiver.Port
	}

	scope := command.BroadcastScope(flagBroadcast)
	cmd := command.New(name, nil, kwargs, scope)

	sc := serializer.New(config.Keys.SecretKey)
	envelope, err := sc.Serialize(cmd.ToEnvelope())
	if err != nil {
		fmt.Fprintf(os.Stderr, "erddaputil: %v\n", err)
		os.Exit(1)
	}

	client := &command.Client{Host: flagHost, Port: port, Timeout: flagTimeout}
	respEnvelopeStr, err := client.Send(envelope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "erddaputil: %v\n", err)
		os.Exit(1)
	}

	respEnvelope, err := sc.Unserialize(respEnvelopeStr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "erddaputil: invalid response signature: %v\n", err)
		os.Exit(1)
	}
	resp := command.ResponseFromEnvelope(respEnvelope)

	out, err := json.MarshalIndent(map[string]interface{}{
		"success": resp.State == command.StateSuccess,
		"message": resp.Message,
	}, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "erddaputil: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(out))

	if resp.State != command.StateSuccess {
		os.Exit(1)
	}
}

func isValidCommand(name string) bool {
	for _, c := range validCommands {
		if c == name {
			return true
		}
	}
	return false
}
