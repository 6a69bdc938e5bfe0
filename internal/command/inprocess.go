// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package command

// InProcessSender implements LocalSender by dispatching directly
// against a Registry instead of dialing the TCP command socket. The
// Broker Listener needs this: spec §4.5's "forwards locally" step for
// a broker-delivered command does not depend on whether the local TCP
// receiver is enabled, only on whether a Registry exists to dispatch
// against — unlike the CLI/HTTP paths, which genuinely exercise the
// wire protocol by dialing the Receiver.
type InProcessSender struct {
	Serializer Serializer
	Registry   *Registry
}

// Send unserializes envelope, dispatches it against the Registry, and
// reserializes the response, mirroring what Receiver.handle does over
// a socket connection.
func (s *InProcessSender) Send(envelope string) (string, error) {
	decoded, err := s.Serializer.Unserialize(envelope)
	if err != nil {
		return "", err
	}
	resp := s.Registry.Dispatch(FromEnvelope(decoded))
	return s.Serializer.Serialize(resp.ToEnvelope())
}
