package main

import (
	"time"

	"github.com/cyberinferno/wsbridge/bridge"
)

// echoProtocol is the demonstration pipeline: every inbound message is sent
// straight back to the client. It honors the delay-between-messages and
// binary-only tuning values.
type echoProtocol struct {
	outgoing bridge.OutgoingFunc
	delay    time.Duration
	binary   bool
}

func echoFactory(seed uint32, params bridge.ProtocolParams, outgoing bridge.OutgoingFunc) (bridge.Protocol, error) {
	return &echoProtocol{
		outgoing: outgoing,
		delay:    params.DelayBetweenMessages,
		binary:   params.BinaryOnly,
	}, nil
}

func (p *echoProtocol) Incoming(msg string) error {
	if p.delay > 0 {
		time.Sleep(p.delay)
	}

	if p.binary {
		return p.outgoing(bridge.Binary(msg))
	}

	return p.outgoing(msg)
}

func (p *echoProtocol) Finish() {}
