// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge forwards XBee data to MQTT and MQTT messages to XBee
// devices.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Thermoquad/xbeestat/pkg/link"
	"github.com/Thermoquad/xbeestat/pkg/xbee"
)

// Broker is the MQTT side of the bridge. *Client implements it.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
}

// Radio is the XBee side of the bridge. *link.Conn implements it.
type Radio interface {
	AddDataListener(fn link.DataListener) link.ListenerID
	RemoveDataListener(id link.ListenerID) bool
	AddStatusListener(fn link.FrameListener) link.ListenerID
	RemoveStatusListener(id link.ListenerID) bool
	SendDataTo(ctx context.Context, addr64 xbee.Address64, addr16 xbee.MaybeAddress16, data []byte) error
	SendBroadcastData(ctx context.Context, data []byte) error
}

// Message is the JSON published for received data.
type Message struct {
	Addr64    string    `json:"addr64"`
	Addr16    string    `json:"addr16,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Broadcast bool      `json:"broadcast"`
	Data      []byte    `json:"data"`
	Text      string    `json:"text,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// TransmitRequest is the JSON accepted on transmit topics. A payload that
// is not a JSON object is sent as-is.
type TransmitRequest struct {
	Data   []byte `json:"data,omitempty"`
	Text   string `json:"text,omitempty"`
	Addr16 string `json:"addr16,omitempty"`
}

// ModemEvent is the JSON published for modem status frames.
type ModemEvent struct {
	Code      uint8     `json:"code"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// Bridge connects a Radio to a Broker.
type Bridge struct {
	radio   Radio
	broker  Broker
	topics  Topics
	qos     byte
	timeout time.Duration
	logger  *slog.Logger

	dataID   link.ListenerID
	statusID link.ListenerID
}

// New creates a bridge. Call Start to begin forwarding.
func New(radio Radio, broker Broker, prefix string, qos byte, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Bridge{
		radio:   radio,
		broker:  broker,
		topics:  NewTopics(prefix),
		qos:     qos,
		timeout: 10 * time.Second,
		logger:  logger,
	}
}

// Topics returns the bridge's topic helpers.
func (b *Bridge) Topics() Topics {
	return b.topics
}

// Start subscribes to transmit topics and registers the radio listeners.
func (b *Bridge) Start() error {
	if err := b.broker.Subscribe(b.topics.TransmitWildcard(), b.qos, b.handleTransmit); err != nil {
		return err
	}
	b.dataID = b.radio.AddDataListener(b.handleData)
	b.statusID = b.radio.AddStatusListener(b.handleStatus)
	return nil
}

// Stop removes the radio listeners.
func (b *Bridge) Stop() {
	b.radio.RemoveDataListener(b.dataID)
	b.radio.RemoveStatusListener(b.statusID)
}

func (b *Bridge) handleData(m *link.XBeeMessage) error {
	dev := m.Device()
	data := m.Data()
	msg := Message{
		Addr64:    dev.Addr64().String(),
		NodeID:    dev.NodeID(),
		Broadcast: m.IsBroadcast(),
		Data:      data,
		Timestamp: m.Timestamp(),
	}
	if a16, ok := dev.Addr16().Get(); ok {
		msg.Addr16 = a16.String()
	}
	if isPrintable(data) {
		msg.Text = string(data)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.broker.Publish(b.topics.Receive(dev.Addr64()), payload, b.qos, false)
}

func (b *Bridge) handleStatus(f *xbee.Frame) error {
	if f.Type() != xbee.FrameModemStatus {
		return nil
	}
	s, err := xbee.ParseModemStatus(f)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(ModemEvent{Code: uint8(s), Status: s.String(), Timestamp: f.Timestamp()})
	if err != nil {
		return err
	}
	return b.broker.Publish(b.topics.Modem(), payload, b.qos, false)
}

func (b *Bridge) handleTransmit(topic string, payload []byte) error {
	addr, broadcast, err := b.topics.ParseTransmit(topic)
	if err != nil {
		return err
	}
	data, addr16, err := decodeTransmit(payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if broadcast {
		err = b.radio.SendBroadcastData(ctx, data)
	} else {
		err = b.radio.SendDataTo(ctx, addr, addr16, data)
	}
	if err != nil {
		return fmt.Errorf("forwarding %s: %w", topic, err)
	}
	b.logger.Debug("forwarded mqtt message", "topic", topic, "bytes", len(data))
	return nil
}

func decodeTransmit(payload []byte) ([]byte, xbee.MaybeAddress16, error) {
	var req TransmitRequest
	if len(payload) == 0 || payload[0] != '{' || json.Unmarshal(payload, &req) != nil {
		return payload, xbee.No16(), nil
	}

	data := req.Data
	if data == nil {
		data = []byte(req.Text)
	}
	addr16 := xbee.No16()
	if req.Addr16 != "" {
		a, err := xbee.ParseAddress16(req.Addr16)
		if err != nil {
			return nil, addr16, err
		}
		addr16 = xbee.Some16(a)
	}
	return data, addr16, nil
}

func statusPayload(online bool, clientID string, ts time.Time) []byte {
	status := "offline"
	if online {
		status = "online"
	}
	payload, _ := json.Marshal(map[string]string{
		"status":    status,
		"client_id": clientID,
		"timestamp": ts.UTC().Format(time.RFC3339),
	})
	return payload
}

func isPrintable(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, c := range b {
		if (c < 0x20 || c > 0x7E) && c != '\n' && c != '\r' && c != '\t' {
			return false
		}
	}
	return true
}
