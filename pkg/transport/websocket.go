// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = errors.New("websocket connection closed")

// WebSocket timing
const (
	HandshakeTimeout = 10 * time.Second
	DialTimeout      = 15 * time.Second
	closeGrace       = time.Second
)

// WebSocketConfig describes a WebSocket bridge to a remote serial port.
type WebSocketConfig struct {
	URL           string
	Username      string
	Password      string
	SkipTLSVerify bool
}

// WebSocket carries the module's byte stream in binary WebSocket messages.
type WebSocket struct {
	conn *websocket.Conn
	url  string

	// Read side, used by a single reader
	buf       []byte
	bufOffset int

	writeMu sync.Mutex
	closed  atomic.Bool
}

// OpenWebSocket dials the bridge with optional HTTP Basic auth.
func OpenWebSocket(ctx context.Context, cfg WebSocketConfig) (*WebSocket, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: HandshakeTimeout,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: cfg.SkipTLSVerify,
		}
	}

	headers := http.Header{}
	if cfg.Username != "" && cfg.Password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(ctx, DialTimeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, cfg.URL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}

	return &WebSocket{conn: conn, url: cfg.URL}, nil
}

func (w *WebSocket) Read(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, ErrConnectionClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			// A failed gorilla connection cannot be read again
			w.closed.Store(true)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, ErrConnectionClosed
			}
			return 0, err
		}

		// The module's byte stream only travels in binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocket) Write(p []byte) (int, error) {
	if w.closed.Load() {
		return 0, ErrConnectionClosed
	}
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a close message and closes the connection.
func (w *WebSocket) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	w.writeMu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = w.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace))
	w.writeMu.Unlock()
	return w.conn.Close()
}

// IsOpen reports whether the connection is still usable.
func (w *WebSocket) IsOpen() bool {
	return !w.closed.Load()
}

// String describes the connection for display.
func (w *WebSocket) String() string {
	return "WebSocket: " + w.url
}
