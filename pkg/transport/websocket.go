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
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Marker flag in the software framing
const wsMarkerFlag = 0x01

// WebSocket carries the bus over a websocket bridge. A websocket has no
// marker bit, so each bus byte travels as a pair [flags, byte] inside
// binary messages; bit 0 of flags is the marker. Sent pairs are buffered
// until Drain, which writes them as one message.
type WebSocket struct {
	conn   *websocket.Conn
	rx     []byte
	rxOff  int
	tx     []byte
	closed atomic.Bool
}

// NewWebSocket wraps an established websocket connection.
func NewWebSocket(conn *websocket.Conn) *WebSocket {
	return &WebSocket{conn: conn}
}

// DialWebSocket connects to a bus bridge, with HTTP Basic auth when a
// username and password are given.
func DialWebSocket(wsURL, username, password string, skipSSLVerify bool) (*WebSocket, error) {
	// Parse and validate URL
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
		// OK
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return NewWebSocket(conn), nil
}

// Receive implements com2bus.Transport.
func (w *WebSocket) Receive() (byte, bool, error) {
	for w.rxOff+2 > len(w.rx) {
		if w.closed.Load() {
			return 0, false, ErrClosed
		}
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			if w.closed.Load() || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, false, ErrClosed
			}
			return 0, false, err
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if len(data)%2 != 0 {
			return 0, false, fmt.Errorf("%w: odd length %d", ErrMalformed, len(data))
		}
		w.rx, w.rxOff = data, 0
	}

	flags, b := w.rx[w.rxOff], w.rx[w.rxOff+1]
	w.rxOff += 2
	return b, flags&wsMarkerFlag != 0, nil
}

// Send implements com2bus.Transport.
func (w *WebSocket) Send(b byte, marker bool) error {
	if w.closed.Load() {
		return ErrClosed
	}
	var flags byte
	if marker {
		flags |= wsMarkerFlag
	}
	w.tx = append(w.tx, flags, b)
	return nil
}

// Drain implements com2bus.Transport by flushing buffered pairs.
func (w *WebSocket) Drain() error {
	if w.closed.Load() {
		return ErrClosed
	}
	if len(w.tx) == 0 {
		return nil
	}
	err := w.conn.WriteMessage(websocket.BinaryMessage, w.tx)
	w.tx = w.tx[:0]
	if errors.Is(err, websocket.ErrCloseSent) {
		return ErrClosed
	}
	return err
}

// Close closes the connection.
func (w *WebSocket) Close() error {
	if w.closed.Swap(true) {
		return nil
	}
	return w.conn.Close()
}
