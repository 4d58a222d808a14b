// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newQuietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func waitForClients(t *testing.T, hub *WSHub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if hub.ClientCount() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("client count = %d, want %d", hub.ClientCount(), want)
}

func TestWSHubBroadcastDropsStalledClients(t *testing.T) {
	hub := NewWSHub(newQuietLogger())
	go hub.Run()

	healthy := &WSClient{send: make(chan []byte, 4), hub: hub}
	stalled := &WSClient{send: make(chan []byte), hub: hub} // no buffer, no reader
	hub.register <- healthy
	hub.register <- stalled
	waitForClients(t, hub, 2)

	hub.BroadcastEvent(map[string]string{"event": "fetch_done"})

	select {
	case raw := <-healthy.send:
		var msg WSMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("decode broadcast: %v", err)
		}
		if msg.Type != "event" {
			t.Errorf("message type = %q, want event", msg.Type)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("healthy client never received the broadcast")
	}

	// The stalled client must be dropped rather than block the hub, and the
	// count read here goes through the same mutex the broadcast loop holds.
	waitForClients(t, hub, 1)
}

func TestWSHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewWSHub(newQuietLogger())
	go hub.Run()

	client := &WSClient{send: make(chan []byte, 1), hub: hub}
	hub.register <- client
	waitForClients(t, hub, 1)

	hub.unregister <- client
	waitForClients(t, hub, 0)

	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("send channel delivered a message after unregister")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("send channel not closed after unregister")
	}
}
