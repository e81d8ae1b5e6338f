// Package wstransport carries replica messages over websockets: a Server
// fanning out to subscriber connections and a Conn dialed by each
// subscriber. Frames are binary messages holding replica.EncodeMessage
// output; empty frames are pings.
package wstransport

import "time"

// SubscriberParam is the query parameter naming the connecting subscriber.
const SubscriberParam = "subscriber"

// Settings holds websocket timeouts and buffer sizes.
type Settings struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	// PingTimeout is the idle time after which a ping frame is written.
	PingTimeout time.Duration
	// SendBufferSize is the number of frames queued per connection before
	// sends are dropped.
	SendBufferSize int
}

// DefaultSettings returns settings suited to an interactive session.
func DefaultSettings() *Settings {
	return &Settings{
		HandshakeTimeout: 2 * time.Second,
		WriteTimeout:     5 * time.Second,
		ReadTimeout:      15 * time.Second,
		PingTimeout:      1 * time.Second,
		SendBufferSize:   256,
	}
}

func (s *Settings) orDefault() *Settings {
	if s == nil {
		return DefaultSettings()
	}
	return s
}
