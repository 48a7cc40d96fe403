// pubsub.go - channel to subscriber fan-out broker
// Copyright (C) 2026  The mietze authors.
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package pubsub implements the channel to subscriber set broker.
// Delivery hands pre-encoded frames to the Subscriber, which is
// expected to enqueue rather than block, so a slow peer socket never
// stalls a publisher.
package pubsub

import (
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/mietze-io/mietze/core/log"
	"github.com/mietze-io/mietze/core/resp"
	"github.com/mietze-io/mietze/server/store"
)

// Subscriber is the delivery target registered with the broker.
type Subscriber interface {
	// Deliver enqueues an encoded frame for the subscriber.  It must
	// not block.
	Deliver(frame []byte)
}

// Broker is the channel to subscriber set fan-out broker.
type Broker struct {
	sync.Mutex

	log *logging.Logger

	channels map[string]map[Subscriber]struct{}
	patterns map[string]map[Subscriber]struct{}
}

// New constructs an empty Broker.
func New(logBackend *log.Backend) *Broker {
	return &Broker{
		log:      logBackend.GetLogger("pubsub"),
		channels: make(map[string]map[Subscriber]struct{}),
		patterns: make(map[string]map[Subscriber]struct{}),
	}
}

// Subscribe registers sub on channel.
func (b *Broker) Subscribe(sub Subscriber, channel string) {
	b.Lock()
	defer b.Unlock()

	subscribe(b.channels, sub, channel)
}

// Unsubscribe removes sub from channel.
func (b *Broker) Unsubscribe(sub Subscriber, channel string) {
	b.Lock()
	defer b.Unlock()

	unsubscribe(b.channels, sub, channel)
}

// PSubscribe registers sub on a glob pattern.
func (b *Broker) PSubscribe(sub Subscriber, pattern string) {
	b.Lock()
	defer b.Unlock()

	subscribe(b.patterns, sub, pattern)
}

// PUnsubscribe removes sub from a glob pattern.
func (b *Broker) PUnsubscribe(sub Subscriber, pattern string) {
	b.Lock()
	defer b.Unlock()

	unsubscribe(b.patterns, sub, pattern)
}

// Drop removes sub from the given channels and patterns, as done when a
// connection goes away.
func (b *Broker) Drop(sub Subscriber, channels, patterns []string) {
	b.Lock()
	defer b.Unlock()

	for _, c := range channels {
		unsubscribe(b.channels, sub, c)
	}
	for _, p := range patterns {
		unsubscribe(b.patterns, sub, p)
	}
}

// Publish fans payload out to every subscriber of channel and every
// pattern subscriber whose pattern matches it, returning the receiver
// count.
func (b *Broker) Publish(channel, payload string) int64 {
	b.Lock()
	defer b.Unlock()

	var receivers int64
	if subs, ok := b.channels[channel]; ok {
		frame := resp.BulkArray("message", channel, payload).Encode()
		for sub := range subs {
			sub.Deliver(frame)
			receivers++
		}
	}
	for pattern, subs := range b.patterns {
		if !store.Match(pattern, channel) {
			continue
		}
		frame := resp.BulkArray("pmessage", pattern, channel, payload).Encode()
		for sub := range subs {
			sub.Deliver(frame)
			receivers++
		}
	}
	if receivers > 0 {
		b.log.Debugf("Published to '%v': %d receiver(s).", channel, receivers)
	}
	return receivers
}

func subscribe(m map[string]map[Subscriber]struct{}, sub Subscriber, name string) {
	subs, ok := m[name]
	if !ok {
		subs = make(map[Subscriber]struct{})
		m[name] = subs
	}
	subs[sub] = struct{}{}
}

func unsubscribe(m map[string]map[Subscriber]struct{}, sub Subscriber, name string) {
	subs, ok := m[name]
	if !ok {
		return
	}
	delete(subs, sub)
	if len(subs) == 0 {
		delete(m, name)
	}
}
