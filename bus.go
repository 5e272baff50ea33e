// Copyright 2015 The Govisor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use file except in compliance with the License.
// You may obtain a copy of the license at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package hsvisor

import (
	"context"
	"strconv"
	"sync"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
)

// Event is one inbound event notification.
type Event struct {
	Source string `json:"source"`
	ID     uint16 `json:"id"`
}

// MessageBus is the publish/subscribe transport the supervisor uses.
// Receive never blocks; it reports false when no event is waiting.
type MessageBus interface {
	Subscriber
	Sender
	Receive() (Event, bool)
}

// Metadata keys carrying the event identity on bus messages.
const (
	MetaSource  = "hs_source"
	MetaEventID = "hs_event_id"
)

// NewEventMessage builds a bus message announcing an event.
func NewEventMessage(ev Event) *message.Message {
	msg := message.NewMessage(watermill.NewUUID(), nil)
	msg.Metadata.Set(MetaSource, ev.Source)
	msg.Metadata.Set(MetaEventID, strconv.Itoa(int(ev.ID)))
	return msg
}

// WatermillBus adapts a watermill publisher and subscriber (a gochannel
// pub/sub, typically) to MessageBus.  Subscribed messages are acked as
// soon as they are queued; the queue holds up to depth events and
// further events are dropped (and counted) rather than block the bus.
// Events still queued when their topic is unsubscribed are discarded.
type WatermillBus struct {
	pub         message.Publisher
	sub         message.Subscriber
	actionTopic string
	events      chan queuedEvent
	subs        map[string]*subscription
	dropped     uint64
	malformed   uint64
	mx          sync.Mutex
	wg          sync.WaitGroup
}

// NewWatermillBus returns a bus that publishes message actions on
// actionTopic.
func NewWatermillBus(pub message.Publisher, sub message.Subscriber,
	actionTopic string, depth int) *WatermillBus {
	if depth <= 0 {
		depth = 64
	}
	return &WatermillBus{
		pub:         pub,
		sub:         sub,
		actionTopic: actionTopic,
		events:      make(chan queuedEvent, depth),
		subs:        make(map[string]*subscription),
	}
}

type subscription struct {
	topic  string
	cancel context.CancelFunc
}

type queuedEvent struct {
	sub *subscription
	ev  Event
}

// Subscribe starts forwarding events published on topic.
func (b *WatermillBus) Subscribe(topic string) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if _, ok := b.subs[topic]; ok {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	msgs, e := b.sub.Subscribe(ctx, topic)
	if e != nil {
		cancel()
		return errors.Wrapf(e, "subscribe %s", topic)
	}
	sub := &subscription{topic: topic, cancel: cancel}
	b.subs[topic] = sub
	b.wg.Add(1)
	go b.forward(sub, msgs)
	return nil
}

func (b *WatermillBus) forward(sub *subscription, msgs <-chan *message.Message) {
	defer b.wg.Done()
	for msg := range msgs {
		ev, ok := decodeEvent(msg)
		msg.Ack()
		if !ok {
			b.mx.Lock()
			b.malformed++
			b.mx.Unlock()
			continue
		}
		select {
		case b.events <- queuedEvent{sub: sub, ev: ev}:
		default:
			b.mx.Lock()
			b.dropped++
			b.mx.Unlock()
		}
	}
}

func decodeEvent(msg *message.Message) (Event, bool) {
	src := msg.Metadata.Get(MetaSource)
	id, e := strconv.ParseUint(msg.Metadata.Get(MetaEventID), 10, 16)
	if src == "" || e != nil {
		return Event{}, false
	}
	return Event{Source: src, ID: uint16(id)}, true
}

// Unsubscribe stops forwarding events from topic.
func (b *WatermillBus) Unsubscribe(topic string) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	sub, ok := b.subs[topic]
	if !ok {
		return ErrNotSubscribed
	}
	sub.cancel()
	delete(b.subs, topic)
	return nil
}

// Receive implements MessageBus.  Events of subscriptions that have
// since ended are skipped.
func (b *WatermillBus) Receive() (Event, bool) {
	for {
		select {
		case q := <-b.events:
			b.mx.Lock()
			live := b.subs[q.sub.topic] == q.sub
			b.mx.Unlock()
			if live {
				return q.ev, true
			}
		default:
			return Event{}, false
		}
	}
}

// Send publishes a message action payload.
func (b *WatermillBus) Send(payload []byte) error {
	msg := message.NewMessage(watermill.NewUUID(), append([]byte{}, payload...))
	return b.pub.Publish(b.actionTopic, msg)
}

// Publish announces an event on topic, on behalf of some application.
func (b *WatermillBus) Publish(topic string, ev Event) error {
	return b.pub.Publish(topic, NewEventMessage(ev))
}

// Dropped returns the number of events lost to a full queue, and the
// number of messages that did not carry an event.
func (b *WatermillBus) Dropped() (uint64, uint64) {
	b.mx.Lock()
	defer b.mx.Unlock()
	return b.dropped, b.malformed
}

// Close cancels every subscription and waits for the forwarders.
func (b *WatermillBus) Close() {
	b.mx.Lock()
	for topic, sub := range b.subs {
		sub.cancel()
		delete(b.subs, topic)
	}
	b.mx.Unlock()
	b.wg.Wait()
}
