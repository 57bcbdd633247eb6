// Package bridge connects a NADI graph to Redis Pub/Sub.
//
// Two abstract nodes are provided:
//   - redis-publish: every message arriving on input 1 is published
//   - redis-subscribe: every message received on the topic is emitted on output 1
//
// Channels are namespaced by instance name so several NADI processes can
// share one Redis server:
//
//	nadi:{instance_name}:{topic}
//
// Delivery is at-most-once, as with any Redis Pub/Sub subscriber.
package bridge

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dyluth/nadi/pkg/nadi"
	"github.com/redis/go-redis/v9"
)

// TopicChannel returns the Pub/Sub channel name for a topic.
// Pattern: nadi:{instance_name}:{topic}
func TopicChannel(instanceName, topic string) string {
	return fmt.Sprintf("nadi:%s:%s", instanceName, topic)
}

// publishTimeout bounds a single PUBLISH so a stalled Redis cannot wedge the node.
const publishTimeout = 5 * time.Second

// publishQueueSize is how many encoded messages a publisher buffers ahead of
// Redis. Messages arriving on a full queue are dropped.
const publishQueueSize = 256

// drainTimeout bounds how long Close keeps publishing queued messages.
const drainTimeout = 5 * time.Second

// Bridge builds Redis-backed abstract nodes that share one Redis client.
type Bridge struct {
	rdb          *redis.Client
	instanceName string
}

// New creates a bridge for the specified instance.
//
// Parameters:
//   - rdb: Redis client, owned by the caller
//   - instanceName: namespace for topic channels (must not be empty)
func New(rdb *redis.Client, instanceName string) (*Bridge, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}
	return &Bridge{rdb: rdb, instanceName: instanceName}, nil
}

// Ping verifies Redis connectivity.
func (b *Bridge) Ping(ctx context.Context) error {
	return b.rdb.Ping(ctx).Err()
}

// Register adds both bridge abstract nodes to r.
func (b *Bridge) Register(r interface{ Register(nadi.AbstractNode) error }) error {
	if err := r.Register(b.Publisher()); err != nil {
		return err
	}
	return r.Register(b.Subscriber())
}

type options struct {
	topic    string
	codec    Codec
	compress bool
}

func parseOptions(config map[string]any) (options, error) {
	var o options
	topic, _ := config["topic"].(string)
	if topic == "" {
		return o, fmt.Errorf("topic is required")
	}
	o.topic = topic

	name, ok := config["codec"].(string)
	if _, present := config["codec"]; present && !ok {
		return o, fmt.Errorf("codec must be a string")
	}
	codec, err := CodecByName(name)
	if err != nil {
		return o, err
	}
	o.codec = codec

	if v, present := config["compress"]; present {
		c, ok := v.(bool)
		if !ok {
			return o, fmt.Errorf("compress must be a boolean")
		}
		o.compress = c
	}
	return o, nil
}

// Publisher returns the redis-publish abstract node.
// Config: topic (required), codec ("cbor" or "json", default cbor), compress (bool).
func (b *Bridge) Publisher() nadi.AbstractNode {
	return nadi.NewAbstractNode(nadi.Descriptor{
		Name:        "redis-publish",
		Version:     "1.0.0",
		Description: "Publishes input 1 to a Redis Pub/Sub topic",
		Channels: nadi.Channels{
			Input: []nadi.ChannelDescriptor{{Number: 1, Name: "in"}},
		},
	}, func(p nadi.NodeParams) (nadi.Instance, error) {
		opts, err := parseOptions(p.Config)
		if err != nil {
			return nil, err
		}
		return newPublisher(b.rdb, TopicChannel(b.instanceName, opts.topic), opts), nil
	})
}

// publisher encodes on the receive callback and publishes from its own
// goroutine, so a slow Redis never blocks the node's mailbox.
type publisher struct {
	rdb     *redis.Client
	channel string
	opts    options

	queue  chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
	drain  time.Duration
}

func newPublisher(rdb *redis.Client, channel string, opts options) *publisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &publisher{
		rdb:     rdb,
		channel: channel,
		opts:    opts,
		queue:   make(chan []byte, publishQueueSize),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		drain:   drainTimeout,
	}
	go p.run()
	return p
}

// Receive encodes msg and queues it for publishing. The payload is a copy, so
// the delivery is not retained.
func (p *publisher) Receive(msg *nadi.Message) {
	env := &Envelope{Meta: msg.Meta, Data: msg.Data, Node: uint64(msg.Node)}
	if p.opts.compress {
		compress(env)
	}
	payload, err := p.opts.codec.Marshal(env)
	if err != nil {
		log.Printf("[ERROR] redis-publish: failed to encode message: %v", err)
		return
	}

	select {
	case p.queue <- payload:
	default:
		log.Printf("[WARN] redis-publish: queue full, dropping message for %s", p.channel)
	}
}

func (p *publisher) run() {
	defer close(p.done)
	for payload := range p.queue {
		ctx, cancel := context.WithTimeout(p.ctx, publishTimeout)
		err := p.rdb.Publish(ctx, p.channel, payload).Err()
		cancel()
		if err != nil {
			log.Printf("[ERROR] redis-publish: failed to publish to %s: %v", p.channel, err)
		}
	}
}

// Close publishes what is still queued, giving up after the drain timeout.
// The Context never calls Receive after Close.
func (p *publisher) Close() error {
	p.once.Do(func() { close(p.queue) })
	select {
	case <-p.done:
	case <-time.After(p.drain):
		p.cancel()
		<-p.done
	}
	p.cancel()
	return nil
}

// Subscriber returns the redis-subscribe abstract node.
// Config: topic (required), codec ("cbor" or "json", default cbor).
func (b *Bridge) Subscriber() nadi.AbstractNode {
	return nadi.NewAbstractNode(nadi.Descriptor{
		Name:        "redis-subscribe",
		Version:     "1.0.0",
		Description: "Emits messages from a Redis Pub/Sub topic on output 1",
		Channels: nadi.Channels{
			Output: []nadi.ChannelDescriptor{{Number: 1, Name: "out"}},
		},
	}, func(p nadi.NodeParams) (nadi.Instance, error) {
		opts, err := parseOptions(p.Config)
		if err != nil {
			return nil, err
		}
		return b.subscribe(p, opts)
	})
}

type subscriber struct {
	host    nadi.Host
	handle  nadi.Handle
	codec   Codec
	channel string

	cancel func()
	wg     sync.WaitGroup
	once   sync.Once
}

func (b *Bridge) subscribe(p nadi.NodeParams, opts options) (*subscriber, error) {
	channel := TopicChannel(b.instanceName, opts.topic)
	ctx, cancel := context.WithCancel(context.Background())
	pubsub := b.rdb.Subscribe(ctx, channel)

	// Wait for the subscription confirmation so nothing published after
	// creation is missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		cancel()
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", channel, err)
	}

	s := &subscriber{
		host:    p.Host,
		handle:  p.Handle,
		codec:   opts.codec,
		channel: channel,
		cancel:  cancel,
	}
	s.wg.Add(1)
	go s.run(ctx, pubsub)
	return s, nil
}

func (s *subscriber) run(ctx context.Context, pubsub *redis.PubSub) {
	defer s.wg.Done()
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			msg, err := s.decode([]byte(m.Payload))
			if err != nil {
				log.Printf("[WARN] redis-subscribe: dropping message on %s: %v", s.channel, err)
				continue
			}
			if err := s.host.Send(msg, nadi.ContextHandle); err != nil {
				s.host.Free(msg)
				log.Printf("[WARN] redis-subscribe: send failed: %v", err)
			}
		}
	}
}

func (s *subscriber) decode(payload []byte) (*nadi.Message, error) {
	var env Envelope
	if err := s.codec.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if err := decompress(&env); err != nil {
		return nil, err
	}
	if _, err := nadi.MetaFormat(env.Meta); err != nil {
		return nil, err
	}
	return &nadi.Message{
		Meta:    env.Meta,
		Data:    env.Data,
		Channel: 1,
		Node:    s.handle,
		Release: nadi.NopRelease,
	}, nil
}

// Receive is never called; the subscriber declares no inputs.
func (s *subscriber) Receive(*nadi.Message) {}

// Close unsubscribes and waits for the reader goroutine.
func (s *subscriber) Close() error {
	s.once.Do(s.cancel)
	s.wg.Wait()
	return nil
}
