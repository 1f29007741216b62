package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"
)

type route struct {
	filter  string
	handler Handler
}

// Router dispatches inbound messages to handlers by topic filter.
type Router struct {
	prefix  string
	log     *logrus.Entry
	timeout time.Duration

	mu     sync.RWMutex
	routes []route
	ctx    context.Context
}

// NewRouter creates a router for filters under prefix. Each message is
// handled with a deadline of timeout.
func NewRouter(prefix string, timeout time.Duration, log *logrus.Entry) *Router {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Router{
		prefix:  prefix,
		log:     log.WithField("component", "router"),
		timeout: timeout,
		ctx:     context.Background(),
	}
}

// Handle registers h for a filter relative to the prefix, e.g.
// "vehicles/+/readings".
func (r *Router) Handle(filter string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{filter: join(r.prefix, filter), handler: h})
}

// Filters lists the absolute topic filters in registration order.
func (r *Router) Filters() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.routes))
	for i, rt := range r.routes {
		out[i] = rt.filter
	}
	return out
}

// Subscribe subscribes c to every registered filter. Messages are handled
// under ctx until it is cancelled.
func (r *Router) Subscribe(ctx context.Context, c Client) error {
	const op = "broker.Subscribe"
	r.mu.Lock()
	r.ctx = ctx
	routes := append([]route(nil), r.routes...)
	r.mu.Unlock()

	for _, rt := range routes {
		h := rt.handler
		token := c.Subscribe(rt.filter, QoS, func(_ mqtt.Client, m mqtt.Message) {
			r.receive(h, Message{Topic: m.Topic(), Payload: m.Payload()})
		})
		select {
		case <-token.Done():
		case <-ctx.Done():
			return fmt.Errorf("%s: %s: %w", op, rt.filter, ctx.Err())
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("%s: %s: %w", op, rt.filter, err)
		}
		r.log.WithField("filter", rt.filter).Info("subscribed")
	}
	return nil
}

// receive runs the handler bound to the subscription that delivered msg.
func (r *Router) receive(h Handler, msg Message) {
	r.mu.RLock()
	base := r.ctx
	r.mu.RUnlock()
	if base.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(base, r.timeout)
	defer cancel()
	if err := h(ctx, msg); err != nil {
		r.log.WithError(err).WithField("topic", msg.Topic).Error("handle message")
	}
}

// Dispatch runs the first handler whose filter matches the topic. Broker
// deliveries bypass it and go straight to the subscription's handler.
func (r *Router) Dispatch(ctx context.Context, msg Message) error {
	r.mu.RLock()
	var h Handler
	for _, rt := range r.routes {
		if Match(rt.filter, msg.Topic) {
			h = rt.handler
			break
		}
	}
	r.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("%w: %s", ErrNoRoute, msg.Topic)
	}
	return h(ctx, msg)
}

// Match reports whether topic matches an MQTT filter with + and # wildcards.
func Match(filter, topic string) bool {
	fs := strings.Split(filter, "/")
	ts := strings.Split(topic, "/")
	for i, f := range fs {
		if f == "#" {
			return i == len(fs)-1
		}
		if i >= len(ts) {
			return false
		}
		if f != "+" && f != ts[i] {
			return false
		}
	}
	return len(fs) == len(ts)
}
