// Package middleware wraps broker handlers with authentication, role checks,
// rate limiting, logging and panic recovery.
package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ukydev/fleet-safety/internal/broker"
)

// Middleware decorates a broker handler.
type Middleware func(broker.Handler) broker.Handler

// Chain applies mws so that the first one is outermost.
func Chain(h broker.Handler, mws ...Middleware) broker.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// Logging logs every handled message with its duration and outcome.
func Logging(log *logrus.Entry) Middleware {
	return func(next broker.Handler) broker.Handler {
		return func(ctx context.Context, msg broker.Message) error {
			start := time.Now()
			err := next(ctx, msg)
			fields := logrus.Fields{
				"topic":    msg.Topic,
				"bytes":    len(msg.Payload),
				"duration": time.Since(start),
			}
			if claims, ok := GetUserFromContext(ctx); ok {
				fields["user_id"] = claims.UserID
			}
			if err != nil {
				log.WithFields(fields).WithError(err).Warn("message rejected")
				return err
			}
			log.WithFields(fields).Debug("message handled")
			return nil
		}
	}
}

// Recovery turns a handler panic into an error.
func Recovery(log *logrus.Entry) Middleware {
	return func(next broker.Handler) broker.Handler {
		return func(ctx context.Context, msg broker.Message) (err error) {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("topic", msg.Topic).Errorf("handler panic: %v", r)
					err = fmt.Errorf("handler panic: %v", r)
				}
			}()
			return next(ctx, msg)
		}
	}
}
