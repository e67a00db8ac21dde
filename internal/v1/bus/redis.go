// Package bus publishes lobby lifecycle events to Redis so external
// tooling (matchmakers, dashboards, janitors) can watch the lobby without
// speaking the client protocol. The bus is optional: a nil *Service is a
// valid no-op handle and every method degrades to doing nothing.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"

	"github.com/incognita-games/lobbyd/internal/v1/metrics"
)

// EventsChannel is the single pub/sub channel all lifecycle events go to.
// Consumers filter by Kind.
const EventsChannel = "lobby:events"

// Event kinds.
const (
	EventUserConnected    = "user_connected"
	EventUserDisconnected = "user_disconnected"
	EventRoomCreated      = "room_created"
	EventRoomClosed       = "room_closed"
)

// Event is the envelope published for every lifecycle change. User is set
// for user events, Room for room events; both are set when a disconnect
// closes a room.
type Event struct {
	Kind string    `json:"kind"`
	User uint32    `json:"user,omitempty"`
	Room uint32    `json:"room,omitempty"`
	At   time.Time `json:"at"`
}

// Service handles all interaction with Redis.
type Service struct {
	client *redis.Client
	cb     *gobreaker.CircuitBreaker
}

// Client returns the underlying Redis client.
func (s *Service) Client() *redis.Client {
	if s == nil {
		return nil
	}
	return s.client
}

// NewService connects to Redis and verifies the connection before
// returning. Callers that cannot reach Redis should run without a bus
// rather than refuse to start; the lobby itself never depends on it.
func NewService(addr, password string) (*Service, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           0, // Default DB
		DialTimeout:  10 * time.Second,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	// Ping to verify connection immediately
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	st := gobreaker.Settings{
		Name:        "redis",
		MaxRequests: 5,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	slog.Info("Connected to Redis event bus", "addr", addr)
	return &Service{
		client: rdb,
		cb:     gobreaker.NewCircuitBreaker(st),
	}, nil
}

// Publish sends one lifecycle event. Publishing is fire-and-forget from
// the lobby's point of view: when the breaker is open the event is
// dropped and the caller keeps going.
func (s *Service) Publish(ctx context.Context, ev Event) error {
	if s == nil || s.client == nil {
		return nil // Bus disabled, single-instance mode
	}

	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		data, err := json.Marshal(ev)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal event envelope: %w", err)
		}
		return nil, s.client.Publish(ctx, EventsChannel, data).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
			slog.Warn("Redis circuit breaker open: dropping event", "kind", ev.Kind)
			return nil // Graceful degradation: drop event, don't crash caller
		}
		slog.Error("Redis publish failed", "kind", ev.Kind, "error", err)
		return err
	}

	return nil
}

// Subscribe starts a background goroutine that feeds every decoded event
// to handler until ctx is cancelled. Non-JSON payloads are logged and
// skipped.
func (s *Service) Subscribe(ctx context.Context, wg *sync.WaitGroup, handler func(Event)) {
	if s == nil || s.client == nil {
		return // Bus disabled, single-instance mode
	}

	pubsub := s.client.Subscribe(ctx, EventsChannel)

	if wg != nil {
		wg.Add(1)
	}
	go func() {
		defer pubsub.Close()
		if wg != nil {
			defer wg.Done()
		}

		slog.Info("Subscribed to Redis channel", "channel", EventsChannel)

		ch := pubsub.Channel()

		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					slog.Warn("Redis subscription channel closed", "channel", EventsChannel)
					return
				}

				var ev Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					slog.Error("Failed to unmarshal Redis message", "error", err, "raw", msg.Payload)
					continue
				}

				handler(ev)
			}
		}
	}()
}

// Ping checks Redis connectivity using the PING command
// Used by health checks to verify Redis is reachable
func (s *Service) Ping(ctx context.Context) error {
	if s == nil || s.client == nil {
		return nil // Bus disabled, single-instance mode
	}

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.client.Ping(ctx).Err()
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			metrics.CircuitBreakerFailures.WithLabelValues("redis").Inc()
		}
		return err
	}
	return nil
}

// Close gracefully shuts down the Redis connection
func (s *Service) Close() error {
	if s == nil || s.client == nil {
		return nil // Bus disabled, single-instance mode
	}
	return s.client.Close()
}
