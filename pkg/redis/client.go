package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/onurcolak/followup-engine/environments"
	"github.com/onurcolak/followup-engine/pkg/logger"
)

const (
	cooldownKeyPrefix = "cooldown:"
	eventKeyPrefix    = "inbound_event:"
)

type Client struct {
	client valkey.Client
}

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	return newClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
}

func newClient(opt valkey.ClientOption) (*Client, error) {
	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

// Reserve records now as the last send of subject unless a reservation
// younger than window exists. When it does, the stored send time is returned.
func (c *Client) Reserve(ctx context.Context, subject string, now time.Time, window time.Duration) (bool, time.Time, error) {
	key := cooldownKeyPrefix + subject
	ms := window.Milliseconds()
	if ms < 1 {
		ms = 1
	}

	// The key may expire between SET and GET, so try twice.
	for attempt := 0; attempt < 2; attempt++ {
		err := c.client.Do(ctx, c.client.B().Set().Key(key).
			Value(formatNanos(now)).
			Nx().PxMilliseconds(ms).Build()).Error()
		if err == nil {
			return true, time.Time{}, nil
		}
		if !valkey.IsValkeyNil(err) {
			return false, time.Time{}, fmt.Errorf("failed to reserve cooldown: %w", err)
		}

		raw, err := c.client.Do(ctx, c.client.B().Get().Key(key).Build()).ToString()
		if err != nil {
			if valkey.IsValkeyNil(err) {
				continue
			}
			return false, time.Time{}, fmt.Errorf("failed to read cooldown: %w", err)
		}

		nanos, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return false, time.Time{}, fmt.Errorf("failed to parse cooldown value %q: %w", raw, err)
		}

		return false, time.Unix(0, nanos), nil
	}

	// Lost the race twice in a row; treat it as freshly taken.
	return false, now, nil
}

func formatNanos(t time.Time) string {
	return strconv.FormatInt(t.UnixNano(), 10)
}

// Release drops a reservation so the subject can be retried immediately.
func (c *Client) Release(ctx context.Context, subject string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(cooldownKeyPrefix+subject).Build()).Error(); err != nil {
		return fmt.Errorf("failed to release cooldown: %w", err)
	}
	return nil
}

// MarkEventSeen returns true the first time eventID is seen within ttl.
func (c *Client) MarkEventSeen(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	err := c.client.Do(ctx, c.client.B().Set().Key(eventKeyPrefix+eventID).
		Value("1").
		Nx().PxMilliseconds(ttl.Milliseconds()).Build()).Error()
	if err == nil {
		return true, nil
	}
	if valkey.IsValkeyNil(err) {
		logger.Debugf("Inbound event %s already processed", eventID)
		return false, nil
	}
	return false, fmt.Errorf("failed to record inbound event: %w", err)
}

// ForgetEvent drops a recorded event id so a redelivery is processed again.
func (c *Client) ForgetEvent(ctx context.Context, eventID string) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(eventKeyPrefix+eventID).Build()).Error(); err != nil {
		return fmt.Errorf("failed to forget inbound event: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
