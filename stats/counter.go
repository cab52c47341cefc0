package stats

import (
	"context"
	"fmt"
	"strings"
	"time"

	"receipt-tracker/utils"

	"github.com/redis/go-redis/v9"
)

const keyTTL = 31 * 24 * time.Hour

// Counter keeps realtime open counters in redis.
type Counter struct {
	client *redis.Client
	now    func() time.Time
}

type Realtime struct {
	TodayOpens        int64  `json:"today_opens"`
	TodayUniqueEmails int64  `json:"today_unique_emails"`
	Email             string `json:"email,omitempty"`
	EmailOpens        *int64 `json:"email_opens,omitempty"`
}

func NewCounter(addr, password string, db int) (*Counter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Counter{client: client, now: time.Now}, nil
}

// day buckets follow the display offset so "today" matches the log viewer.
func (c *Counter) day() string {
	return c.now().In(utils.DisplayZone).Format("2006-01-02")
}

func dailyKey(day string) string   { return "receipts:daily:" + day }
func visitorKey(day string) string { return "receipts:emails:" + day }
func emailKey(email string) string { return "receipts:email:" + strings.ToLower(email) }

// RecordOpen bumps the counters for one pixel load.
func (c *Counter) RecordOpen(ctx context.Context, email string) error {
	day := c.day()

	pipe := c.client.TxPipeline()
	pipe.HIncrBy(ctx, dailyKey(day), "opens", 1)
	pipe.Expire(ctx, dailyKey(day), keyTTL)
	pipe.SAdd(ctx, visitorKey(day), strings.ToLower(email))
	pipe.Expire(ctx, visitorKey(day), keyTTL)
	pipe.Incr(ctx, emailKey(email))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record open: %w", err)
	}
	return nil
}

// Realtime reads today's counters, plus the all-time count for email
// when it is not empty.
func (c *Counter) Realtime(ctx context.Context, email string) (*Realtime, error) {
	day := c.day()

	opens, err := c.client.HGet(ctx, dailyKey(day), "opens").Int64()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	unique, err := c.client.SCard(ctx, visitorKey(day)).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	rt := &Realtime{TodayOpens: opens, TodayUniqueEmails: unique}
	if email != "" {
		n, err := c.client.Get(ctx, emailKey(email)).Int64()
		if err != nil && err != redis.Nil {
			return nil, err
		}
		rt.Email = email
		rt.EmailOpens = &n
	}
	return rt, nil
}

// Reset drops today's counters and every per-email total, used when the
// log is cleared.
func (c *Counter) Reset(ctx context.Context) error {
	day := c.day()
	keys := []string{dailyKey(day), visitorKey(day)}

	iter := c.client.Scan(ctx, 0, emailKey("*"), 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan email counters: %w", err)
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("reset counters: %w", err)
	}
	return nil
}

func (c *Counter) Close() error {
	return c.client.Close()
}
