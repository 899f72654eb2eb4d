package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// InconsistentRange is a block range whose eth_getLogs results did not agree
// across providers.
type InconsistentRange struct {
	Start     uint64            `json:"start"`
	End       uint64            `json:"end"`
	Answers   map[string]string `json:"answers"`
	Attempts  int               `json:"attempts"`
	FirstSeen time.Time         `json:"first_seen"`
	LastSeen  time.Time         `json:"last_seen"`
}

// Member is the sorted set member of the range.
func (r InconsistentRange) Member() string {
	return FormatRange(r.Start, r.End)
}

func rangesKey(networkCode string) string {
	return fmt.Sprintf("inconsistent_ranges:%s", networkCode)
}

func rangeDetailsKey(networkCode string) string {
	return fmt.Sprintf("inconsistent_range_details:%s", networkCode)
}

// PushInconsistentRange records a range, or bumps its attempt count when it is
// already recorded. Ranges are scored by their start block.
func (c *Client) PushInconsistentRange(
	ctx context.Context,
	networkCode string,
	start, end uint64,
	answers map[string]string,
	now time.Time,
) error {
	member := FormatRange(start, end)

	record := InconsistentRange{Start: start, End: end, Attempts: 1, FirstSeen: now, LastSeen: now}
	prev, err := c.rdb.HGet(ctx, rangeDetailsKey(networkCode), member).Result()
	switch {
	case err == redis.Nil:
	case err != nil:
		return fmt.Errorf("hget failed: %w", err)
	default:
		var old InconsistentRange
		if json.Unmarshal([]byte(prev), &old) == nil {
			record.Attempts = old.Attempts + 1
			record.FirstSeen = old.FirstSeen
		}
	}
	record.Answers = answers

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal range: %w", err)
	}

	pipe := c.rdb.TxPipeline()
	pipe.ZAdd(ctx, rangesKey(networkCode), redis.Z{Score: float64(start), Member: member})
	pipe.HSet(ctx, rangeDetailsKey(networkCode), member, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record range: %w", err)
	}
	return nil
}

// FormatRange renders a range as "12000-12500".
func FormatRange(start, end uint64) string {
	return fmt.Sprintf("%d-%d", start, end)
}

// ParseRangeString parses "12000-12500" format.
func ParseRangeString(s string) (start, end uint64, err error) {
	parts := strings.Split(s, "-")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format: %s", s)
	}

	start, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid start: %w", err)
	}

	end, err = strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid end: %w", err)
	}

	if start > end {
		return 0, 0, fmt.Errorf("start > end: %d > %d", start, end)
	}

	return start, end, nil
}

// RemoveInconsistentRangesThrough forgets every range ending at or before block.
func (c *Client) RemoveInconsistentRangesThrough(ctx context.Context, networkCode string, block uint64) (int, error) {
	members, err := c.rdb.ZRangeByScore(ctx, rangesKey(networkCode), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatUint(block, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("zrangebyscore failed: %w", err)
	}

	var done []string
	for _, m := range members {
		_, end, err := ParseRangeString(m)
		if err == nil && end <= block {
			done = append(done, m)
		}
	}
	if len(done) == 0 {
		return 0, nil
	}

	args := make([]any, len(done))
	for i, m := range done {
		args[i] = m
	}
	pipe := c.rdb.TxPipeline()
	pipe.ZRem(ctx, rangesKey(networkCode), args...)
	pipe.HDel(ctx, rangeDetailsKey(networkCode), done...)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to remove ranges: %w", err)
	}
	return len(done), nil
}

// RangeRecorder binds the inconsistent-range queue to one network.
type RangeRecorder struct {
	client      *Client
	networkCode string
	now         func() time.Time
}

func NewRangeRecorder(client *Client, networkCode string) *RangeRecorder {
	return &RangeRecorder{client: client, networkCode: networkCode, now: time.Now}
}

func (r *RangeRecorder) RecordInconsistent(ctx context.Context, start, end uint64, answers map[string]string) error {
	return r.client.PushInconsistentRange(ctx, r.networkCode, start, end, answers, r.now().UTC())
}

func (r *RangeRecorder) ResolveThrough(ctx context.Context, block uint64) error {
	_, err := r.client.RemoveInconsistentRangesThrough(ctx, r.networkCode, block)
	return err
}

// Count returns the number of unresolved inconsistent ranges.
func (r *RangeRecorder) Count(ctx context.Context) (int, error) {
	n, err := r.client.rdb.ZCard(ctx, rangesKey(r.networkCode)).Result()
	if err != nil {
		return 0, fmt.Errorf("zcard failed: %w", err)
	}
	return int(n), nil
}
