package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Every state change runs as one script so a job is never popped without
// being leased, or un-leased without landing in its next state. Active
// members are "<id>|<lease token>"; a stale holder cannot remove a member it
// no longer owns.
var (
	pushScript = redis.NewScript(`
if redis.call('HSETNX', KEYS[1], ARGV[1], ARGV[2]) == 0 then
  return 0
end
redis.call('LPUSH', KEYS[2], ARGV[1])
return 1`)

	reserveScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
  return false
end
local body = redis.call('HGET', KEYS[3], id)
if not body then
  return false
end
redis.call('ZADD', KEYS[2], ARGV[1], id .. '|' .. ARGV[2])
return body`)

	ackScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[2], ARGV[2])
redis.call('INCR', KEYS[3])
return 1`)

	retryScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[2], ARGV[3])
redis.call('ZADD', KEYS[3], ARGV[4], ARGV[2])
return 1`)

	buryScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
  return 0
end
redis.call('HDEL', KEYS[2], ARGV[2])
redis.call('LPUSH', KEYS[3], ARGV[3])
redis.call('LTRIM', KEYS[3], 0, tonumber(ARGV[4]) - 1)
redis.call('INCR', KEYS[4])
return 1`)

	promoteScript = redis.NewScript(`
local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
for _, id in ipairs(ids) do
  redis.call('ZREM', KEYS[1], id)
  redis.call('LPUSH', KEYS[2], id)
end
return #ids`)

	claimScript = redis.NewScript(`
local members = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, ARGV[2])
local out = {}
for _, m in ipairs(members) do
  redis.call('ZREM', KEYS[1], m)
  local id = string.match(m, '^(.-)|') or m
  local body = redis.call('HGET', KEYS[2], id)
  if body then
    local claimed = id .. '|' .. ARGV[4]
    redis.call('ZADD', KEYS[1], ARGV[3], claimed)
    table.insert(out, claimed)
    table.insert(out, body)
  end
end
return out`)
)

// RedisBroker stores one queue in Redis. All keys of a queue share a hash
// tag so the scripts also work against a cluster.
type RedisBroker struct {
	client    redis.UniversalClient
	queue     string
	keyPrefix string
	retention int
}

// RedisBrokerOption configures RedisBroker.
type RedisBrokerOption func(*RedisBroker)

// WithKeyPrefix sets custom key prefix.
func WithKeyPrefix(prefix string) RedisBrokerOption {
	return func(b *RedisBroker) {
		if prefix != "" {
			b.keyPrefix = prefix
		}
	}
}

// WithDeadRetention bounds the dead-letter list.
func WithDeadRetention(n int) RedisBrokerOption {
	return func(b *RedisBroker) {
		if n > 0 {
			b.retention = n
		}
	}
}

func NewRedisBroker(client redis.UniversalClient, queueName string, opts ...RedisBrokerOption) *RedisBroker {
	b := &RedisBroker{
		client:    client,
		queue:     queueName,
		keyPrefix: "socially:queue",
		retention: 1000,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// RedisBrokerFactory opens a new client per queue via newClient.
func RedisBrokerFactory(newClient func() redis.UniversalClient, opts ...RedisBrokerOption) BrokerFactory {
	return func(queueName string) (Broker, error) {
		client := newClient()
		if client == nil {
			return nil, fmt.Errorf("redis broker %s: nil client", queueName)
		}
		return NewRedisBroker(client, queueName, opts...), nil
	}
}

func (b *RedisBroker) key(parts ...string) string {
	return fmt.Sprintf("%s:{%s}:%s", b.keyPrefix, b.queue, strings.Join(parts, ":"))
}

func (b *RedisBroker) jobsKey() string            { return b.key("jobs") }
func (b *RedisBroker) deadKey() string            { return b.key("dead") }
func (b *RedisBroker) waitKey(name string) string { return b.key(name, "wait") }

func (b *RedisBroker) activeKey(name string) string    { return b.key(name, "active") }
func (b *RedisBroker) delayedKey(name string) string   { return b.key(name, "delayed") }
func (b *RedisBroker) completedKey(name string) string { return b.key(name, "completed") }
func (b *RedisBroker) deadCountKey(name string) string { return b.key(name, "dead_count") }

func member(j *Job) string { return j.ID + "|" + j.lease }

func ms(t time.Time) int64 { return t.UnixMilli() }

func (b *RedisBroker) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

func (b *RedisBroker) Push(ctx context.Context, j *Job) error {
	body, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	n, err := pushScript.Run(ctx, b.client, []string{b.jobsKey(), b.waitKey(j.Name)}, j.ID, body).Int()
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("push: job %s already exists", j.ID)
	}
	return nil
}

func (b *RedisBroker) Reserve(ctx context.Context, name string, lease time.Duration) (*Job, error) {
	token := uuid.NewString()
	deadline := ms(time.Now().Add(lease))
	body, err := reserveScript.Run(ctx, b.client,
		[]string{b.waitKey(name), b.activeKey(name), b.jobsKey()}, deadline, token).Text()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("reserve: %w", err)
	}

	var j Job
	if err := json.Unmarshal([]byte(body), &j); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	j.lease = token
	return &j, nil
}

func (b *RedisBroker) Ack(ctx context.Context, j *Job) (bool, error) {
	n, err := ackScript.Run(ctx, b.client,
		[]string{b.activeKey(j.Name), b.jobsKey(), b.completedKey(j.Name)}, member(j), j.ID).Int()
	if err != nil {
		return false, fmt.Errorf("ack: %w", err)
	}
	return n == 1, nil
}

func (b *RedisBroker) Retry(ctx context.Context, j *Job, runAt time.Time) (bool, error) {
	body, err := json.Marshal(j)
	if err != nil {
		return false, fmt.Errorf("marshal job: %w", err)
	}
	n, err := retryScript.Run(ctx, b.client,
		[]string{b.activeKey(j.Name), b.jobsKey(), b.delayedKey(j.Name)},
		member(j), j.ID, body, ms(runAt)).Int()
	if err != nil {
		return false, fmt.Errorf("retry: %w", err)
	}
	return n == 1, nil
}

func (b *RedisBroker) Bury(ctx context.Context, j *Job) (bool, error) {
	if j.DiedAt.IsZero() {
		j.DiedAt = time.Now().UTC()
	}
	body, err := json.Marshal(j)
	if err != nil {
		return false, fmt.Errorf("marshal job: %w", err)
	}
	n, err := buryScript.Run(ctx, b.client,
		[]string{b.activeKey(j.Name), b.jobsKey(), b.deadKey(), b.deadCountKey(j.Name)},
		member(j), j.ID, body, b.retention).Int()
	if err != nil {
		return false, fmt.Errorf("bury: %w", err)
	}
	return n == 1, nil
}

func (b *RedisBroker) PromoteDue(ctx context.Context, name string, now time.Time, limit int) (int, error) {
	n, err := promoteScript.Run(ctx, b.client,
		[]string{b.delayedKey(name), b.waitKey(name)}, ms(now), limit).Int()
	if err != nil {
		return 0, fmt.Errorf("promote: %w", err)
	}
	return n, nil
}

func (b *RedisBroker) ClaimStalled(ctx context.Context, name string, now time.Time, lease time.Duration, limit int) ([]*Job, error) {
	token := uuid.NewString()
	res, err := claimScript.Run(ctx, b.client,
		[]string{b.activeKey(name), b.jobsKey()},
		ms(now), limit, ms(now.Add(lease)), token).StringSlice()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim stalled: %w", err)
	}

	out := make([]*Job, 0, len(res)/2)
	for i := 0; i+1 < len(res); i += 2 {
		var j Job
		if err := json.Unmarshal([]byte(res[i+1]), &j); err != nil {
			return out, fmt.Errorf("unmarshal stalled job: %w", err)
		}
		j.lease = token
		out = append(out, &j)
	}
	return out, nil
}

func (b *RedisBroker) Stats(ctx context.Context, name string) (Stats, error) {
	pipe := b.client.Pipeline()
	waiting := pipe.LLen(ctx, b.waitKey(name))
	active := pipe.ZCard(ctx, b.activeKey(name))
	delayed := pipe.ZCard(ctx, b.delayedKey(name))
	completed := pipe.Get(ctx, b.completedKey(name))
	dead := pipe.Get(ctx, b.deadCountKey(name))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	return Stats{
		Queue:     b.queue,
		Name:      name,
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Delayed:   delayed.Val(),
		Completed: counter(completed),
		Dead:      counter(dead),
	}, nil
}

func counter(cmd *redis.StringCmd) int64 {
	n, err := strconv.ParseInt(cmd.Val(), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (b *RedisBroker) DeadLetters(ctx context.Context, limit int) ([]*Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	bodies, err := b.client.LRange(ctx, b.deadKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("dead letters: %w", err)
	}

	out := make([]*Job, 0, len(bodies))
	for _, body := range bodies {
		var j Job
		if err := json.Unmarshal([]byte(body), &j); err != nil {
			return nil, fmt.Errorf("unmarshal dead job: %w", err)
		}
		out = append(out, &j)
	}
	return out, nil
}

func (b *RedisBroker) Close() error {
	return b.client.Close()
}

var _ Broker = (*RedisBroker)(nil)
