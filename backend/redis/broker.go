// Package redis implements the job broker on a Redis stream with a consumer
// group. Jobs abandoned by a crashed worker are reclaimed once their lock
// times out.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"flowforge/backend"
)

const (
	streamName = "flowforge:jobs"
	groupName  = "job-workers"
)

// Broker implements backend.Broker on a Redis stream.
type Broker struct {
	rdb        redis.UniversalClient
	workerName string
	options    backend.Options
}

var _ backend.Broker = (*Broker)(nil)

// NewBroker creates the consumer group (if needed) and returns a broker.
func NewBroker(rdb redis.UniversalClient, opts ...backend.BackendOption) (*Broker, error) {
	b := &Broker{
		rdb:        rdb,
		workerName: fmt.Sprintf("worker-%v", uuid.NewString()),
		options:    backend.ApplyOptions(opts...),
	}

	_, err := rdb.XGroupCreateMkStream(context.Background(), streamName, groupName, "0").Result()
	if err != nil && !strings.HasPrefix(err.Error(), "BUSYGROUP") {
		return nil, fmt.Errorf("create job consumer group: %w", err)
	}

	return b, nil
}

func (b *Broker) Enqueue(ctx context.Context, job *backend.Job) error {
	job.EnqueuedAt = time.Now().UTC()

	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: map[string]any{"job": string(payload)},
	}).Result()
	if err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	return nil
}

func (b *Broker) Dequeue(ctx context.Context) (*backend.Job, error) {
	// Reclaim jobs whose holder went away before reading new ones.
	job, err := b.recover(ctx)
	if err != nil {
		return nil, fmt.Errorf("recover abandoned jobs: %w", err)
	}
	if job != nil {
		return job, nil
	}

	streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Streams:  []string{streamName, ">"},
		Group:    groupName,
		Consumer: b.workerName,
		Count:    1,
		Block:    -1, // non-blocking, the worker paces its own polling
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}

	if err == redis.Nil || len(streams) == 0 || len(streams[0].Messages) == 0 {
		return nil, nil
	}

	return b.messageToJob(streams[0].Messages[0])
}

func (b *Broker) recover(ctx context.Context) (*backend.Job, error) {
	messages, _, err := b.rdb.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   streamName,
		Group:    groupName,
		Consumer: b.workerName,
		MinIdle:  b.options.JobLockTimeout,
		Start:    "0",
		Count:    1,
	}).Result()
	if err != nil && err != redis.Nil {
		return nil, err
	}

	if len(messages) == 0 {
		return nil, nil
	}

	job, err := b.messageToJob(messages[0])
	if err != nil {
		return nil, err
	}

	return job, nil
}

func (b *Broker) messageToJob(msg redis.XMessage) (*backend.Job, error) {
	payload, ok := msg.Values["job"].(string)
	if !ok {
		return nil, fmt.Errorf("job message %s has no payload", msg.ID)
	}

	var job backend.Job
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}

	job.Receipt = msg.ID
	job.LockedBy = b.workerName
	until := time.Now().UTC().Add(b.options.JobLockTimeout)
	job.LockedUntil = &until

	return &job, nil
}

func (b *Broker) Extend(ctx context.Context, job *backend.Job) error {
	// Claiming the message resets its idle timer, which is the lock.
	_, err := b.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   streamName,
		Group:    groupName,
		Consumer: b.workerName,
		Messages: []string{job.Receipt},
		MinIdle:  0,
	}).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("extend job lock: %w", err)
	}

	until := time.Now().UTC().Add(b.options.JobLockTimeout)
	job.LockedUntil = &until

	return nil
}

func (b *Broker) Complete(ctx context.Context, job *backend.Job) error {
	if _, err := b.rdb.XAck(ctx, streamName, groupName, job.Receipt).Result(); err != nil {
		return fmt.Errorf("ack job: %w", err)
	}

	if _, err := b.rdb.XDel(ctx, streamName, job.Receipt).Result(); err != nil {
		return fmt.Errorf("delete job message: %w", err)
	}

	return nil
}

// Close closes the underlying Redis client.
func (b *Broker) Close() error {
	return b.rdb.Close()
}
