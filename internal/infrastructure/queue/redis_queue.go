// Package queue is a durable job queue on Redis. A job id moves between
// the waiting, active, delayed, completed and failed collections; the job
// body lives under its own key so finished jobs stay inspectable.
//
// A reserved job is leased: active is a sorted set scored by lease expiry
// and the owners hash maps each active id to the token of its holder. Only
// the holder may finish a job, and only expired leases are recovered.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"sepolia-wallet.backend/internal/domain/entities"
	"sepolia-wallet.backend/pkg/logger"
	"sepolia-wallet.backend/pkg/retry"
	"sepolia-wallet.backend/pkg/utils"
)

const (
	// DefaultLeaseTTL is how long a reserved job stays owned without renewal
	DefaultLeaseTTL = 30 * time.Second

	defaultPollInterval = 100 * time.Millisecond
)

// ErrLeaseLost is returned when the caller no longer owns the job: its
// lease expired and the job was recovered for another worker.
var ErrLeaseLost = errors.New("job lease lost")

// Metrics
var (
	queueJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_queue_jobs_total",
			Help: "Queue job transitions by resulting state",
		},
		[]string{"queue", "state"},
	)
)

// KEYS: waiting, active, owners. ARGV: lease expiry (ms), token.
var reserveScript = goredis.NewScript(`
local id = redis.call("RPOP", KEYS[1])
if not id then
	return false
end
redis.call("ZADD", KEYS[2], ARGV[1], id)
redis.call("HSET", KEYS[3], id, ARGV[2])
return id
`)

// KEYS: active, owners. ARGV: id, token, lease expiry (ms).
var extendScript = goredis.NewScript(`
if redis.call("HGET", KEYS[2], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call("ZADD", KEYS[1], "XX", ARGV[3], ARGV[1])
return 1
`)

// KEYS: owners, job. ARGV: id, token, body.
var saveOwnedScript = goredis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call("SET", KEYS[2], ARGV[3])
return 1
`)

// KEYS: active, owners, target, job. ARGV: id, token, body, target kind
// ("list" or "zset"), score. An empty body leaves the job key alone.
var finishScript = goredis.NewScript(`
if redis.call("HGET", KEYS[2], ARGV[1]) ~= ARGV[2] then
	return 0
end
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("HDEL", KEYS[2], ARGV[1])
if ARGV[4] == "zset" then
	redis.call("ZADD", KEYS[3], ARGV[5], ARGV[1])
else
	redis.call("LPUSH", KEYS[3], ARGV[1])
end
if ARGV[3] ~= "" then
	redis.call("SET", KEYS[4], ARGV[3])
end
return 1
`)

// KEYS: delayed, waiting, job. ARGV: id, body.
var promoteScript = goredis.NewScript(`
if redis.call("ZREM", KEYS[1], ARGV[1]) == 0 then
	return 0
end
redis.call("LPUSH", KEYS[2], ARGV[1])
redis.call("SET", KEYS[3], ARGV[2])
return 1
`)

// KEYS: active, owners, target, job. ARGV: id, now (ms), body.
var recoverScript = goredis.NewScript(`
local score = redis.call("ZSCORE", KEYS[1], ARGV[1])
if not score or tonumber(score) > tonumber(ARGV[2]) then
	return 0
end
redis.call("ZREM", KEYS[1], ARGV[1])
redis.call("HDEL", KEYS[2], ARGV[1])
redis.call("LPUSH", KEYS[3], ARGV[1])
if ARGV[3] ~= "" then
	redis.call("SET", KEYS[4], ARGV[3])
end
return 1
`)

// Job is a unit of work with its retry bookkeeping
type Job struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Data         json.RawMessage   `json:"data"`
	State        entities.JobState `json:"state"`
	AttemptsMade int               `json:"attemptsMade"`
	MaxAttempts  int               `json:"maxAttempts"`
	Backoff      time.Duration     `json:"backoff"`
	FailedReason string            `json:"failedReason,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
	ProcessedAt  *time.Time        `json:"processedAt,omitempty"`
	FinishedAt   *time.Time        `json:"finishedAt,omitempty"`

	token string
}

// Decode unmarshals the job payload into v
func (j *Job) Decode(v interface{}) error {
	return json.Unmarshal(j.Data, v)
}

// Options is the retry policy applied to every enqueued job
type Options struct {
	Attempts int
	Backoff  time.Duration
	LeaseTTL time.Duration
}

// RedisQueue implements the job queue on a single Redis instance
type RedisQueue struct {
	client       *goredis.Client
	name         string
	opts         Options
	pollInterval time.Duration
	now          func() time.Time
}

// NewRedisQueue creates a queue named name. Attempts below one are raised
// to one; a zero lease falls back to DefaultLeaseTTL.
func NewRedisQueue(client *goredis.Client, name string, opts Options) *RedisQueue {
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.LeaseTTL <= 0 {
		opts.LeaseTTL = DefaultLeaseTTL
	}
	return &RedisQueue{
		client:       client,
		name:         name,
		opts:         opts,
		pollInterval: defaultPollInterval,
		now:          time.Now,
	}
}

// Name returns the queue name
func (q *RedisQueue) Name() string {
	return q.name
}

// LeaseTTL is the ownership window of a reserved job; holders renew it
// with Extend well before it runs out.
func (q *RedisQueue) LeaseTTL() time.Duration {
	return q.opts.LeaseTTL
}

func (q *RedisQueue) key(part string) string {
	return "queue:" + q.name + ":" + part
}

func (q *RedisQueue) jobKey(id string) string {
	return q.key("job:" + id)
}

func (q *RedisQueue) leaseExpiry() int64 {
	return q.now().Add(q.opts.LeaseTTL).UnixMilli()
}

func (q *RedisQueue) saveJob(ctx context.Context, pipe goredis.Cmdable, job *Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return pipe.Set(ctx, q.jobKey(job.ID), data, 0).Err()
}

func (q *RedisQueue) loadJob(ctx context.Context, id string) (*Job, error) {
	raw, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	job := &Job{}
	if err := json.Unmarshal(raw, job); err != nil {
		return nil, fmt.Errorf("decode job %s: %v: %w", id, err, errUnreadable)
	}
	return job, nil
}

var errUnreadable = errors.New("unreadable job body")

// unreadable reports a body that can never be processed, as opposed to a
// transient read failure
func unreadable(err error) bool {
	return errors.Is(err, goredis.Nil) || errors.Is(err, errUnreadable)
}

// Enqueue stores the job body and pushes its id to waiting in one MULTI
func (q *RedisQueue) Enqueue(ctx context.Context, name string, payload interface{}) (*Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	job := &Job{
		ID:          utils.NewID(),
		Name:        name,
		Data:        data,
		State:       entities.JobStateWaiting,
		MaxAttempts: q.opts.Attempts,
		Backoff:     q.opts.Backoff,
		CreatedAt:   q.now().UTC(),
	}

	_, err = q.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if err := q.saveJob(ctx, pipe, job); err != nil {
			return err
		}
		return pipe.LPush(ctx, q.key("waiting"), job.ID).Err()
	})
	if err != nil {
		return nil, err
	}

	queueJobsTotal.WithLabelValues(q.name, string(entities.JobStateWaiting)).Inc()
	return job, nil
}

// Reserve leases the oldest waiting job, polling up to timeout. It
// returns (nil, nil) when nothing arrived in time.
func (q *RedisQueue) Reserve(ctx context.Context, timeout time.Duration) (*Job, error) {
	deadline := time.Now().Add(timeout)
	for {
		job, err := q.tryReserve(ctx)
		if err != nil || job != nil {
			return job, err
		}

		wait := min(q.pollInterval, time.Until(deadline))
		if wait <= 0 {
			return nil, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
}

func (q *RedisQueue) tryReserve(ctx context.Context) (*Job, error) {
	if _, err := q.RecoverStalled(ctx); err != nil {
		return nil, err
	}
	if _, err := q.PromoteDelayed(ctx); err != nil {
		return nil, err
	}

	token := utils.NewID()
	id, err := reserveScript.Run(ctx, q.client,
		[]string{q.key("waiting"), q.key("active"), q.key("owners")},
		q.leaseExpiry(), token,
	).Text()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	job, err := q.loadJob(ctx, id)
	if err != nil {
		if !unreadable(err) {
			// still leased; recovered once the lease expires
			return nil, err
		}
		if _, ferr := q.finish(ctx, &Job{ID: id, token: token}, q.key("failed"), "list", 0, false); ferr != nil {
			return nil, ferr
		}
		queueJobsTotal.WithLabelValues(q.name, string(entities.JobStateFailed)).Inc()
		return nil, fmt.Errorf("job %s: %w", id, err)
	}
	job.token = token

	now := q.now().UTC()
	job.State = entities.JobStateActive
	job.AttemptsMade++
	job.ProcessedAt = &now
	data, err := json.Marshal(job)
	if err != nil {
		return nil, err
	}
	owned, err := saveOwnedScript.Run(ctx, q.client,
		[]string{q.key("owners"), q.jobKey(id)},
		id, token, data,
	).Int()
	if err != nil {
		return nil, err
	}
	if owned == 0 {
		return nil, ErrLeaseLost
	}
	queueJobsTotal.WithLabelValues(q.name, string(entities.JobStateActive)).Inc()
	return job, nil
}

// Extend renews the lease of a job the caller holds
func (q *RedisQueue) Extend(ctx context.Context, job *Job) error {
	owned, err := extendScript.Run(ctx, q.client,
		[]string{q.key("active"), q.key("owners")},
		job.ID, job.token, q.leaseExpiry(),
	).Int()
	if err != nil {
		return err
	}
	if owned == 0 {
		return ErrLeaseLost
	}
	return nil
}

// finish moves a held job out of active into target in one script. The
// body is written only when withBody is set.
func (q *RedisQueue) finish(ctx context.Context, job *Job, target, kind string, score float64, withBody bool) (bool, error) {
	body := ""
	if withBody {
		data, err := json.Marshal(job)
		if err != nil {
			return false, err
		}
		body = string(data)
	}
	owned, err := finishScript.Run(ctx, q.client,
		[]string{q.key("active"), q.key("owners"), target, q.jobKey(job.ID)},
		job.ID, job.token, body, kind, score,
	).Int()
	if err != nil {
		return false, err
	}
	return owned == 1, nil
}

// Complete moves a held job to completed. It returns ErrLeaseLost when
// the job has been recovered for another worker in the meantime.
func (q *RedisQueue) Complete(ctx context.Context, job *Job) error {
	now := q.now().UTC()
	job.State = entities.JobStateCompleted
	job.FinishedAt = &now

	owned, err := q.finish(ctx, job, q.key("completed"), "list", 0, true)
	if err != nil {
		return err
	}
	if !owned {
		return ErrLeaseLost
	}
	queueJobsTotal.WithLabelValues(q.name, string(entities.JobStateCompleted)).Inc()
	return nil
}

// Fail records cause on a held job. The job is delayed for another
// attempt with exponential backoff, or moved to failed when the attempts
// are exhausted or cause is permanent. It returns the resulting state.
func (q *RedisQueue) Fail(ctx context.Context, job *Job, cause error) (entities.JobState, error) {
	job.FailedReason = cause.Error()

	var owned bool
	var err error
	if !retry.IsPermanent(cause) && job.AttemptsMade < job.MaxAttempts {
		job.State = entities.JobStateDelayed
		runAt := q.now().Add(q.backoffFor(job))
		owned, err = q.finish(ctx, job, q.key("delayed"), "zset", float64(runAt.UnixMilli()), true)
	} else {
		now := q.now().UTC()
		job.State = entities.JobStateFailed
		job.FinishedAt = &now
		owned, err = q.finish(ctx, job, q.key("failed"), "list", 0, true)
	}
	if err != nil {
		return "", err
	}
	if !owned {
		return "", ErrLeaseLost
	}
	queueJobsTotal.WithLabelValues(q.name, string(job.State)).Inc()
	return job.State, nil
}

// backoffFor doubles the base delay for every attempt already made
func (q *RedisQueue) backoffFor(job *Job) time.Duration {
	exp := job.AttemptsMade - 1
	if exp < 0 {
		exp = 0
	}
	return time.Duration(float64(job.Backoff) * math.Pow(2, float64(exp)))
}

// PromoteDelayed moves every delayed job whose backoff elapsed back to
// waiting. The move and the body update happen in one script, and only
// the caller that removes the id from the delayed set pushes it.
func (q *RedisQueue) PromoteDelayed(ctx context.Context) (int, error) {
	due, err := q.client.ZRangeByScore(ctx, q.key("delayed"), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(q.now().UnixMilli(), 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, id := range due {
		body := ""
		job, err := q.loadJob(ctx, id)
		switch {
		case err == nil:
			job.State = entities.JobStateWaiting
			data, err := json.Marshal(job)
			if err != nil {
				return promoted, err
			}
			body = string(data)
		case unreadable(err):
			logger.Warn(ctx, "Delayed job body unreadable", zap.String("job_id", id), zap.Error(err))
		default:
			return promoted, err
		}

		moved, err := promoteScript.Run(ctx, q.client,
			[]string{q.key("delayed"), q.key("waiting"), q.jobKey(id)},
			id, body,
		).Int()
		if err != nil {
			return promoted, err
		}
		promoted += moved
	}
	return promoted, nil
}

// RecoverStalled moves jobs whose lease expired back to waiting. Jobs
// still leased by a live worker are left alone, so it is safe to call
// while other workers run.
func (q *RedisQueue) RecoverStalled(ctx context.Context) (int, error) {
	now := q.now().UnixMilli()
	expired, err := q.client.ZRangeByScore(ctx, q.key("active"), &goredis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, id := range expired {
		target := q.key("waiting")
		body := ""
		job, err := q.loadJob(ctx, id)
		switch {
		case err == nil:
			job.State = entities.JobStateWaiting
			data, err := json.Marshal(job)
			if err != nil {
				return recovered, err
			}
			body = string(data)
		case unreadable(err):
			logger.Warn(ctx, "Stalled job body unreadable", zap.String("job_id", id), zap.Error(err))
			target = q.key("failed")
		default:
			return recovered, err
		}

		moved, err := recoverScript.Run(ctx, q.client,
			[]string{q.key("active"), q.key("owners"), target, q.jobKey(id)},
			id, now, body,
		).Int()
		if err != nil {
			return recovered, err
		}
		if moved == 1 && target == q.key("waiting") {
			recovered++
			logger.Warn(ctx, "Recovered stalled job", zap.String("job_id", id))
		}
	}
	return recovered, nil
}

// Stats counts jobs per state
func (q *RedisQueue) Stats(ctx context.Context) (*entities.QueueStats, error) {
	var waiting, active, completed, failed, delayed *goredis.IntCmd
	_, err := q.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		waiting = pipe.LLen(ctx, q.key("waiting"))
		active = pipe.ZCard(ctx, q.key("active"))
		completed = pipe.LLen(ctx, q.key("completed"))
		failed = pipe.LLen(ctx, q.key("failed"))
		delayed = pipe.ZCard(ctx, q.key("delayed"))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &entities.QueueStats{
		Waiting:   waiting.Val(),
		Active:    active.Val(),
		Completed: completed.Val(),
		Failed:    failed.Val(),
		Delayed:   delayed.Val(),
	}, nil
}

// JobStatus returns the inspection view of a job; unknown ids report
// state not_found.
func (q *RedisQueue) JobStatus(ctx context.Context, id string) (*entities.JobStatus, error) {
	job, err := q.loadJob(ctx, id)
	if errors.Is(err, goredis.Nil) {
		return &entities.JobStatus{ID: id, State: entities.JobStateNotFound}, nil
	}
	if err != nil {
		return nil, err
	}

	var data interface{}
	if len(job.Data) > 0 {
		_ = json.Unmarshal(job.Data, &data)
	}
	return &entities.JobStatus{
		ID:           job.ID,
		Name:         job.Name,
		State:        job.State,
		AttemptsMade: job.AttemptsMade,
		FailedReason: job.FailedReason,
		Data:         data,
	}, nil
}
