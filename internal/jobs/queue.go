package jobs

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-redis/redis/v8"
	"go.opentelemetry.io/otel/trace"
)

// Trigger is a manual request to run a task. TraceID and SpanID identify the
// span that requested the run, if any.
type Trigger struct {
	RequestedBy string
	RequestedAt time.Time
	TraceID     string
	SpanID      string
}

// NewTrigger creates a Trigger carrying the span context of ctx.
func NewTrigger(ctx context.Context, by string, at time.Time) Trigger {
	t := Trigger{RequestedBy: by, RequestedAt: at}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		t.TraceID = sc.TraceID().String()
		t.SpanID = sc.SpanID().String()
	}
	return t
}

// Links returns a span link to the requesting span, or nothing when the
// trigger carries no valid trace context.
func (t Trigger) Links() []trace.Link {
	traceID, err := trace.TraceIDFromHex(t.TraceID)
	if err != nil {
		return nil
	}
	spanID, err := trace.SpanIDFromHex(t.SpanID)
	if err != nil {
		return nil
	}
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	return []trace.Link{{SpanContext: sc}}
}

// Encode writes t as JSON.
func (t Trigger) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("requested_by")
	e.Str(t.RequestedBy)
	e.FieldStart("requested_at")
	e.Str(t.RequestedAt.UTC().Format(time.RFC3339Nano))
	if t.TraceID != "" {
		e.FieldStart("trace_id")
		e.Str(t.TraceID)
		e.FieldStart("span_id")
		e.Str(t.SpanID)
	}
	e.ObjEnd()
}

// Decode reads t from JSON.
func (t *Trigger) Decode(d *jx.Decoder) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "requested_by":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t.RequestedBy = v
		case "requested_at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			at, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return errors.Wrap(err, "parse requested_at")
			}
			t.RequestedAt = at
		case "trace_id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t.TraceID = v
		case "span_id":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t.SpanID = v
		default:
			return d.Skip()
		}
		return nil
	})
}

// Queue carries task triggers between processes.
type Queue interface {
	Push(ctx context.Context, t Trigger) error
	// Pop waits up to timeout for a trigger. It returns nil, nil when none
	// arrived.
	Pop(ctx context.Context, timeout time.Duration) (*Trigger, error)
}

// RedisQueue is a Queue backed by a Redis list.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a queue on the list stored at key.
func NewRedisQueue(client redis.UniversalClient, key string) *RedisQueue {
	return &RedisQueue{client: client, key: key}
}

// Push appends t to the queue.
func (q *RedisQueue) Push(ctx context.Context, t Trigger) error {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	t.Encode(e)
	if err := q.client.RPush(ctx, q.key, e.String()).Err(); err != nil {
		return errors.Wrap(err, "push trigger")
	}
	return nil
}

// Pop removes the oldest trigger, blocking up to timeout.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (*Trigger, error) {
	res, err := q.client.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "pop trigger")
	}
	if len(res) != 2 {
		return nil, errors.Errorf("unexpected BLPOP reply of %d elements", len(res))
	}
	var t Trigger
	if err := t.Decode(jx.DecodeStr(res[1])); err != nil {
		return nil, errors.Wrap(err, "decode trigger")
	}
	return &t, nil
}

// LocalQueue is an in-process Queue.
type LocalQueue struct {
	ch chan Trigger
}

var _ Queue = (*LocalQueue)(nil)

// NewLocalQueue creates a LocalQueue holding up to size pending triggers.
func NewLocalQueue(size int) *LocalQueue {
	return &LocalQueue{ch: make(chan Trigger, size)}
}

// Push enqueues t. A full queue drops t since a run is already pending.
func (q *LocalQueue) Push(_ context.Context, t Trigger) error {
	select {
	case q.ch <- t:
	default:
	}
	return nil
}

// Pop waits up to timeout for a trigger.
func (q *LocalQueue) Pop(ctx context.Context, timeout time.Duration) (*Trigger, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t := <-q.ch:
		return &t, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
