package health

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// ReportConfig tunes the component report.
type ReportConfig struct {
	// RedisRequired makes an unreachable broker turn the overall status into
	// "error". Otherwise the broker is reported but does not affect status.
	RedisRequired bool          `default:"false" usage:"Report error status when Redis is unreachable"`
	RedisTimeout  time.Duration `default:"500ms" usage:"Timeout of the Redis ping"`
	DBTimeout     time.Duration `default:"2s" usage:"Timeout of the database ping"`
}

// Report is the component health snapshot. Redis is nil when no broker is
// configured.
type Report struct {
	Status   string
	Database bool
	Redis    *bool
}

// Encode writes the report as {"status","database","redis"}.
func (r Report) Encode(e *jx.Encoder) {
	e.ObjStart()
	e.FieldStart("status")
	e.Str(r.Status)
	e.FieldStart("database")
	e.Bool(r.Database)
	e.FieldStart("redis")
	if r.Redis == nil {
		e.Null()
	} else {
		e.Bool(*r.Redis)
	}
	e.ObjEnd()
}

// Reporter checks the database and, when configured, the broker on demand.
type Reporter struct {
	db    CheckFunc
	redis CheckFunc
	cfg   ReportConfig
}

// NewReporter creates a Reporter. A nil redis check means the broker is not
// configured.
func NewReporter(db, redis CheckFunc, cfg ReportConfig) *Reporter {
	if cfg.RedisTimeout <= 0 {
		cfg.RedisTimeout = 500 * time.Millisecond
	}
	if cfg.DBTimeout <= 0 {
		cfg.DBTimeout = 2 * time.Second
	}
	return &Reporter{db: db, redis: redis, cfg: cfg}
}

// Check builds a fresh Report.
func (r *Reporter) Check(ctx context.Context) Report {
	lg := zctx.From(ctx)
	rep := Report{Status: "ok"}

	if err := runWithTimeout(ctx, r.cfg.DBTimeout, r.db); err != nil {
		lg.Warn("Database health check failed", zap.Error(err))
		rep.Status = "error"
	} else {
		rep.Database = true
	}

	if r.redis != nil {
		ok := true
		if err := runWithTimeout(ctx, r.cfg.RedisTimeout, r.redis); err != nil {
			lg.Warn("Redis health check failed", zap.Error(err))
			ok = false
			if r.cfg.RedisRequired {
				rep.Status = "error"
			}
		}
		rep.Redis = &ok
	}
	return rep
}

// ServeHTTP always answers 200; the status field carries the verdict.
func (r *Reporter) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	rep := r.Check(req.Context())

	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	rep.Encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(e.Bytes())
}

func runWithTimeout(ctx context.Context, timeout time.Duration, check CheckFunc) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return check(ctx)
}
