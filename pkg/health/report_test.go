package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func serveReport(r *Reporter) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	return w
}

func TestReporter(t *testing.T) {
	for _, tt := range []struct {
		name     string
		db       CheckFunc
		redis    CheckFunc
		required bool
		want     string
	}{
		{
			name: "RedisNotConfigured",
			db:   passingCheck(),
			want: `{"status":"ok","database":true,"redis":null}`,
		},
		{
			name:  "AllHealthy",
			db:    passingCheck(),
			redis: passingCheck(),
			want:  `{"status":"ok","database":true,"redis":true}`,
		},
		{
			name:  "DatabaseDown",
			db:    failingCheck("refused"),
			redis: passingCheck(),
			want:  `{"status":"error","database":false,"redis":true}`,
		},
		{
			name:  "RedisDownOptional",
			db:    passingCheck(),
			redis: failingCheck("refused"),
			want:  `{"status":"ok","database":true,"redis":false}`,
		},
		{
			name:     "RedisDownRequired",
			db:       passingCheck(),
			redis:    failingCheck("refused"),
			required: true,
			want:     `{"status":"error","database":true,"redis":false}`,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			w := serveReport(NewReporter(tt.db, tt.redis, ReportConfig{RedisRequired: tt.required}))

			assert.Equal(t, http.StatusOK, w.Code)
			assert.JSONEq(t, tt.want, w.Body.String())
		})
	}
}

func TestReporter_RedisTimeout(t *testing.T) {
	slow := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	r := NewReporter(passingCheck(), slow, ReportConfig{RedisTimeout: 10 * time.Millisecond})

	rep := r.Check(context.Background())

	if assert.NotNil(t, rep.Redis) {
		assert.False(t, *rep.Redis)
	}
	assert.Equal(t, "ok", rep.Status)
}
