package middleware

import (
	"context"
	"io"
	"time"

	"github.com/shrek82/jormx/core"
	"github.com/shrek82/jormx/hydrate"
	"github.com/shrek82/jormx/logger"
)

// SlowLogMiddleware logs queries that take longer than the specified threshold.
type SlowLogMiddleware struct {
	Threshold time.Duration
	LogPath   string
	logger    logger.Logger
}

// NewSlowLog creates a new SlowLogMiddleware.
// threshold: queries taking longer than this will be logged.
// logPath: rotating log file. If empty, the DB logger is used.
func NewSlowLog(threshold time.Duration, logPath string) *SlowLogMiddleware {
	return &SlowLogMiddleware{
		Threshold: threshold,
		LogPath:   logPath,
	}
}

// SetOutput sets the output destination for the logger.
func (m *SlowLogMiddleware) SetOutput(w io.Writer) {
	m.logger = logger.NewStdLogger().WithFields(map[string]any{"component": "slow_sql"})
	m.logger.SetOutput(w)
}

func (m *SlowLogMiddleware) Name() string {
	return "SlowLog"
}

func (m *SlowLogMiddleware) Init(db *core.DB) error {
	// Keep a logger installed by SetOutput.
	if m.logger != nil {
		return nil
	}
	if m.LogPath != "" {
		m.logger = logger.New(logger.Config{Level: "warn", Format: string(logger.LogFormatJSON), File: m.LogPath})
	} else {
		m.logger = db.Logger()
	}
	m.logger = m.logger.WithFields(map[string]any{"component": "slow_sql"})
	return nil
}

func (m *SlowLogMiddleware) Shutdown() error {
	return nil
}

func (m *SlowLogMiddleware) Process(ctx context.Context, query *core.Query, next core.QueryFunc) (*hydrate.Result, error) {
	start := time.Now()
	res, err := next(ctx, query)
	duration := time.Since(start)

	if duration > m.Threshold {
		rows := 0
		if res != nil {
			rows = res.Len()
		}
		m.logger.Warn("duration=%v | sql=%s | args=%v | results=%d | err=%v", duration, query.SQL(), query.Args(), rows, err)
	}

	return res, err
}
