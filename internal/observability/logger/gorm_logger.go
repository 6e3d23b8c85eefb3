package logger

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Statement outcomes attached to every gorm.query entry.
const (
	OutcomeOK            = "ok"
	OutcomeNotFound      = "not_found"
	OutcomeDebitRejected = "debit_rejected"
	OutcomeCanceled      = "canceled"
	OutcomeTimeout       = "timeout"
	OutcomeConflict      = "conflict"
	OutcomeFailed        = "failed"
)

// QueryLogConfig controls how gorm statements reach zap.
type QueryLogConfig struct {
	// Verbose emits every statement at debug, not only the noteworthy ones.
	Verbose       bool
	SlowThreshold time.Duration
}

// QueryLogger reports gorm statements through the request-scoped logger.
//
// A debit that the balance guard refuses, and the rollback that follows it,
// are how a user hits their allowance. They log at debug, never warn.
type QueryLogger struct {
	cfg    QueryLogConfig
	silent bool
}

func NewQueryLogger(cfg QueryLogConfig) *QueryLogger {
	return &QueryLogger{cfg: cfg}
}

// LogMode maps gorm's Silent and Info levels onto the logger; db.Debug()
// switches a session to verbose.
func (l *QueryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	next := *l
	next.silent = level <= gormlogger.Silent
	if level >= gormlogger.Info {
		next.cfg.Verbose = true
	}
	return &next
}

func (l *QueryLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, zapcore.InfoLevel, msg, data)
}

func (l *QueryLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, zapcore.WarnLevel, msg, data)
}

func (l *QueryLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	l.message(ctx, zapcore.ErrorLevel, msg, data)
}

func (l *QueryLogger) message(ctx context.Context, level zapcore.Level, msg string, data []interface{}) {
	if l.silent {
		return
	}
	fields := []zap.Field{zap.String("component", "gorm")}
	if len(data) > 0 {
		fields = append(fields, zap.Any("data", data))
	}
	if ce := FromContext(ctx).Check(level, msg); ce != nil {
		ce.Write(fields...)
	}
}

func (l *QueryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()
	outcome := ClassifyQuery(sql, rows, err)
	slow := l.cfg.SlowThreshold > 0 && elapsed > l.cfg.SlowThreshold

	var level zapcore.Level
	switch outcome {
	case OutcomeFailed:
		level = zapcore.ErrorLevel
	case OutcomeTimeout, OutcomeConflict:
		level = zapcore.WarnLevel
	case OutcomeCanceled:
		level = zapcore.InfoLevel
	case OutcomeDebitRejected, OutcomeNotFound:
		level = zapcore.DebugLevel
	default:
		if slow {
			level = zapcore.WarnLevel
		} else if l.cfg.Verbose {
			level = zapcore.DebugLevel
		} else {
			return
		}
	}

	ce := FromContext(ctx).Check(level, "gorm.query")
	if ce == nil {
		return
	}
	fields := []zap.Field{
		zap.String("component", "gorm"),
		zap.String("operation", operationFromSQL(sql)),
		zap.String("table", tableFromSQL(sql)),
		zap.String("outcome", outcome),
		zap.String("sql", strings.TrimSpace(sql)),
		zap.Int64("duration_ms", elapsed.Milliseconds()),
	}
	if rows >= 0 {
		fields = append(fields, zap.Int64("rows_affected", rows))
	}
	if slow {
		fields = append(fields, zap.Bool("slow", true))
	}
	if err != nil && outcome != OutcomeNotFound {
		fields = append(fields, zap.Error(err))
	}
	ce.Write(fields...)
}

// ParamsFilter drops bound values so user ids and amounts stay out of the SQL text.
func (l *QueryLogger) ParamsFilter(_ context.Context, sql string, _ ...interface{}) (string, []interface{}) {
	return sql, nil
}

// ClassifyQuery names the outcome of one statement. A guarded balance
// debit that matched no row is a refusal, not a failure.
func ClassifyQuery(sql string, rows int64, err error) string {
	switch {
	case err == nil && rows == 0 && isGuardedDebit(sql):
		return OutcomeDebitRejected
	case err == nil:
		return OutcomeOK
	case errors.Is(err, gormlogger.ErrRecordNotFound):
		return OutcomeNotFound
	case errors.Is(err, context.Canceled):
		return OutcomeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return OutcomeConflict
	default:
		return OutcomeFailed
	}
}

func isGuardedDebit(sql string) bool {
	normalized := strings.ToLower(sql)
	return operationFromSQL(sql) == "UPDATE" &&
		tableFromSQL(sql) == "usage_balances" &&
		strings.Contains(normalized, "<= credits_total")
}

func operationFromSQL(sql string) string {
	for _, token := range strings.Fields(strings.ToUpper(sql)) {
		token = strings.Trim(token, "();")
		switch token {
		case "SELECT", "INSERT", "UPDATE", "DELETE":
			return token
		case "WITH", "":
			continue
		}
	}
	return "UNKNOWN"
}

// tableFromSQL returns the first table named after FROM, INTO or UPDATE.
func tableFromSQL(sql string) string {
	tokens := strings.Fields(sql)
	for i := 0; i < len(tokens)-1; i++ {
		switch strings.ToUpper(tokens[i]) {
		case "FROM", "INTO", "UPDATE":
			name := strings.Trim(tokens[i+1], "`\"();,")
			if dot := strings.LastIndex(name, "."); dot >= 0 {
				name = strings.Trim(name[dot+1:], "`\"")
			}
			return strings.ToLower(name)
		}
	}
	return ""
}

var _ gormlogger.Interface = (*QueryLogger)(nil)
