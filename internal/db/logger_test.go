package db

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func query(sql string, rows int64) func() (string, int64) {
	return func() (string, int64) { return sql, rows }
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		out = append(out, entry)
	}
	return out
}

func TestGormLogger_FailedQuery(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(zerolog.New(&buf), gormlogger.Warn)

	l.Trace(context.Background(), time.Now(), query("INSERT INTO users", 0), errors.New("duplicate entry"))

	entries := lines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "error", entries[0]["level"])
	assert.Equal(t, "INSERT INTO users", entries[0]["sql"])
	assert.Equal(t, "duplicate entry", entries[0]["error"])
	assert.Equal(t, "gorm", entries[0]["component"])
}

func TestGormLogger_RecordNotFoundIsQuiet(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(zerolog.New(&buf), gormlogger.Warn)

	l.Trace(context.Background(), time.Now(), query("SELECT * FROM chargers", 0), gorm.ErrRecordNotFound)

	assert.Empty(t, buf.String())
}

func TestGormLogger_SlowQuery(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(zerolog.New(&buf), gormlogger.Warn)

	l.Trace(context.Background(), time.Now().Add(-time.Second), query("SELECT * FROM chargers", 3), nil)
	l.Trace(context.Background(), time.Now(), query("SELECT 1", 1), nil)

	entries := lines(t, &buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "slow query", entries[0]["message"])
	assert.Equal(t, float64(3), entries[0]["rows"])
}

func TestGormLogger_UsesRequestLogger(t *testing.T) {
	var base, scoped bytes.Buffer
	l := NewGormLogger(zerolog.New(&base), gormlogger.Warn)
	reqLog := zerolog.New(&scoped).With().Str("request_id", "req-1").Logger()
	ctx := reqLog.WithContext(context.Background())

	l.Trace(ctx, time.Now(), query("UPDATE chargers", 0), errors.New("deadlock"))

	assert.Empty(t, base.String())
	entries := lines(t, &scoped)
	require.Len(t, entries, 1)
	assert.Equal(t, "req-1", entries[0]["request_id"])
	assert.Equal(t, "UPDATE chargers", entries[0]["sql"])
}

func TestGormLogger_Silent(t *testing.T) {
	var buf bytes.Buffer
	l := NewGormLogger(zerolog.New(&buf), gormlogger.Warn).LogMode(gormlogger.Silent)

	l.Trace(context.Background(), time.Now(), query("INSERT INTO users", 0), errors.New("boom"))
	l.Warn(context.Background(), "pool exhausted %d", 3)

	assert.Empty(t, buf.String())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("sqlite", "file::memory:", zerolog.Nop())
	assert.Error(t, err)
}
