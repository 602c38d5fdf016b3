package logger

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		level   zapcore.Level
		wantErr string
	}{
		{name: "json info", cfg: Config{Level: "info", Format: "json", Output: "stdout"}, level: zapcore.InfoLevel},
		{name: "console debug", cfg: Config{Level: "debug", Format: "console", Output: "stderr"}, level: zapcore.DebugLevel},
		{name: "upper case level", cfg: Config{Level: "WARN"}, level: zapcore.WarnLevel},
		{name: "unknown level", cfg: Config{Level: "verbose"}, wantErr: "log level"},
		{name: "unwritable output", cfg: Config{Level: "info", Output: filepath.Join(t.TempDir(), "missing", "x.log")}, wantErr: "open log output"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(&tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.True(t, l.Core().Enabled(tt.level))
			assert.False(t, l.Core().Enabled(tt.level-1))
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ebaysync.log")
	l, err := New(&Config{Level: "info", Format: "json", Output: path, TimeFormat: "2006-01-02"})
	require.NoError(t, err)

	l.Info("run finished", zap.Int("applied", 4))
	require.NoError(t, Sync(l))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var entry map[string]any
	require.NoError(t, json.Unmarshal(raw, &entry))
	assert.Equal(t, "run finished", entry["msg"])
	assert.Equal(t, "info", entry["level"])
	assert.EqualValues(t, 4, entry["applied"])
	assert.Len(t, entry["time"], len("2006-01-02"))
}

type failingSyncer struct{ err error }

func (f failingSyncer) Write(p []byte) (int, error) { return len(p), nil }
func (f failingSyncer) Sync() error                 { return f.err }

func TestSync(t *testing.T) {
	newLogger := func(err error) *zap.Logger {
		enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		return zap.New(zapcore.NewCore(enc, failingSyncer{err: err}, zapcore.InfoLevel))
	}

	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{name: "clean sync", err: nil},
		{name: "terminal rejects fsync", err: &os.PathError{Op: "sync", Path: "/dev/stdout", Err: syscall.EINVAL}},
		{name: "pipe rejects fsync", err: syscall.ENOTTY},
		{name: "disk error surfaces", err: errors.New("input/output error"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Sync(newLogger(tt.err))
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}

	assert.NoError(t, Sync(nil))
}
