package log

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezoic/gpvi/pkg/errors"
)

func TestToLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{in: "debug", want: LevelDebug},
		{in: "info", want: LevelInfo},
		{in: "warn", want: LevelWarn},
		{in: "error", want: LevelError},
		{in: "bogus", want: LevelInfo},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToLogLevel(tt.in), tt.in)
	}
}

func TestZerologLogger_EmitsTypedFields(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithLogger(zerolog.New(&buf), LevelDebug)
	logger := p.GetLoggerWithName("inference.engine")

	logger.Info("fit complete",
		IterationKey, 42,
		ELBOKey, -13.5,
		"converged", true,
	)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "fit complete", rec["message"])
	assert.Equal(t, "inference.engine", rec[ComponentKey])
	assert.EqualValues(t, 42, rec[IterationKey])
	assert.EqualValues(t, -13.5, rec[ELBOKey])
	assert.Equal(t, true, rec["converged"])
}

func TestZerologLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithLogger(zerolog.New(&buf), LevelWarn)
	logger := p.GetLogger()

	logger.Debug("hidden")
	logger.Info("hidden too")
	assert.Empty(t, buf.Bytes())

	logger.Warn("shown")
	assert.NotEmpty(t, buf.Bytes())

	ctx := context.Background()
	assert.False(t, logger.Enabled(ctx, LevelDebug))
	assert.True(t, logger.Enabled(ctx, LevelError))
}

func TestTestLogger_CapturesRecords(t *testing.T) {
	logger, records := NewTestLogger(LevelInfo)

	logger.Debug("filtered out")
	logger.Info("training started", SamplesKey, 100)
	logger.With("latent", 2).Warn("covariance update skipped")

	require.Len(t, *records, 2)
	assert.Equal(t, "training started", (*records)[0].Message)
	assert.EqualValues(t, 100, (*records)[0].Fields[SamplesKey])
	assert.Equal(t, LevelWarn, (*records)[1].Level)
	assert.EqualValues(t, 2, (*records)[1].Fields["latent"])
}

func TestZerologProvider_WarnSinkEmitsStructuredWarning(t *testing.T) {
	var buf bytes.Buffer
	p := NewZerologProviderWithLogger(zerolog.New(&buf), LevelWarn)
	p.installWarnSink()
	t.Cleanup(func() { errors.SetZerologWarnFunc(nil) })

	errors.Warn(errors.NewDegenerateKernelWarning("variance", 1e-10))

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "warn", rec["level"])
	assert.Contains(t, rec["message"], "variance")
	assert.Contains(t, rec, "warning")
}
