package datasource

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
)

// stubDatasource satisfies Datasource by embedding the interface; only the
// methods a test calls need real implementations.
type stubDatasource struct {
	Datasource
	config map[string]any
	opts   Options
}

func (s *stubDatasource) Type() string { return "test-stub" }
func (s *stubDatasource) Close() error { return nil }

func TestFactoryPassesConfigAndOptions(t *testing.T) {
	logger := zaptest.NewLogger(t)

	mockType := "test-mock-adapter"
	var captured *stubDatasource
	Register(DatasourceAdapterRegistration{
		Info: DatasourceAdapterInfo{
			Type:        mockType,
			DisplayName: "Test Mock",
			Description: "Test adapter",
		},
		Factory: func(ctx context.Context, config map[string]any, opts Options) (Datasource, error) {
			captured = &stubDatasource{config: config, opts: opts}
			return captured, nil
		},
	})

	factory := NewDatasourceAdapterFactory(Options{
		MetadataTimeout: 3 * time.Second,
		Logger:          logger,
	})

	ds, err := factory.NewDatasource(context.Background(), mockType, map[string]any{"host": "db"})
	require.NoError(t, err)
	require.NotNil(t, ds)
	defer ds.Close()

	require.NotNil(t, captured)
	assert.Equal(t, "db", captured.config["host"])
	assert.Equal(t, 3*time.Second, captured.opts.MetadataTimeout)
	assert.Equal(t, DefaultScanTimeout, captured.opts.ScanTimeout, "zero scan timeout should get the default")
	assert.Equal(t, logger, captured.opts.Logger)
	assert.True(t, IsRegistered(mockType))
}

func TestFactoryErrorHandling(t *testing.T) {
	factory := NewDatasourceAdapterFactory(Options{})

	ds, err := factory.NewDatasource(context.Background(), "unsupported-type", map[string]any{})
	assert.Error(t, err)
	assert.Nil(t, ds)
	assert.True(t, errors.Is(err, apperrors.ErrUnsupportedDatasource))
	assert.Contains(t, err.Error(), "unsupported datasource type")
}

func TestFactoryListTypes(t *testing.T) {
	Register(DatasourceAdapterRegistration{Info: DatasourceAdapterInfo{Type: "zz-last"}})
	Register(DatasourceAdapterRegistration{Info: DatasourceAdapterInfo{Type: "aa-first"}})

	types := NewDatasourceAdapterFactory(Options{}).ListTypes()
	require.GreaterOrEqual(t, len(types), 2)
	assert.Equal(t, "aa-first", types[0].Type)
	assert.Equal(t, "zz-last", types[len(types)-1].Type)
}

func TestOptionsContexts(t *testing.T) {
	opts := Options{MetadataTimeout: time.Second, ScanTimeout: time.Minute}

	ctx, cancel := opts.MetadataContext(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)

	scanCtx, scanCancel := opts.ScanContext(context.Background())
	defer scanCancel()
	scanDeadline, ok := scanCtx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(time.Minute), scanDeadline, 500*time.Millisecond)
}
