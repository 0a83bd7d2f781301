package datasource

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-profiler/pkg/apperrors"
)

const (
	DefaultMetadataTimeout = 30 * time.Second
	DefaultScanTimeout     = 5 * time.Minute
)

// Options are passed to every adapter factory.
type Options struct {
	// MetadataTimeout bounds catalog and sanity queries.
	MetadataTimeout time.Duration
	// ScanTimeout bounds statements that read table data.
	ScanTimeout time.Duration
	Logger      *zap.Logger
}

// WithDefaults fills zero fields.
func (o Options) WithDefaults() Options {
	if o.MetadataTimeout <= 0 {
		o.MetadataTimeout = DefaultMetadataTimeout
	}
	if o.ScanTimeout <= 0 {
		o.ScanTimeout = DefaultScanTimeout
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

// MetadataContext derives a context bounded by the metadata timeout.
func (o Options) MetadataContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.WithDefaults().MetadataTimeout)
}

// ScanContext derives a context bounded by the scan timeout.
func (o Options) ScanContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, o.WithDefaults().ScanTimeout)
}

// DatasourceAdapterFactory creates adapters from the registry.
type DatasourceAdapterFactory interface {
	// NewDatasource creates an adapter for the given datasource type.
	NewDatasource(ctx context.Context, dsType string, config map[string]any) (Datasource, error)

	// ListTypes returns info for all registered adapter types.
	ListTypes() []DatasourceAdapterInfo
}

type registryFactory struct {
	opts Options
}

// NewDatasourceAdapterFactory returns a factory that uses the global registry.
func NewDatasourceAdapterFactory(opts Options) DatasourceAdapterFactory {
	return &registryFactory{
		opts: opts.WithDefaults(),
	}
}

func (f *registryFactory) NewDatasource(ctx context.Context, dsType string, config map[string]any) (Datasource, error) {
	factory := GetFactory(dsType)
	if factory == nil {
		return nil, fmt.Errorf("%w: %s (not compiled in)", apperrors.ErrUnsupportedDatasource, dsType)
	}
	return factory(ctx, config, f.opts)
}

func (f *registryFactory) ListTypes() []DatasourceAdapterInfo {
	return RegisteredAdapters()
}

// Ensure registryFactory implements DatasourceAdapterFactory at compile time.
var _ DatasourceAdapterFactory = (*registryFactory)(nil)
