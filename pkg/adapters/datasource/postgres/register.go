package postgres

import (
	"context"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "postgres",
			DisplayName: "PostgreSQL",
			Description: "Profile PostgreSQL 12+, Aurora PostgreSQL, Supabase",
		},
		Factory: func(ctx context.Context, config map[string]any, opts datasource.Options) (datasource.Datasource, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewAdapter(ctx, cfg, opts)
		},
	})
}
