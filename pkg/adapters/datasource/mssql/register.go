package mssql

import (
	"context"

	"github.com/ekaya-inc/ekaya-profiler/pkg/adapters/datasource"
)

func init() {
	datasource.Register(datasource.DatasourceAdapterRegistration{
		Info: datasource.DatasourceAdapterInfo{
			Type:        "mssql",
			DisplayName: "Microsoft SQL Server",
			Description: "Profile SQL Server 2019+, Azure SQL Database",
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
