package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"gorm/routeorm"
	"gorm/routeorm/config"
	"gorm/routeorm/dbctx"
)

func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "routeorm",
		Short: "Inspect routeorm data sources and routing decisions.",
		Long: `Inspect routeorm data sources and routing decisions.

Every command reads the configuration file given with --config; ROUTEORM_*
environment variables override its keys. No database connection is opened.
`,
		SilenceUsage: true,
	}
	rc.PersistentFlags().StringP("config", "c", "routeorm.yaml", "Configuration file to read from.")

	rc.AddCommand(newDataSourcesCommand(stdout))
	rc.AddCommand(newCapsCommand(stdout))
	rc.AddCommand(newRouteCommand(stdout))

	rc.SetOut(stdout)
	rc.SetErr(stderr)
	return rc
}

// load reads the configuration and builds an engine over a private registry
// seeded with the configured data sources.
func load(cmd *cobra.Command) (*config.Config, *routeorm.Engine, *dbctx.Registry, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, nil, nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, nil, err
	}
	registry := dbctx.NewRegistry()
	for key, ds := range cfg.DataSources {
		props := map[string]string{"db-type": ds.DBType}
		for k, v := range ds.Properties {
			props[k] = v
		}
		if err := registry.RegisterDataSource(dbctx.DataSourceInfo{Key: key, Description: ds.Description, Properties: props}); err != nil {
			return nil, nil, nil, err
		}
	}
	engine, err := cfg.NewEngine(routeorm.WithRegistry(registry))
	if err != nil {
		return nil, nil, nil, err
	}
	return cfg, engine, registry, nil
}

func newDataSourcesCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "datasources",
		Short: "List every data source the routing configuration can reach.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, engine, registry, err := load(cmd)
			if err != nil {
				return err
			}
			for _, key := range engine.AvailableDataSources() {
				info, ok := registry.DataSource(key)
				if !ok {
					fmt.Fprintf(stdout, "%s\t(not configured)\n", key)
					continue
				}
				fmt.Fprintf(stdout, "%s\t%s\t%s\n", key, info.Properties["db-type"], info.Description)
			}
			return nil
		},
	}
}

func newCapsCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "caps",
		Short: "Show which routing features are enabled.",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, engine, _, err := load(cmd)
			if err != nil {
				return err
			}
			cfg := engine.Config()
			fmt.Fprintf(stdout, "default-data-source\t%s\n", cfg.DefaultDataSource)
			fmt.Fprintf(stdout, "read-write-split\t%t\n", engine.IsReadWriteSplitEnabled())
			fmt.Fprintf(stdout, "multi-tenant\t%t\n", engine.IsMultiTenantEnabled())
			fmt.Fprintf(stdout, "sharding\t%t\n", engine.IsShardingEnabled())
			fmt.Fprintf(stdout, "custom-rules\t%d\n", len(cfg.Rules))
			fmt.Fprintf(stdout, "trace-route-mode\t%t\n", cfg.TraceRouteMode)
			return nil
		},
	}
}

func newRouteCommand(stdout io.Writer) *cobra.Command {
	var (
		table      string
		op         string
		dataSource string
		user       string
		write      bool
		params     []string
		headers    []string
	)
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Explain where one operation would be routed.",
		Example: `  routeorm route --table orders --op SELECT --param user_id=7
  routeorm route --table orders --op INSERT --header X-Tenant-Id=acme`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, engine, _, err := load(cmd)
			if err != nil {
				return err
			}
			command := routeorm.CommandType(strings.ToUpper(op))
			b := routeorm.NewRoutingContext(table, command)
			for _, p := range params {
				k, v, err := pair(p)
				if err != nil {
					return err
				}
				b.Param(k, paramValue(v))
			}
			for _, h := range headers {
				k, v, err := pair(h)
				if err != nil {
					return err
				}
				b.Header(k, v)
			}
			if user != "" {
				b.UserInfo(user)
			}
			if write {
				b.Write()
			}

			ctx := dbctx.With(context.Background())
			if dataSource != "" {
				if err := dbctx.SetDataSource(ctx, dataSource); err != nil {
					return err
				}
			}
			res, err := engine.Route(ctx, b.Build())
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout, "data-source\t%s\n", res.DataSource)
			fmt.Fprintf(stdout, "table\t%s\n", res.Table)
			fmt.Fprintf(stdout, "stage\t%s\n", res.Stage)
			fmt.Fprintf(stdout, "reason\t%s\n", res.Reason)
			fmt.Fprintf(stdout, "table-reason\t%s\n", res.TableReason)
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&table, "table", "t", "", "Logical table name.")
	flags.StringVarP(&op, "op", "o", string(routeorm.SELECT), "Operation: SELECT, INSERT, UPDATE, DELETE or BATCH_*.")
	flags.StringVar(&dataSource, "data-source", "", "Data source forced through the context.")
	flags.StringVar(&user, "user", "", "User info passed to the tenant resolver.")
	flags.BoolVar(&write, "write", false, "Force a read to be routed as a write.")
	flags.StringArrayVarP(&params, "param", "p", nil, "Routing parameter k=v, repeatable.")
	flags.StringArrayVarP(&headers, "header", "H", nil, "Request header k=v, repeatable.")
	_ = cmd.MarkFlagRequired("table")
	return cmd
}

func pair(s string) (string, string, error) {
	k, v, ok := strings.Cut(s, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return "", "", errors.Errorf("expected k=v, got %q", s)
	}
	return strings.TrimSpace(k), v, nil
}

// paramValue keeps integers numeric so mod and range sharding see numbers.
func paramValue(v string) any {
	if strings.Trim(v, "-0123456789") != "" {
		return v
	}
	if n, err := cast.ToInt64E(v); err == nil {
		return n
	}
	return v
}
