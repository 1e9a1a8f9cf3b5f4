package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/gormx"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/mysqlgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/postgresgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConfig "github.com/grand-thief-cash/chaos/outreach/internal/config"
)

func newMigrateCmd() *cobra.Command {
	var (
		flags commonFlags
		dir   string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations for the configured storage driver",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), flags.newApp(), dir)
		},
	}
	flags.bind(cmd)
	cmd.Flags().StringVar(&dir, "dir", "migrations", "migrations root; files are read from <dir>/<driver>")
	return cmd
}

// runMigrate starts only logging and the configured gorm component, not the whole graph.
func runMigrate(ctx context.Context, app *application.App, dir string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := app.Boot(); err != nil {
		return err
	}
	biz := bizConfig.GetBizConfig()
	biz.ApplyDefaults()
	st := biz.Storage

	var started []core.Component
	defer func() {
		for i := len(started) - 1; i >= 0; i-- {
			_ = started[i].Stop(context.Background())
		}
	}()
	start := func(name string) (core.Component, error) {
		comp, err := app.GetComponent(name)
		if err != nil {
			return nil, err
		}
		if err := comp.Start(ctx); err != nil {
			return nil, fmt.Errorf("start %s: %w", name, err)
		}
		started = append(started, comp)
		return comp, nil
	}
	if _, err := app.GetComponent(consts.COMPONENT_LOGGING); err == nil {
		if _, err := start(consts.COMPONENT_LOGGING); err != nil {
			return err
		}
	}

	var (
		db  *gorm.DB
		err error
	)
	switch st.Driver {
	case "mysql":
		comp, serr := start(consts.COMPONENT_MYSQL_GORM)
		if serr != nil {
			return fmt.Errorf("mysql_gorm not available: %w", serr)
		}
		g, ok := comp.(*mysqlgorm.GormComponent)
		if !ok {
			return fmt.Errorf("mysql_gorm type assertion failed")
		}
		db, err = g.GetDB(st.DataSource)
	case "postgres":
		comp, serr := start(consts.COMPONENT_POSTGRES_GORM)
		if serr != nil {
			return fmt.Errorf("postgres_gorm not available: %w", serr)
		}
		g, ok := comp.(*postgresgorm.PostgresGormComponent)
		if !ok {
			return fmt.Errorf("postgres_gorm type assertion failed")
		}
		db, err = g.GetDB(st.DataSource)
	default:
		return fmt.Errorf("unsupported storage driver %q", st.Driver)
	}
	if err != nil {
		return err
	}

	path := filepath.Join(dir, st.Driver)
	applied, err := gormx.RunMigrations(ctx, db, path)
	if err != nil {
		return fmt.Errorf("migrate %s: %w", path, err)
	}
	if len(applied) == 0 {
		logging.Infof(ctx, "schema up to date (%s)", path)
		return nil
	}
	for _, v := range applied {
		logging.Infof(ctx, "applied migration %s", v)
	}
	return nil
}
