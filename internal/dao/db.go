package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/mysqlgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/postgresgorm"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/consts"
	"github.com/grand-thief-cash/chaos/outreach/pkg/application/core"

	bizConsts "github.com/grand-thief-cash/chaos/outreach/internal/consts"
)

// ErrLeaseLost is returned by lease-guarded transitions that matched no row.
var ErrLeaseLost = errors.New("lease lost")

// DB selects the gorm datasource of the configured driver for every DAO.
type DB struct {
	*core.BaseComponent
	MySQL    *mysqlgorm.GormComponent            `infra:"dep:mysql_gorm?"`
	Postgres *postgresgorm.PostgresGormComponent `infra:"dep:postgres_gorm?"`

	driver string
	dsName string
	db     *gorm.DB
}

func NewDB(driver, dsName string) *DB {
	return &DB{
		BaseComponent: core.NewBaseComponent(bizConsts.COMP_DB, consts.COMPONENT_LOGGING),
		driver:        driver,
		dsName:        dsName,
	}
}

// NewDBFromGorm wraps an opened connection. Used by tests and the migrate command.
func NewDBFromGorm(db *gorm.DB) *DB {
	d := &DB{BaseComponent: core.NewBaseComponent(bizConsts.COMP_DB), db: db}
	d.SetActive(true)
	return d
}

func (d *DB) Start(ctx context.Context) error {
	if err := d.BaseComponent.Start(ctx); err != nil {
		return err
	}
	var (
		db  *gorm.DB
		err error
	)
	switch d.driver {
	case "mysql":
		if d.MySQL == nil {
			return fmt.Errorf("storage driver mysql requires the mysql_gorm component")
		}
		db, err = d.MySQL.GetDB(d.dsName)
	case "postgres":
		if d.Postgres == nil {
			return fmt.Errorf("storage driver postgres requires the postgres_gorm component")
		}
		db, err = d.Postgres.GetDB(d.dsName)
	default:
		return fmt.Errorf("unsupported storage driver %q", d.driver)
	}
	if err != nil {
		return fmt.Errorf("get gorm db %s failed: %w", d.dsName, err)
	}
	d.db = db
	logging.Infof(ctx, "outreach storage on %s datasource %s", d.driver, d.dsName)
	return nil
}

func (d *DB) Gorm() *gorm.DB { return d.db }

func (d *DB) Dialect() string {
	if d.db == nil {
		return ""
	}
	return d.db.Dialector.Name()
}

// SupportsSkipLocked is true for mysql 8 and postgres.
func (d *DB) SupportsSkipLocked() bool {
	switch d.Dialect() {
	case "mysql", "postgres":
		return true
	}
	return false
}

// forUpdate adds a row lock where the dialect has one.
func forUpdate(db *gorm.DB, dialect string) *gorm.DB {
	switch dialect {
	case "mysql", "postgres":
		return db.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return db
}

// IsRetryable reports deadlocks, lock wait timeouts and serialization failures.
func IsRetryable(err error) bool {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number == 1213 || me.Number == 1205
	}
	var pe *pgconn.PgError
	if errors.As(err, &pe) {
		switch pe.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}

func IsNotFound(err error) bool { return errors.Is(err, gorm.ErrRecordNotFound) }
