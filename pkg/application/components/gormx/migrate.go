package gormx

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/grand-thief-cash/chaos/outreach/pkg/application/components/logging"
)

const migrationsTable = "schema_migrations"

// RunMigrations applies the *.sql files of dir in lexical order, once each.
// Applied file names are tracked in schema_migrations. Returns the names applied by this call.
func RunMigrations(ctx context.Context, db *gorm.DB, dir string) ([]string, error) {
	files, err := listSQLFiles(dir)
	if err != nil {
		return nil, err
	}
	tx := db.WithContext(ctx)
	if err := tx.Exec("CREATE TABLE IF NOT EXISTS " + migrationsTable +
		" (version VARCHAR(255) NOT NULL PRIMARY KEY, applied_at TIMESTAMP NOT NULL)").Error; err != nil {
		return nil, fmt.Errorf("create %s: %w", migrationsTable, err)
	}
	var done []string
	if err := tx.Raw("SELECT version FROM " + migrationsTable).Scan(&done).Error; err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsTable, err)
	}
	applied := make(map[string]struct{}, len(done))
	for _, v := range done {
		applied[v] = struct{}{}
	}

	var ran []string
	for _, f := range files {
		version := filepath.Base(f)
		if _, ok := applied[version]; ok {
			continue
		}
		b, err := os.ReadFile(f)
		if err != nil {
			return ran, fmt.Errorf("read %s: %w", f, err)
		}
		begin := time.Now()
		for _, stmt := range SplitStatements(string(b)) {
			if err := tx.Exec(stmt).Error; err != nil {
				return ran, fmt.Errorf("migration %s failed: %w", version, err)
			}
		}
		if err := tx.Exec("INSERT INTO "+migrationsTable+" (version, applied_at) VALUES (?, ?)", version, time.Now().UTC()).Error; err != nil {
			return ran, fmt.Errorf("record migration %s: %w", version, err)
		}
		logging.Infof(ctx, "migration %s applied in %s", version, time.Since(begin))
		ran = append(ran, version)
	}
	return ran, nil
}

// SplitStatements cuts a script on ';' and drops blank pieces and '--' comment lines.
func SplitStatements(script string) []string {
	var lines []string
	for _, line := range strings.Split(script, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		lines = append(lines, line)
	}
	var out []string
	for _, part := range strings.Split(strings.Join(lines, "\n"), ";") {
		if s := strings.TrimSpace(part); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func listSQLFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".sql") {
			continue
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	sort.Strings(files)
	return files, nil
}
