// Package catalog answers similarity-ranked product lookups.
package catalog

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/georgysavva/scany/v2/sqlscan"
	"modernc.org/sqlite"

	"github.com/retailchat-ai/server/internal/agent/model"
	errx "github.com/retailchat-ai/server/internal/core/error"
	logx "github.com/retailchat-ai/server/pkg/logger"
)

// Config is processed by envconfig under the CATALOG_ prefix.
type Config struct {
	DSN      string `required:"true"`
	Table    string `default:"product_catalog"`
	SeedPath string `split_words:"true"`
}

// Catalog ranks products by similarity of their name to text and returns the top n.
type Catalog interface {
	Similar(ctx context.Context, text string, n int) ([]model.Product, error)
}

const similarityFunc = "ai_similarity"

var (
	registerOnce sync.Once
	registerErr  error

	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

func registerFunctions() error {
	registerOnce.Do(func() {
		registerErr = sqlite.RegisterDeterministicScalarFunction(similarityFunc, 2,
			func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
				return Similarity(text(args[0]), text(args[1])), nil
			})
	})
	return registerErr
}

func text(v driver.Value) string {
	switch s := v.(type) {
	case string:
		return s
	case []byte:
		return string(s)
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

type SQLite struct {
	db    *sql.DB
	table string
}

// Open connects to the catalog database and creates the table when missing.
func Open(ctx context.Context, cfg Config) (*SQLite, error) {
	if cfg.Table == "" {
		cfg.Table = "product_catalog"
	}
	if !identRe.MatchString(cfg.Table) {
		return nil, errx.Config(fmt.Sprintf("invalid catalog table name %q", cfg.Table), nil)
	}
	if err := registerFunctions(); err != nil {
		return nil, fmt.Errorf("register %s: %w", similarityFunc, err)
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if strings.Contains(cfg.DSN, ":memory:") || strings.Contains(cfg.DSN, "mode=memory") {
		// every connection to an in-memory database is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping catalog: %w", err)
	}

	s := &SQLite{db: db, table: cfg.Table}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		company_name TEXT NOT NULL DEFAULT ''
	)`, s.table))
	return err
}

func (s *SQLite) Similar(ctx context.Context, text string, n int) ([]model.Product, error) {
	if n <= 0 {
		n = 1
	}
	query := fmt.Sprintf(`
		SELECT name, id, description, company_name
		FROM %s
		ORDER BY %s(name, ?) DESC, id ASC
		LIMIT ?`, s.table, similarityFunc)

	var products []model.Product
	if err := sqlscan.Select(ctx, s.db, &products, query, text, n); err != nil {
		logx.Error().Err(err).Str("query_text", text).Msg("catalog similarity query failed")
		return nil, errx.Upstream("the product catalog is unavailable", err)
	}
	return products, nil
}

func (s *SQLite) Count(ctx context.Context) (int, error) {
	var n int
	if err := sqlscan.Get(ctx, s.db, &n, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)); err != nil {
		return 0, err
	}
	return n, nil
}

var seedColumns = []string{"name", "id", "description", "company_name"}

// Seed loads products from CSV with a name,id,description,company_name
// header, replacing rows with the same id.
func (s *SQLite) Seed(ctx context.Context, r io.Reader) (int, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		return 0, errx.Validation("catalog seed file has no header", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, c := range seedColumns {
		if _, ok := idx[c]; !ok {
			return 0, errx.Validation(fmt.Sprintf("catalog seed file has no %q column", c), nil)
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT OR REPLACE INTO %s (name, id, description, company_name) VALUES (?, ?, ?, ?)", s.table))
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	n := 0
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, errx.Validation(fmt.Sprintf("catalog seed file is malformed near row %d", n+1), err)
		}
		get := func(c string) string {
			if i := idx[c]; i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		if get("id") == "" || get("name") == "" {
			continue
		}
		if _, err := stmt.ExecContext(ctx, get("name"), get("id"), get("description"), get("company_name")); err != nil {
			return 0, fmt.Errorf("insert product %s: %w", get("id"), err)
		}
		n++
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	logx.Info().Int("products", n).Str("table", s.table).Msg("catalog seeded")
	return n, nil
}

var _ Catalog = (*SQLite)(nil)
