// Package datasource is the SQL gateway tool: schema discovery plus
// read-only queries whose full result sets land in the workspace as CSV
// artifacts that later steps reference by filename.
package datasource

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	maestro "github.com/maestroflow/maestro"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const previewRows = 5

// Tool exposes list_tables, get_table_schema and query_data over one
// database connection.
type Tool struct {
	db        *sql.DB
	driver    string
	workspace string
}

// Open connects to the configured database. driver is "sqlite" or
// "postgres"; CSV artifacts are written under workspace.
func Open(driver, dsn, workspace string) (*Tool, error) {
	name := driver
	if driver == "postgres" {
		name = "pgx"
	}
	db, err := sql.Open(name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s datasource: %w", driver, err)
	}
	return &Tool{db: db, driver: driver, workspace: workspace}, nil
}

// Close releases the database connection.
func (t *Tool) Close() error { return t.db.Close() }

func (t *Tool) Definitions() []maestro.ToolDefinition {
	return []maestro.ToolDefinition{
		{
			Name:        "list_tables",
			Description: "List all tables available in the connected data source.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
		},
		{
			Name:        "get_table_schema",
			Description: "Get the column names and types of a table.",
			Parameters:  json.RawMessage(`{"type":"object","properties":{"table":{"type":"string","description":"Table name"}},"required":["table"]}`),
		},
		{
			Name: "query_data",
			Description: "Run a read-only SQL query. The full result set is saved as a CSV file in the workspace; " +
				"the observation contains the CSV filename, a preview of the first rows, and the total row count.",
			Parameters: json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"SQL SELECT statement"}},"required":["query"]}`),
		},
	}
}

func (t *Tool) Execute(ctx context.Context, name string, args json.RawMessage) (maestro.ToolResult, error) {
	var params struct {
		Table string `json:"table"`
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return errResult("invalid args: " + err.Error()), nil
	}

	switch name {
	case "list_tables":
		return t.listTables(ctx)
	case "get_table_schema":
		return t.tableSchema(ctx, params.Table)
	case "query_data":
		return t.queryData(ctx, params.Query)
	default:
		return errResult("unknown datasource tool: " + name), nil
	}
}

// errResult wraps a failure as the JSON observation shape the agent and
// summarizer expect.
func errResult(msg string) maestro.ToolResult {
	body, _ := json.Marshal(map[string]any{"error": true, "message": msg})
	return maestro.ToolResult{Output: string(body)}
}

func okResult(data any) maestro.ToolResult {
	body, _ := json.Marshal(map[string]any{"error": false, "data": data})
	return maestro.ToolResult{Output: string(body)}
}

func (t *Tool) listTables(ctx context.Context) (maestro.ToolResult, error) {
	var query string
	switch t.driver {
	case "postgres":
		query = `SELECT table_name FROM information_schema.tables WHERE table_schema = 'public' ORDER BY table_name`
	default:
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	}
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return errResult(err.Error()), nil
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return errResult(err.Error()), nil
		}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return errResult(err.Error()), nil
	}
	return okResult(map[string]any{"tables": tables}), nil
}

func (t *Tool) tableSchema(ctx context.Context, table string) (maestro.ToolResult, error) {
	if table == "" {
		return errResult("table is required"), nil
	}
	if !validIdent(table) {
		return errResult("invalid table name: " + table), nil
	}

	type column struct {
		Name string `json:"name"`
		Type string `json:"type"`
	}
	var cols []column
	switch t.driver {
	case "postgres":
		rows, err := t.db.QueryContext(ctx,
			`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 ORDER BY ordinal_position`, table)
		if err != nil {
			return errResult(err.Error()), nil
		}
		defer rows.Close()
		for rows.Next() {
			var c column
			if err := rows.Scan(&c.Name, &c.Type); err != nil {
				return errResult(err.Error()), nil
			}
			cols = append(cols, c)
		}
	default:
		rows, err := t.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%q)", table))
		if err != nil {
			return errResult(err.Error()), nil
		}
		defer rows.Close()
		for rows.Next() {
			var (
				cid       int
				name, typ string
				notnull   int
				dflt      sql.NullString
				pk        int
			)
			if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
				return errResult(err.Error()), nil
			}
			cols = append(cols, column{Name: name, Type: typ})
		}
	}
	if len(cols) == 0 {
		return errResult("no such table: " + table), nil
	}
	return okResult(map[string]any{"table": table, "columns": cols}), nil
}

// queryData runs the query, writes the full result set to
// query_result_<unix>.csv in the workspace, and returns the filename with
// a preview.
func (t *Tool) queryData(ctx context.Context, query string) (maestro.ToolResult, error) {
	if strings.TrimSpace(query) == "" {
		return errResult("query is required"), nil
	}

	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return errResult(err.Error()), nil
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return errResult(err.Error()), nil
	}

	if err := os.MkdirAll(t.workspace, 0o755); err != nil {
		return errResult(err.Error()), nil
	}
	filename := fmt.Sprintf("query_result_%d.csv", time.Now().Unix())
	f, err := os.Create(filepath.Join(t.workspace, filename))
	if err != nil {
		return errResult(err.Error()), nil
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		return errResult(err.Error()), nil
	}

	var preview [][]string
	total := 0
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return errResult(err.Error()), nil
		}
		record := make([]string, len(cols))
		for i, v := range values {
			record[i] = renderValue(v)
		}
		if err := w.Write(record); err != nil {
			return errResult(err.Error()), nil
		}
		if total < previewRows {
			preview = append(preview, record)
		}
		total++
	}
	if err := rows.Err(); err != nil {
		return errResult(err.Error()), nil
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return errResult(err.Error()), nil
	}

	return okResult(map[string]any{
		"csv_filename": filename,
		"columns":      cols,
		"preview":      preview,
		"total_rows":   total,
	}), nil
}

func renderValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case time.Time:
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func validIdent(s string) bool {
	for _, r := range s {
		if !(r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			return false
		}
	}
	return s != ""
}

// compile-time check
var _ maestro.Tool = (*Tool)(nil)
