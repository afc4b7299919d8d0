package datasource

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func openTestDB(t *testing.T) (*Tool, string) {
	t.Helper()
	workspace := t.TempDir()
	tool, err := Open("sqlite", filepath.Join(t.TempDir(), "test.db"), workspace)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { tool.Close() })

	stmts := []string{
		`CREATE TABLE sales (id INTEGER PRIMARY KEY, region TEXT, amount REAL)`,
		`CREATE TABLE regions (code TEXT)`,
		`INSERT INTO sales (region, amount) VALUES ('west', 10.5), ('east', 20.0), ('west', 5.0),
			('north', 1.0), ('south', 2.0), ('east', 3.0), ('west', 4.0)`,
	}
	for _, s := range stmts {
		if _, err := tool.db.Exec(s); err != nil {
			t.Fatal(err)
		}
	}
	return tool, workspace
}

func call(t *testing.T, tool *Tool, name, args string) map[string]any {
	t.Helper()
	res, err := tool.Execute(context.Background(), name, json.RawMessage(args))
	if err != nil {
		t.Fatal(err)
	}
	var body map[string]any
	if err := json.Unmarshal([]byte(res.Output), &body); err != nil {
		t.Fatalf("observation not JSON: %q", res.Output)
	}
	return body
}

func TestListTables(t *testing.T) {
	tool, _ := openTestDB(t)
	body := call(t, tool, "list_tables", `{}`)
	if body["error"] != false {
		t.Fatalf("unexpected error: %v", body)
	}
	data := body["data"].(map[string]any)
	tables := data["tables"].([]any)
	if len(tables) != 2 || tables[0] != "regions" || tables[1] != "sales" {
		t.Errorf("tables: %v", tables)
	}
}

func TestGetTableSchema(t *testing.T) {
	tool, _ := openTestDB(t)
	body := call(t, tool, "get_table_schema", `{"table":"sales"}`)
	if body["error"] != false {
		t.Fatalf("unexpected error: %v", body)
	}
	data := body["data"].(map[string]any)
	cols := data["columns"].([]any)
	if len(cols) != 3 {
		t.Fatalf("columns: %v", cols)
	}
	first := cols[0].(map[string]any)
	if first["name"] != "id" || first["type"] != "INTEGER" {
		t.Errorf("first column: %v", first)
	}
}

func TestGetTableSchemaErrors(t *testing.T) {
	tool, _ := openTestDB(t)
	for name, args := range map[string]string{
		"missing table": `{}`,
		"unknown table": `{"table":"nope"}`,
		"hostile name":  `{"table":"sales; drop table sales"}`,
	} {
		body := call(t, tool, "get_table_schema", args)
		if body["error"] != true {
			t.Errorf("%s: expected error observation, got %v", name, body)
		}
	}
}

func TestQueryDataWritesCSVArtifact(t *testing.T) {
	tool, workspace := openTestDB(t)
	body := call(t, tool, "query_data", `{"query":"SELECT region, amount FROM sales ORDER BY id"}`)
	if body["error"] != false {
		t.Fatalf("unexpected error: %v", body)
	}
	data := body["data"].(map[string]any)

	name, _ := data["csv_filename"].(string)
	if name == "" {
		t.Fatal("csv_filename missing")
	}
	if data["total_rows"] != float64(7) {
		t.Errorf("total_rows: %v", data["total_rows"])
	}
	preview := data["preview"].([]any)
	if len(preview) != 5 {
		t.Errorf("preview should cap at 5 rows, got %d", len(preview))
	}
	cols := data["columns"].([]any)
	if len(cols) != 2 || cols[0] != "region" {
		t.Errorf("columns: %v", cols)
	}

	// the CSV holds header + all rows, not just the preview
	f, err := os.Open(filepath.Join(workspace, name))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 8 {
		t.Errorf("expected header + 7 rows in CSV, got %d", len(records))
	}
	if records[0][0] != "region" || records[1][0] != "west" {
		t.Errorf("csv head: %v", records[:2])
	}
}

func TestQueryDataErrors(t *testing.T) {
	tool, _ := openTestDB(t)
	for name, args := range map[string]string{
		"empty query": `{"query":"  "}`,
		"bad sql":     `{"query":"SELEC nonsense"}`,
	} {
		body := call(t, tool, "query_data", args)
		if body["error"] != true {
			t.Errorf("%s: expected error observation, got %v", name, body)
		}
		if msg, _ := body["message"].(string); msg == "" {
			t.Errorf("%s: error message missing", name)
		}
	}
}

func TestUnknownFunctionName(t *testing.T) {
	tool, _ := openTestDB(t)
	body := call(t, tool, "drop_everything", `{}`)
	if body["error"] != true {
		t.Errorf("expected error observation, got %v", body)
	}
}

func TestValidIdent(t *testing.T) {
	for ident, want := range map[string]bool{
		"sales":      true,
		"Sales_2024": true,
		"":           false,
		"a b":        false,
		`a"b`:        false,
		"tbl;drop":   false,
	} {
		if got := validIdent(ident); got != want {
			t.Errorf("validIdent(%q) = %v, want %v", ident, got, want)
		}
	}
}
