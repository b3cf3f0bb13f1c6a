package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type record struct {
	Name  string  `json:"name" yaml:"name"`
	Score float32 `json:"score" yaml:"score"`
}

type records []record

func (r records) Table() Table {
	t := Table{Headers: []string{"NAME", "SCORE"}}
	for _, x := range r {
		t.Rows = append(t.Rows, []string{x.Name, FormatBar(x.Score, 4)})
	}
	return t
}

func TestOutput_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(record{"test", 0.5}, OutputOptions{Format: FormatJSON, Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Invalid JSON output: %v", err)
	}
	if got["name"] != "test" {
		t.Errorf("name = %v, want %q", got["name"], "test")
	}
}

func TestOutput_YAML(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(record{"test", 1}, OutputOptions{Writer: &buf}); err != nil {
		t.Fatalf("Output error: %v", err)
	}
	if !strings.Contains(buf.String(), "name: test") {
		t.Errorf("Output should contain 'name: test', got: %s", buf.String())
	}
}

func TestOutput_Msgpack(t *testing.T) {
	var buf bytes.Buffer
	if err := Output(record{"test", 0.25}, OutputOptions{Format: FormatMsgpack, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := msgpack.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["name"] != "test" {
		t.Errorf("decoded = %v", got)
	}
}

func TestOutput_Table(t *testing.T) {
	var buf bytes.Buffer
	styles := PlainStyles()
	err := Output(records{{"alice", 1}, {"bob", 0}}, OutputOptions{Format: FormatTable, Writer: &buf, Styles: &styles})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"NAME", "alice", "████", "····", "╭", "╯"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}

	if err := Output(record{}, OutputOptions{Format: FormatTable, Writer: &buf}); err == nil {
		t.Error("expected error for non-tabular result")
	}
}

func TestOutput_Raw(t *testing.T) {
	var buf bytes.Buffer
	if err := Output("hello", OutputOptions{Format: FormatRaw, Writer: &buf}); err != nil {
		t.Fatal(err)
	}
	if buf.String() != "hello" {
		t.Errorf("raw = %q", buf.String())
	}
}

func TestOutput_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := Output(record{"f", 0}, OutputOptions{Format: FormatJSON, File: path}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"name": "f"`) {
		t.Errorf("file = %s", data)
	}
}

func TestOutput_Unsupported(t *testing.T) {
	if err := Output(1, OutputOptions{Format: "xml", Writer: &bytes.Buffer{}}); err == nil {
		t.Error("expected error")
	}
}

func TestParseFormat(t *testing.T) {
	for _, s := range []string{"", "yaml", "json", "msgpack", "table", "raw"} {
		if _, err := ParseFormat(s); err != nil {
			t.Errorf("ParseFormat(%q) = %v", s, err)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("expected error for csv")
	}
}

func TestTableRender(t *testing.T) {
	tbl := Table{
		Headers:  []string{"A", "LONG HEADER"},
		Rows:     [][]string{{"1", "x"}, {"22"}, {"3", "a very long cell value"}},
		Footer:   "3 rows",
		MaxWidth: 10,
	}
	out := tbl.Render(PlainStyles())
	lines := strings.Split(out, "\n")
	if len(lines) != 8 {
		t.Fatalf("got %d lines:\n%s", len(lines), out)
	}
	width := len([]rune(lines[0]))
	for i, l := range lines[:7] {
		if n := len([]rune(l)); n != width {
			t.Errorf("line %d width %d, want %d: %q", i, n, width, l)
		}
	}
	if !strings.Contains(out, "a very lo…") {
		t.Errorf("long cell not truncated:\n%s", out)
	}
	if lines[7] != "3 rows" {
		t.Errorf("footer = %q", lines[7])
	}
}
