package core

import (
	"strings"
	"testing"
)

// ============================================================================
// WhereBuilder Tests
// ============================================================================

func TestNewWhereBuilder(t *testing.T) {
	wb := NewWhereBuilder()

	if wb == nil {
		t.Fatal("NewWhereBuilder returned nil")
	}
	if wb.argIndex != 1 {
		t.Errorf("expected argIndex to be 1, got %d", wb.argIndex)
	}
	if len(wb.conditions) != 0 {
		t.Errorf("expected empty conditions, got %d", len(wb.conditions))
	}
	if len(wb.args) != 0 {
		t.Errorf("expected empty args, got %d", len(wb.args))
	}
}

func TestWhereBuilder_Build_Empty(t *testing.T) {
	wb := NewWhereBuilder()
	whereClause, args := wb.Build()

	if whereClause != "" {
		t.Errorf("expected empty string for no conditions, got %q", whereClause)
	}
	if args != nil {
		t.Errorf("expected nil args for no conditions, got %v", args)
	}
}

func TestWhereBuilder_Add_MultipleConditions(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("a.action", "login")
	wb.Add("a.entity_type", "report")

	whereClause, args := wb.Build()

	expectedClause := " WHERE a.action = $1 AND a.entity_type = $2"
	if whereClause != expectedClause {
		t.Errorf("expected %q, got %q", expectedClause, whereClause)
	}
	if len(args) != 2 || args[0] != "login" || args[1] != "report" {
		t.Errorf("expected args ['login', 'report'], got %v", args)
	}
}

func TestWhereBuilder_Add_EmptyValue_Skipped(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("action", "")
	wb.Add("user_id", nil)
	wb.Add("entity_type", "report")

	whereClause, args := wb.Build()

	expectedClause := " WHERE entity_type = $1"
	if whereClause != expectedClause {
		t.Errorf("expected %q, got %q", expectedClause, whereClause)
	}
	if len(args) != 1 {
		t.Fatalf("expected 1 arg, got %d", len(args))
	}
}

func TestWhereBuilder_NextArgIndex(t *testing.T) {
	wb := NewWhereBuilder()

	if wb.NextArgIndex() != 1 {
		t.Errorf("expected initial NextArgIndex to be 1, got %d", wb.NextArgIndex())
	}

	wb.Add("col1", "val1")
	if wb.NextArgIndex() != 2 {
		t.Errorf("expected NextArgIndex after 1 add to be 2, got %d", wb.NextArgIndex())
	}

	wb.AddFilter(ColumnFilter{DBColumn: "severity", Operator: OpGreaterEq, Value: 3})
	if wb.NextArgIndex() != 3 {
		t.Errorf("expected NextArgIndex after range filter to be 3, got %d", wb.NextArgIndex())
	}
}

func TestWhereBuilder_AddFilters(t *testing.T) {
	tests := []struct {
		name       string
		filters    []ColumnFilter
		wantClause string
		wantArgs   []any
	}{
		{
			name:       "empty filter set",
			wantClause: "",
		},
		{
			name:       "single equals filter",
			filters:    []ColumnFilter{{DBColumn: "gender", Operator: OpEquals, Value: "female"}},
			wantClause: ` WHERE "gender" = $1`,
			wantArgs:   []any{"female"},
		},
		{
			name:       "contains filter",
			filters:    []ColumnFilter{{DBColumn: "medication_name", Operator: OpContains, Value: "ibu"}},
			wantClause: ` WHERE "medication_name" ILIKE $1`,
			wantArgs:   []any{"%ibu%"},
		},
		{
			name:       "contains escapes wildcards",
			filters:    []ColumnFilter{{DBColumn: "medication_name", Operator: OpContains, Value: "50%_x"}},
			wantClause: ` WHERE "medication_name" ILIKE $1`,
			wantArgs:   []any{`%50\%\_x%`},
		},
		{
			name: "range filters keep typed values",
			filters: []ColumnFilter{
				{DBColumn: "severity", Operator: OpGreaterEq, Value: 3},
				{DBColumn: "severity", Operator: OpLessEq, Value: 8},
			},
			wantClause: ` WHERE "severity" >= $1 AND "severity" <= $2`,
			wantArgs:   []any{3, 8},
		},
		{
			name:       "empty string value skipped",
			filters:    []ColumnFilter{{DBColumn: "gender", Operator: OpEquals, Value: ""}},
			wantClause: "",
		},
		{
			name: "multiple filters combined with AND",
			filters: []ColumnFilter{
				{DBColumn: "gender", Operator: OpEquals, Value: "male"},
				{DBColumn: "medication_name", Operator: OpContains, Value: "statin"},
				{DBColumn: "is_verified", Operator: OpEquals, Value: true},
			},
			wantClause: ` WHERE "gender" = $1 AND "medication_name" ILIKE $2 AND "is_verified" = $3`,
			wantArgs:   []any{"male", "%statin%", true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wb := NewWhereBuilder()
			wb.AddFilters(tt.filters)

			gotClause, gotArgs := wb.Build()

			if gotClause != tt.wantClause {
				t.Errorf("clause = %q, want %q", gotClause, tt.wantClause)
			}
			if len(gotArgs) != len(tt.wantArgs) {
				t.Fatalf("args count = %d, want %d", len(gotArgs), len(tt.wantArgs))
			}
			for i, want := range tt.wantArgs {
				if gotArgs[i] != want {
					t.Errorf("arg[%d] = %v, want %v", i, gotArgs[i], want)
				}
			}
		})
	}
}

func TestBuildSingleFilter(t *testing.T) {
	tests := []struct {
		name        string
		filter      ColumnFilter
		argIdx      int
		wantSQL     string
		wantNextIdx int
	}{
		{"equals", ColumnFilter{DBColumn: "gender", Operator: OpEquals, Value: "x"}, 1, `"gender" = $1`, 2},
		{"starts at offset", ColumnFilter{DBColumn: "age", Operator: OpGreaterEq, Value: 18}, 3, `"age" >= $3`, 4},
		{"at most", ColumnFilter{DBColumn: "severity", Operator: OpLessEq, Value: 8}, 5, `"severity" <= $5`, 6},
		{"unknown operator", ColumnFilter{DBColumn: "col", Operator: "unknown", Value: "val"}, 1, "", 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotSQL, _, gotNextIdx := buildSingleFilter(tt.filter, tt.argIdx)
			if gotSQL != tt.wantSQL {
				t.Errorf("SQL = %q, want %q", gotSQL, tt.wantSQL)
			}
			if gotNextIdx != tt.wantNextIdx {
				t.Errorf("nextIdx = %d, want %d", gotNextIdx, tt.wantNextIdx)
			}
		})
	}
}

// ============================================================================
// SetBuilder Tests
// ============================================================================

func TestSetBuilder(t *testing.T) {
	var sb SetBuilder
	sb.Set("severity", 4)
	sb.Set("is_verified", true)
	sb.SetRaw("updated_at = NOW()")

	sets, args, next := sb.Build()

	want := `"severity" = $1, "is_verified" = $2, updated_at = NOW()`
	if sets != want {
		t.Errorf("sets = %q, want %q", sets, want)
	}
	if len(args) != 2 || sb.Len() != 2 {
		t.Errorf("expected 2 args, got %d", len(args))
	}
	if next != 3 {
		t.Errorf("next = %d, want 3", next)
	}
}

// ============================================================================
// quoteIdentifier Tests
// ============================================================================

func TestQuoteIdentifier(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"medication_reports", `"medication_reports"`},
		{"UserName", `"UserName"`},
		{"user", `"user"`},
		{`user"name`, `"user""name"`},
		{`reports"; DROP TABLE "user"; --`, `"reports""; DROP TABLE ""user""; --"`},
		{"", `""`},
	}

	for _, tt := range tests {
		got := quoteIdentifier(tt.input)
		if got != tt.want {
			t.Errorf("quoteIdentifier(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestWhereBuilder_ComplexQuery(t *testing.T) {
	wb := NewWhereBuilder()
	wb.Add("a.user_id", "u-1")
	wb.AddFilters([]ColumnFilter{
		{DBColumn: "severity", Operator: OpGreaterEq, Value: 5},
		{DBColumn: "medication_name", Operator: OpContains, Value: "ibuprofen"},
	})

	whereClause, args := wb.Build()

	for _, cond := range []string{"a.user_id = $1", `"severity" >= $2`, `"medication_name" ILIKE $3`} {
		if !strings.Contains(whereClause, cond) {
			t.Errorf("expected whereClause to contain %q, got %q", cond, whereClause)
		}
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d: %v", len(args), args)
	}
}
