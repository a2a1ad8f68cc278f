package api

import "testing"

func TestPredicateLeafOperators(t *testing.T) {
	data := map[string]any{
		"status": "published",
		"score":  float64(85),
		"views":  1200,
		"title":  "Breaking: markets rally",
	}

	cases := []struct {
		name string
		p    Predicate
		want bool
	}{
		{"eq match", Predicate{Field: "status", Operator: OpEq, Value: "published"}, true},
		{"eq mismatch", Predicate{Field: "status", Operator: OpEq, Value: "draft"}, false},
		{"neq", Predicate{Field: "status", Operator: OpNeq, Value: "draft"}, true},
		{"gt", Predicate{Field: "score", Operator: OpGt, Value: 80}, true},
		{"gte boundary", Predicate{Field: "score", Operator: OpGte, Value: 85}, true},
		{"lt", Predicate{Field: "views", Operator: OpLt, Value: 1000}, false},
		{"lte", Predicate{Field: "views", Operator: OpLte, Value: 1200}, true},
		{"numeric string coercion", Predicate{Field: "score", Operator: OpEq, Value: "85"}, true},
		{"contains", Predicate{Field: "title", Operator: OpContains, Value: "markets"}, true},
		{"startsWith", Predicate{Field: "title", Operator: OpStartsWith, Value: "Breaking"}, true},
		{"endsWith", Predicate{Field: "title", Operator: OpEndsWith, Value: "rally"}, true},
		{"endsWith mismatch", Predicate{Field: "title", Operator: OpEndsWith, Value: "crash"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.p.Evaluate(data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("Evaluate = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPredicateMissingField(t *testing.T) {
	data := map[string]any{"present": 1}

	if got, err := (Predicate{Field: "absent", Operator: OpEq, Value: "x"}).Evaluate(data); err != nil || got {
		t.Fatalf("eq on missing field = %v, %v; want false, nil", got, err)
	}
	if got, err := (Predicate{Field: "absent", Operator: OpNeq, Value: "x"}).Evaluate(data); err != nil || !got {
		t.Fatalf("neq on missing field = %v, %v; want true, nil", got, err)
	}
}

func TestPredicateComposites(t *testing.T) {
	data := map[string]any{"age": 30, "country": "NO"}

	all := Predicate{All: []Predicate{
		{Field: "age", Operator: OpGte, Value: 18},
		{Field: "country", Operator: OpEq, Value: "NO"},
	}}
	if got, _ := all.Evaluate(data); !got {
		t.Fatal("All should match when every child matches")
	}

	all.All[1].Value = "SE"
	if got, _ := all.Evaluate(data); got {
		t.Fatal("All should fail when one child fails")
	}

	any := Predicate{Any: []Predicate{
		{Field: "age", Operator: OpLt, Value: 18},
		{Field: "country", Operator: OpEq, Value: "NO"},
	}}
	if got, _ := any.Evaluate(data); !got {
		t.Fatal("Any should match when one child matches")
	}

	nested := Predicate{All: []Predicate{
		{Field: "age", Operator: OpGte, Value: 18},
		{Any: []Predicate{
			{Field: "country", Operator: OpEq, Value: "SE"},
			{Field: "country", Operator: OpEq, Value: "NO"},
		}},
	}}
	if got, _ := nested.Evaluate(data); !got {
		t.Fatal("nested composite should match")
	}
}

func TestPredicateErrors(t *testing.T) {
	data := map[string]any{"x": 1}

	if _, err := (Predicate{Operator: OpEq, Value: 1}).Evaluate(data); err == nil {
		t.Fatal("leaf without field should error")
	}
	if _, err := (Predicate{Field: "x", Operator: "matches", Value: 1}).Evaluate(data); err == nil {
		t.Fatal("unknown operator should error")
	}
}
