package types

import (
	"encoding/json"
	"testing"
)

func TestQuantityString(t *testing.T) {
	cases := []struct {
		q    Quantity
		want string
	}{
		{NewQuantityFromInt(3), "3.0000"},
		{NewQuantityFromInt64Scaled(25000), "2.5000"},
		{NewQuantityFromInt64Scaled(-15), "-0.0015"},
		{0, "0.0000"},
	}
	for _, tc := range cases {
		if got := tc.q.String(); got != tc.want {
			t.Errorf("Quantity(%d).String(): expected %q, got %q", tc.q, tc.want, got)
		}
	}
}

func TestQuantityJSONRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want Quantity
	}{
		{`3`, NewQuantityFromInt(3)},
		{`2.5`, NewQuantityFromInt64Scaled(25000)},
		{`"2.5"`, NewQuantityFromInt64Scaled(25000)},
		{`-0.0015`, NewQuantityFromInt64Scaled(-15)},
		{`2.50009`, NewQuantityFromInt64Scaled(25000)}, // extra digits truncated
		{`null`, 0},
	}
	for _, tc := range cases {
		var q Quantity
		if err := json.Unmarshal([]byte(tc.in), &q); err != nil {
			t.Errorf("unmarshal %s: %v", tc.in, err)
			continue
		}
		if q != tc.want {
			t.Errorf("unmarshal %s: expected %d, got %d", tc.in, tc.want, q)
		}
	}

	out, err := json.Marshal(NewQuantityFromInt64Scaled(25000))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(out) != "2.5000" {
		t.Errorf("expected JSON number 2.5000, got %s", out)
	}
}

func TestQuantityArithmetic(t *testing.T) {
	q := NewQuantityFromInt(5)
	if !q.IsPositive() || q.IsNegative() || q.IsZero() {
		t.Error("sign predicates broken for positive quantity")
	}
	if q.Neg() != NewQuantityFromInt(-5) {
		t.Error("Neg broken")
	}
	if q.Neg().Abs() != q {
		t.Error("Abs broken")
	}
	if q.Float64() != 5.0 {
		t.Errorf("expected 5.0, got %f", q.Float64())
	}
}
