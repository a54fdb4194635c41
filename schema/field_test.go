package schema

import (
	"reflect"
	"testing"
)

func TestCoerceList(t *testing.T) {
	cases := []struct {
		raw  string
		want []string
	}{
		{"", []string{}},
		{"a", []string{"a"}},
		{"a,b,c", []string{"a", "b", "c"}},
		{"a, b", []string{"a", " b"}},
		{",", []string{"", ""}},
	}
	for _, c := range cases {
		if got := CoerceList(c.raw); !reflect.DeepEqual(got, c.want) {
			t.Errorf("CoerceList(%q) = %v, want %v", c.raw, got, c.want)
		}
	}
}

func TestCoerceBool(t *testing.T) {
	if CoerceBool("") {
		t.Error("CoerceBool(\"\") = true, want false")
	}
	if !CoerceBool("on") {
		t.Error("CoerceBool(\"on\") = false, want true")
	}
	if !CoerceBool("false") {
		t.Error("CoerceBool(\"false\") = false, want true (presence-only rule)")
	}
}

func TestCoerceFile(t *testing.T) {
	names := []string{"a.env", "", "b.env"}
	contents := [][]byte{[]byte("A=1"), []byte("ignored"), []byte("B=2")}
	got := CoerceFile(names, contents)
	want := SecretFiles{{Name: "a.env", Content: "A=1"}, {Name: "b.env", Content: "B=2"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("CoerceFile() = %v, want %v", got, want)
	}
}

func TestDefaults_IndependentCopies(t *testing.T) {
	a := Defaults()
	b := Defaults()
	a["services"] = append(a["services"].([]string), "mutated")
	if len(b["services"].([]string)) != 0 {
		t.Error("Defaults() shares backing array across calls")
	}
}
