package utils

import "testing"

func TestAtoiDefault(t *testing.T) {
	cases := []struct {
		in   string
		def  int
		want int
	}{
		{"42", 0, 42},
		{"", 10, 10},
		{"x", 5, 5},
		{"-3", 1, -3},
	}
	for _, tc := range cases {
		if got := AtoiDefault(tc.in, tc.def); got != tc.want {
			t.Errorf("AtoiDefault(%q, %d) = %d, want %d", tc.in, tc.def, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if Clamp(0, 1, 10) != 1 || Clamp(11, 1, 10) != 10 || Clamp(5, 1, 10) != 5 {
		t.Fatal("clamp mismatch")
	}
}

func TestPage(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	got, pages := Page(items, 2, 2)
	if pages != 3 || len(got) != 2 || got[0] != 3 {
		t.Fatalf("page 2 = %v of %d", got, pages)
	}
	if got, _ := Page(items, 3, 2); len(got) != 1 || got[0] != 5 {
		t.Fatalf("last page = %v", got)
	}
	if got, _ := Page(items, 4, 2); len(got) != 0 {
		t.Fatalf("past the end = %v", got)
	}
	if got, pages := Page([]int{}, 1, 10); len(got) != 0 || pages != 0 {
		t.Fatalf("empty = %v of %d", got, pages)
	}
}
