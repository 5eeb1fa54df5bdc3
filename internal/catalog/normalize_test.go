package catalog

import "testing"

func TestNormalize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "lowercases", in: "Ivan Petrov", want: "ivan petrov"},
		{name: "trims", in: "  Ivan Petrov  ", want: "ivan petrov"},
		{name: "collapses inner whitespace", in: "Ivan \t Petrov", want: "ivan petrov"},
		{name: "strips diacritics", in: "José García", want: "jose garcia"},
		{name: "cyrillic with diacritic", in: "Пётр Иванов", want: "петр иванов"},
		{name: "empty", in: "   ", want: ""},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeCollisions(t *testing.T) {
	t.Parallel()
	pairs := [][2]string{
		{"José García", "jose garcia"},
		{"JOSE GARCIA", "  Jose   Garcia "},
		{"Ivan Petrov", "IVAN PETROV"},
	}
	for _, p := range pairs {
		if Normalize(p[0]) != Normalize(p[1]) {
			t.Fatalf("expected %q and %q to normalize identically (%q vs %q)",
				p[0], p[1], Normalize(p[0]), Normalize(p[1]))
		}
	}
}

func TestCapitalizeWord(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"ivan", "Ivan"},
		{"PETROV", "Petrov"},
		{"josé", "José"},
		{"и", "И"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := CapitalizeWord(tt.in); got != tt.want {
			t.Fatalf("CapitalizeWord(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
