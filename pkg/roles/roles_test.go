package roles

import "testing"

// TestNormalize tests alias mapping and unknown-role pass-through
func TestNormalize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "admin alias", input: "admin", want: "administrator"},
		{name: "admin alias uppercase", input: "ADMIN", want: "administrator"},
		{name: "admin alias mixed case", input: "AdMiN", want: "administrator"},
		{name: "superadmin alias", input: "superadmin", want: "administrator"},
		{name: "dev alias", input: "dev", want: "developer"},
		{name: "developer canonical", input: "Developer", want: "developer"},
		{name: "edit alias", input: "Edit", want: "editor"},
		{name: "contrib alias", input: "contrib", want: "contributor"},
		{name: "view alias", input: "VIEW", want: "viewer"},
		{name: "reader alias", input: "Reader", want: "viewer"},
		{name: "canonical passes through", input: "editor", want: "editor"},
		{name: "unknown is lowercased", input: "Custom-Role", want: "custom-role"},
		{name: "empty string passes through", input: "", want: ""},
		{name: "whitespace passes through", input: "   ", want: "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.input); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestNormalizeDeterministic verifies repeated calls agree
func TestNormalizeDeterministic(t *testing.T) {
	inputs := []string{"admin", "ADMIN", "weird role", "", "\t"}
	for _, input := range inputs {
		first := Normalize(input)
		for i := 0; i < 3; i++ {
			if got := Normalize(input); got != first {
				t.Fatalf("Normalize(%q) not deterministic: %q then %q", input, first, got)
			}
		}
	}
}

// TestHighestPriority tests privilege ordering and the first-element fallback
func TestHighestPriority(t *testing.T) {
	tests := []struct {
		name   string
		input  []string
		want   string
		wantOK bool
	}{
		{
			name:   "administrator wins",
			input:  []string{"viewer", "administrator", "editor"},
			want:   "administrator",
			wantOK: true,
		},
		{
			name:   "aliases resolve before ranking",
			input:  []string{"view", "admin"},
			want:   "administrator",
			wantOK: true,
		},
		{
			name:   "developer beats editor",
			input:  []string{"editor", "dev"},
			want:   "developer",
			wantOK: true,
		},
		{
			name:   "single viewer",
			input:  []string{"viewer"},
			want:   "viewer",
			wantOK: true,
		},
		{
			name:   "all unknown falls back to first",
			input:  []string{"unknown", "custom"},
			want:   "unknown",
			wantOK: true,
		},
		{
			name:   "unknown first element is lowercased",
			input:  []string{"Mystery", "Enigma"},
			want:   "mystery",
			wantOK: true,
		},
		{
			name:   "empty input",
			input:  []string{},
			want:   "",
			wantOK: false,
		},
		{
			name:   "nil input",
			input:  nil,
			want:   "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := HighestPriority(tt.input)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("HighestPriority(%v) = (%q, %v), want (%q, %v)",
					tt.input, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestRank tests that unknown roles rank below every canonical role
func TestRank(t *testing.T) {
	if Rank("administrator") >= Rank("viewer") {
		t.Error("administrator should outrank viewer")
	}
	if Rank("admin") != Rank("administrator") {
		t.Error("alias should rank identically to its canonical role")
	}
	unknownRank := Rank("mystery")
	if unknownRank <= Rank("viewer") {
		t.Error("unknown role should rank below viewer")
	}
	if Rank("other-mystery") != unknownRank {
		t.Error("unknown roles should rank equal to each other")
	}
}

// TestIsCanonical tests canonical-role detection including aliases
func TestIsCanonical(t *testing.T) {
	for _, name := range []string{"administrator", "ADMIN", "dev", "editor", "contrib", "reader"} {
		if !IsCanonical(name) {
			t.Errorf("IsCanonical(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"", "mystery", "root"} {
		if IsCanonical(name) {
			t.Errorf("IsCanonical(%q) = true, want false", name)
		}
	}
}
