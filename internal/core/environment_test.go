package core

import "testing"

func TestParseEnvironment(t *testing.T) {
	tests := map[string]Environment{
		"production": Production,
		" PROD ":     Production,
		"Staging":    Staging,
		"test":       Testing,
		"dev":        Development,
		"":           Development,
		"qa":         Development,
	}
	for in, want := range tests {
		if got := ParseEnvironment(in); got != want {
			t.Errorf("ParseEnvironment(%q) = %s, want %s", in, got, want)
		}
	}
	if !Production.IsProduction() || Staging.IsProduction() {
		t.Fatal("IsProduction")
	}
}
