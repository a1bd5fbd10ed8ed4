package core

import (
	"strings"
	"testing"
)

func TestCrisisResponseStructure(t *testing.T) {
	p := NewCrisisProtocol()

	text, resources, emergency := p.BuildCrisisResponse("US")

	if !strings.Contains(text, resources) {
		t.Errorf("crisis text must embed the resource block")
	}
	if emergency != "911" {
		t.Errorf("emergency = %q, want 911", emergency)
	}
	for _, want := range []string{
		"988",
		"741741",
		"pause our session",
	} {
		if !strings.Contains(text, want) {
			t.Errorf("crisis text missing %q", want)
		}
	}
}

func TestCrisisCountryFallback(t *testing.T) {
	p := NewCrisisProtocol()

	tests := []struct {
		code string
		want string
	}{
		{"us", "988"},
		{"UK", "Samaritans"},
		{"de", "Telefonseelsorge"},
		{"", "988"},
		{"ZZ", "988"},
	}
	for _, tt := range tests {
		if got := p.Resources(tt.code); !strings.Contains(got, tt.want) {
			t.Errorf("Resources(%q) missing %q", tt.code, tt.want)
		}
	}
}

func TestGroundingCatalogFallback(t *testing.T) {
	c := NewGroundingCatalog()

	ex := c.GetExercise("does-not-exist", nil)
	if ex.ID != TechniqueSensory {
		t.Errorf("unknown technique should fall back to %q, got %q", TechniqueSensory, ex.ID)
	}

	for _, id := range []string{
		TechniqueSensory, TechniqueBreathing, TechniqueBodyScan,
		TechniqueOrientation, TechniqueTemperature,
	} {
		ex := c.GetExercise(id, nil)
		if ex.Instructions == "" || ex.FollowUpPrompt == "" {
			t.Errorf("exercise %q is missing instructions or follow-up", id)
		}
		if ex.EstimatedDurationSeconds <= 0 {
			t.Errorf("exercise %q has no duration", id)
		}
	}
}
