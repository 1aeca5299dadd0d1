package stage

import (
	"errors"
	"testing"
)

func TestLookup(t *testing.T) {
	for _, s := range Real {
		def, err := Lookup(s)
		if err != nil {
			t.Fatalf("Lookup(%s): %v", s, err)
		}
		if def.Name != s {
			t.Errorf("Lookup(%s).Name = %s", s, def.Name)
		}
		if len(def.Objectives) == 0 || len(def.KeyQuestions) == 0 || len(def.SuccessCriteria) == 0 {
			t.Errorf("stage %s has empty catalogue text", s)
		}
	}

	for _, name := range []Stage{"", "negotiation", Interrupt} {
		if _, err := Lookup(name); !errors.Is(err, ErrUnknownStage) {
			t.Errorf("Lookup(%q) error = %v, want ErrUnknownStage", name, err)
		}
	}
}

func TestValidTransitions(t *testing.T) {
	tests := []struct {
		from Stage
		want []Stage
	}{
		{Opening, []Stage{Discovery}},
		{Discovery, []Stage{Pitch, Objection}},
		{Pitch, []Stage{Objection, Closing}},
		{Objection, []Stage{Pitch, Closing, Discovery}},
		{Closing, nil},
		{"bogus", nil},
	}

	for _, tt := range tests {
		got := ValidTransitions(tt.from)
		if len(got) != len(tt.want) {
			t.Errorf("ValidTransitions(%s) = %v, want %v", tt.from, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ValidTransitions(%s)[%d] = %s, want %s", tt.from, i, got[i], tt.want[i])
			}
		}
	}
}

func TestValidTransitionsReturnsCopy(t *testing.T) {
	got := ValidTransitions(Discovery)
	got[0] = Closing
	if ValidTransitions(Discovery)[0] != Pitch {
		t.Error("mutating the result changed the catalogue")
	}
}

func TestIsLegal(t *testing.T) {
	if !IsLegal(Objection, Discovery) {
		t.Error("objection → discovery should be legal")
	}
	if IsLegal(Closing, Opening) {
		t.Error("closing → opening should be illegal")
	}
}

func TestParse(t *testing.T) {
	got, err := Parse("  Pitch ")
	if err != nil || got != Pitch {
		t.Errorf("Parse(Pitch) = %s, %v", got, err)
	}
	if got, err := Parse("interrupt"); err != nil || got != Interrupt {
		t.Errorf("Parse(interrupt) = %s, %v", got, err)
	}
	if _, err := Parse("upsell"); !errors.Is(err, ErrUnknownStage) {
		t.Errorf("Parse(upsell) error = %v", err)
	}
}

func TestActions(t *testing.T) {
	got := Actions(Discovery)
	if len(got) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(got))
	}
	if got[0] != "What challenges are you facing currently?" {
		t.Errorf("unexpected first action %q", got[0])
	}
	if Actions(Interrupt) != nil {
		t.Error("interrupt has no actions")
	}
}
