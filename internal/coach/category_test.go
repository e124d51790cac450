package coach

import "testing"

func TestCategory_Kinds(t *testing.T) {
	t.Parallel()
	if !ObjectionPrice.IsObjection() || ObjectionPrice.IsTechnique() {
		t.Error("objection:price should be an objection only")
	}
	if !TechniqueEmpathy.IsTechnique() || TechniqueEmpathy.IsObjection() {
		t.Error("technique:empathy should be a technique only")
	}
	if TalkTimeImbalance.IsObjection() || TalkTimeImbalance.IsTechnique() {
		t.Error("talk-time-imbalance is neither objection nor technique")
	}
}

func TestCategory_OnlyImbalanceRecurs(t *testing.T) {
	t.Parallel()
	for c := range catalog {
		want := c == TalkTimeImbalance
		if got := c.Recurring(); got != want {
			t.Errorf("%q.Recurring() = %v, want %v", c, got, want)
		}
	}
}

func TestCatalog_Complete(t *testing.T) {
	t.Parallel()

	for _, c := range objectionOrder {
		spec, ok := catalog[c]
		if !ok {
			t.Fatalf("catalog missing %q", c)
		}
		if len(spec.patterns) == 0 {
			t.Errorf("%q has no patterns", c)
		}
		if spec.exemplar == "" {
			t.Errorf("%q has no exemplar for its message template", c)
		}
		if spec.severity != SeverityNeutral {
			t.Errorf("%q severity = %q, want %q", c, spec.severity, SeverityNeutral)
		}
	}

	for _, c := range techniqueOrder {
		spec, ok := catalog[c]
		if !ok {
			t.Fatalf("catalog missing %q", c)
		}
		if len(spec.patterns) == 0 {
			t.Errorf("%q has no patterns", c)
		}
		if spec.severity != SeverityPositive {
			t.Errorf("%q severity = %q, want %q", c, spec.severity, SeverityPositive)
		}
	}

	// The structural and synthetic categories still need message rows.
	if catalog[TechniqueOpenQuestion].severity != SeverityPositive {
		t.Error("open-ended-question must be positive")
	}
	if catalog[TalkTimeImbalance].severity != SeverityNeedsImprovement {
		t.Error("talk-time-imbalance must be needs-improvement")
	}
}

func TestCatalog_PatternsAreLowercase(t *testing.T) {
	t.Parallel()
	for c, spec := range catalog {
		for _, p := range spec.patterns {
			for _, r := range p {
				if r >= 'A' && r <= 'Z' {
					t.Errorf("%q pattern %q contains uppercase; matching is on lowered text", c, p)
				}
			}
		}
	}
}
