package reasoning

import "testing"

func TestStepsExplicitMarkers(t *testing.T) {
	text := "Let me work through it.\nStep 1: Find gross pay.\nStep 2: Apply the 6.2% rate.\n\nStep 3: Add Medicare."
	got := Steps(text)
	if len(got) != 3 {
		t.Fatalf("expected 3 steps, got %d: %q", len(got), got)
	}
	if got[0] != "Find gross pay." || got[2] != "Add Medicare." {
		t.Errorf("unexpected steps: %q", got)
	}
}

func TestStepsNumberedList(t *testing.T) {
	got := Steps("1. Gather timesheets\n2) Compute overtime\n3. Review")
	if len(got) != 3 {
		t.Fatalf("expected 3 steps, got %q", got)
	}
	if got[1] != "Compute overtime" {
		t.Errorf("step 2 = %q", got[1])
	}
}

func TestStepsFallsBackToRawText(t *testing.T) {
	cases := []string{
		"The FICA rate is 7.65% for employees.",
		"Step 1: only one marker here",
		"Rates changed in 2024. 2. Not a list marker mid-line.",
	}
	for _, in := range cases {
		got := Steps(in)
		if len(got) != 1 || got[0] != in {
			t.Errorf("Steps(%q) = %q, want raw text as one step", in, got)
		}
	}
}

func TestStepsEmpty(t *testing.T) {
	if got := Steps("   \n"); got != nil {
		t.Errorf("expected nil, got %q", got)
	}
}

func TestStepsNeverLosesContent(t *testing.T) {
	// Malformed markers must degrade, not panic or return empty.
	for _, in := range []string{"Step", "Step 1:", "1.", "step 1: \nstep 2:", "**Step 1.** a\n**Step 2.** b"} {
		if got := Steps(in); len(got) == 0 {
			t.Errorf("Steps(%q) returned no steps", in)
		}
	}
}
