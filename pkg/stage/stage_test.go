package stage

import "testing"

func TestNext(t *testing.T) {
	cases := []struct {
		in       Id
		wantNext Id
		wantLast bool
	}{
		{Research, Extraction, false},
		{Extraction, Retrieval, false},
		{Retrieval, WikiGeneration, false},
		{WikiGeneration, GraphVisualization, false},
		{GraphVisualization, FeedbackProcessing, false},
		{FeedbackProcessing, Completed, true},
	}
	for _, tc := range cases {
		got, last := Next(tc.in)
		if got != tc.wantNext || last != tc.wantLast {
			t.Errorf("Next(%s) = (%s, %v), want (%s, %v)", tc.in, got, last, tc.wantNext, tc.wantLast)
		}
	}
}

func TestBefore(t *testing.T) {
	if !Before(Research, Extraction) {
		t.Error("Research should be before Extraction")
	}
	if Before(Extraction, Research) {
		t.Error("Extraction should not be before Research")
	}
	if !Before(FeedbackProcessing, Completed) {
		t.Error("every DAG stage should be before Completed")
	}
	if Before(Completed, Research) {
		t.Error("Completed should never be before a DAG stage")
	}
}

func TestOrderCovers6Stages(t *testing.T) {
	if len(Order) != 6 {
		t.Fatalf("expected 6 canonical stages, got %d", len(Order))
	}
	for i, s := range Order {
		if Index(s) != i {
			t.Errorf("Index(%s) = %d, want %d", s, Index(s), i)
		}
	}
}

func TestStringRoundTrip(t *testing.T) {
	for _, s := range append(append([]Id{}, Order...), Completed) {
		if s.String() == "" {
			t.Errorf("stage %d has empty String()", s)
		}
	}
}
