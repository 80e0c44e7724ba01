package services

import (
	"errors"
	"testing"
)

func TestSplitQuestionID(t *testing.T) {
	tests := []struct {
		id       string
		filename string
		label    string
		wantErr  bool
	}{
		{"9702_m24_qp_22.pdf#3(a)", "9702_m24_qp_22.pdf", "3(a)", false},
		{QuestionID("9702_s23_qp_11.pdf", "12"), "9702_s23_qp_11.pdf", "12", false},
		{"9702_m24_qp_22.pdf", "", "", true},
		{"#3", "", "", true},
		{"9702_m24_qp_22.pdf#", "", "", true},
	}

	for _, tt := range tests {
		filename, label, err := SplitQuestionID(tt.id)
		if tt.wantErr {
			if !errors.Is(err, ErrInvalidQuestionID) {
				t.Errorf("SplitQuestionID(%q) error = %v, want ErrInvalidQuestionID", tt.id, err)
			}
			continue
		}
		if err != nil || filename != tt.filename || label != tt.label {
			t.Errorf("SplitQuestionID(%q) = %q, %q, %v", tt.id, filename, label, err)
		}
	}
}

func TestRoundRating(t *testing.T) {
	tests := map[float64]float64{
		0:        0,
		4:        4,
		3.333333: 3.3,
		4.25:     4.3,
		4.96:     5,
	}
	for in, want := range tests {
		if got := RoundRating(in); got != want {
			t.Errorf("RoundRating(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestRateRejectsBadInput(t *testing.T) {
	svc := NewRatingService(nil)

	if _, err := svc.Rate(t.Context(), "9702_m24_qp_22.pdf#1", 6, "", "", ""); !errors.Is(err, ErrInvalidRating) {
		t.Errorf("expected ErrInvalidRating, got %v", err)
	}
	if _, err := svc.Rate(t.Context(), "no-label", 4, "", "", ""); !errors.Is(err, ErrInvalidQuestionID) {
		t.Errorf("expected ErrInvalidQuestionID, got %v", err)
	}
}
