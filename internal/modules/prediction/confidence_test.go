package prediction

import (
	"testing"
	"time"

	"github.com/bozweather/trader/internal/domain"
)

func TestScoreConfidence(t *testing.T) {
	tests := []struct {
		name     string
		in       ConfidenceInput
		expected domain.Confidence
		score    int
	}{
		{
			name: "tight fresh ensemble",
			in: ConfidenceInput{
				Spread: 0.8, ErrorStd: 1.5, SourceCount: 5, NewestAge: 20 * time.Minute,
			},
			expected: domain.ConfidenceHigh,
			score:    7,
		},
		{
			name: "moderate agreement",
			in: ConfidenceInput{
				Spread: 2.5, ErrorStd: 2.8, SourceCount: 3, NewestAge: 90 * time.Minute,
			},
			expected: domain.ConfidenceLow,
			score:    2,
		},
		{
			name: "wide disagreement",
			in: ConfidenceInput{
				Spread: 5.0, ErrorStd: 4.0, SourceCount: 2, NewestAge: 90 * time.Minute,
			},
			expected: domain.ConfidenceLow,
			score:    0,
		},
		{
			name: "stale data costs a point",
			in: ConfidenceInput{
				Spread: 1.0, ErrorStd: 2.0, SourceCount: 4, NewestAge: 150 * time.Minute,
			},
			expected: domain.ConfidenceHigh,
			score:    5,
		},
		{
			name: "medium band",
			in: ConfidenceInput{
				Spread: 1.8, ErrorStd: 2.5, SourceCount: 3, NewestAge: 45 * time.Minute,
			},
			expected: domain.ConfidenceMedium,
			score:    4,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf, score := ScoreConfidence(tt.in)
			if conf != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, conf)
			}
			if score != tt.score {
				t.Errorf("Expected score %d, got %d", tt.score, score)
			}
		})
	}
}

func TestScoreConfidence_SingleSourceCannotBeHigh(t *testing.T) {
	// One source means spread 0 (+3) and fresh data (+1); without the
	// sigma and source-count points the score tops out at 6 only when
	// sigma cooperates, and a lone fresh source with typical sigma stays
	// below HIGH.
	conf, score := ScoreConfidence(ConfidenceInput{
		Spread: 0, ErrorStd: 3.5, SourceCount: 1, NewestAge: 10 * time.Minute,
	})
	if conf == domain.ConfidenceHigh {
		t.Errorf("Single source with wide sigma scored HIGH (score %d)", score)
	}
}
