package compose

import "testing"

func TestScore(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
		expectedRange [2]int // min, max expected score
	}{
		{"ideal og image 1200x630", 1200, 630, [2]int{95, 100}},
		{"16:9 exactly", 1920, 1080, [2]int{100, 100}},
		{"3:2 photo", 1500, 1000, [2]int{95, 95}},
		{"4:3 photo", 800, 600, [2]int{85, 85}},
		{"square avatar shape", 500, 500, [2]int{60, 60}},
		{"portrait 2:3", 400, 600, [2]int{40, 40}},
		{"phone screenshot 9:16", 1080, 1920, [2]int{20, 20}},
		{"banner ad 728x90 penalized", 728, 90, [2]int{0, 70}},
		{"skyscraper ad 160x600 penalized", 160, 600, [2]int{0, 10}},
		{"unknown dims neutral", 0, 0, [2]int{NeutralScore, NeutralScore}},
		{"negative dims neutral", -1, 50, [2]int{NeutralScore, NeutralScore}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(tt.width, tt.height)
			if got < tt.expectedRange[0] || got > tt.expectedRange[1] {
				t.Errorf("Score(%d, %d) = %d, want within [%d, %d]",
					tt.width, tt.height, got, tt.expectedRange[0], tt.expectedRange[1])
			}
		})
	}
}

func TestLandscapeBeatsPortrait(t *testing.T) {
	if Score(1200, 630) <= Score(630, 1200) {
		t.Error("landscape must outrank portrait at the same size")
	}
}

func TestExtremePenaltyApplies(t *testing.T) {
	// 728x90 is ~8:1; nearest table entry is 16:9 but the extreme-ratio
	// penalty must pull it well below a real 16:9 image.
	if Score(728, 90) >= Score(1280, 720) {
		t.Error("extreme ratio should be penalized below true 16:9")
	}
}
