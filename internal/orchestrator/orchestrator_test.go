package orchestrator

import "testing"

func TestJobIDFromURLExtractsID(t *testing.T) {
	cases := map[string]string{
		"https://store.example.com/jobs/deadbeef/source.mp4": "deadbeef",
		"https://store.example.com/jobs/deadbeef":             "deadbeef",
		"https://store.example.com/other/path.mp4":             "",
	}
	for url, want := range cases {
		if got := jobIDFromURL(url); got != want {
			t.Errorf("jobIDFromURL(%q) = %q, want %q", url, got, want)
		}
	}
}

func TestTimeRangeFromUnsetWhenAbsent(t *testing.T) {
	rng := timeRangeFrom(map[string]any{"prompt": "a dog"})
	if rng.Set {
		t.Errorf("expected unset time range when start/end absent, got %+v", rng)
	}
}

func TestTimeRangeFromSetWhenPresent(t *testing.T) {
	rng := timeRangeFrom(map[string]any{"start": 1.5, "end": 3.0})
	if !rng.Set || rng.Start != 1.5 || rng.End != 3.0 {
		t.Errorf("timeRangeFrom = %+v, want Set start=1.5 end=3.0", rng)
	}
}

func TestBlurRequestFromDefaultsToBlurEffect(t *testing.T) {
	req := blurRequestFrom(map[string]any{"prompt": "a logo", "strength": 5.0})
	if req.Effect != "blur" {
		t.Errorf("expected default effect \"blur\", got %q", req.Effect)
	}
	if req.Strength != 5 {
		t.Errorf("expected strength 5, got %d", req.Strength)
	}
}
