package risk

import "testing"

func TestScreenHighRisk(t *testing.T) {
	s := NewScreener()
	level, matches := s.Screen("Honestly some days I just want to die.")
	if level != "high" {
		t.Fatalf("expected high, got %s", level)
	}
	if len(matches) == 0 || matches[0].Phrase != "want to die" {
		t.Errorf("expected matched phrase, got %+v", matches)
	}
}

func TestScreenMediumRisk(t *testing.T) {
	s := NewScreener()
	level, matches := s.Screen("I feel like I'm falling apart lately")
	if level != "medium" {
		t.Fatalf("expected medium, got %s", level)
	}
	if len(matches) != 1 || matches[0].Level != "medium" {
		t.Errorf("unexpected matches: %+v", matches)
	}
}

func TestScreenLowRiskByDefault(t *testing.T) {
	s := NewScreener()
	level, matches := s.Screen("I had a pretty good day today")
	if level != "low" {
		t.Fatalf("expected low, got %s", level)
	}
	if matches != nil {
		t.Errorf("expected no matches, got %+v", matches)
	}
}

func TestScreenIsCaseInsensitive(t *testing.T) {
	s := NewScreener()
	level, _ := s.Screen("I WANT TO DIE")
	if level != "high" {
		t.Errorf("case should not matter, got %s", level)
	}
}

func TestScreenHighWinsOverMedium(t *testing.T) {
	s := NewScreener()
	level, matches := s.Screen("I can't take it anymore, I want to die")
	if level != "high" {
		t.Fatalf("high phrases must dominate, got %s", level)
	}
	for _, m := range matches {
		if m.Level != "high" {
			t.Errorf("medium matches should not be reported alongside high: %+v", m)
		}
	}
}

func TestMentionsSupport(t *testing.T) {
	cases := []struct {
		draft string
		want  bool
	}{
		{"Please call or text 988 right now.", true},
		{"The crisis line is always open.", true},
		{"Reach out to the Lifeline if it gets worse.", true},
		{"I'm sorry, that sounds really hard.", false},
	}
	for _, c := range cases {
		if got := MentionsSupport(c.draft); got != c.want {
			t.Errorf("MentionsSupport(%q) = %v, want %v", c.draft, got, c.want)
		}
	}
}
