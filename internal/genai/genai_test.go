package genai

import (
	"errors"
	"strings"
	"testing"

	"github.com/outreachlab/leadpulse/internal/models"
)

func TestParseScore(t *testing.T) {
	score, err := parseScore(`{"sentiment": 0.6, "confidence": 0.85, "dominant_emotion": "interested", "key_phrases": ["next steps"]}`)
	if err != nil {
		t.Fatalf("parseScore failed: %v", err)
	}
	if score.Sentiment != 0.6 || score.Confidence != 0.85 || score.DominantEmotion != "interested" {
		t.Errorf("score = %+v", score)
	}
}

func TestParseScoreStripsCodeFences(t *testing.T) {
	fenced := "```json\n{\"sentiment\": -0.4, \"confidence\": 0.7, \"dominant_emotion\": \"worried\"}\n```"
	score, err := parseScore(fenced)
	if err != nil {
		t.Fatalf("parseScore failed on fenced reply: %v", err)
	}
	if score.Sentiment != -0.4 {
		t.Errorf("sentiment = %v, want -0.4", score.Sentiment)
	}
}

func TestParseScoreRejectsBadReplies(t *testing.T) {
	cases := []string{
		"I think the prospect sounds happy.",
		`{"sentiment": 2.0, "confidence": 0.5}`,
		`{"sentiment": 0.5, "confidence": -0.1}`,
		"",
	}
	for _, c := range cases {
		if _, err := parseScore(c); !errors.Is(err, models.ErrScorerBadResponse) {
			t.Errorf("parseScore(%q) = %v, want ErrScorerBadResponse", c, err)
		}
	}
}

func TestParseScoreDefaultsEmotion(t *testing.T) {
	score, err := parseScore(`{"sentiment": 0, "confidence": 0.5}`)
	if err != nil {
		t.Fatal(err)
	}
	if score.DominantEmotion != "neutral" {
		t.Errorf("emotion = %q, want neutral default", score.DominantEmotion)
	}
}

func TestBuildUserPromptIncludesLeadContext(t *testing.T) {
	prompt := buildUserPrompt("we like the product", models.LeadContext{
		LeadID: "l1", Name: "Dana", Company: "Acme", Status: models.StatusInterested,
	})
	for _, want := range []string{"Dana", "Acme", "interested", "we like the product"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	bare := buildUserPrompt("hello", models.LeadContext{LeadID: "l2"})
	if strings.Contains(bare, "Prospect:") {
		t.Error("anonymous lead rendered a prospect header")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without API key")
	}
	if _, err := NewClient(WithAPIKey("sk-test"), WithModel("gpt-4o")); err != nil {
		t.Fatalf("NewClient with explicit key failed: %v", err)
	}
}
