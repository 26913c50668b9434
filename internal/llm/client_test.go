package llm

import "testing"

func TestExtractJSONFromFence(t *testing.T) {
	in := "Here you go:\n```json\n{\"thoughts\": []}\n```\nDone."
	if got := ExtractJSON(in); got != `{"thoughts": []}` {
		t.Errorf("ExtractJSON = %q", got)
	}
}

func TestExtractJSONTrailingObject(t *testing.T) {
	in := `Some prose first. {"a": 1, "b": {"c": 2}}`
	if got := ExtractJSON(in); got != `{"a": 1, "b": {"c": 2}}` {
		t.Errorf("ExtractJSON = %q", got)
	}
}

func TestExtractJSONNone(t *testing.T) {
	if got := ExtractJSON("no objects here"); got != "" {
		t.Errorf("ExtractJSON = %q, want empty", got)
	}
}

func TestSplitScores(t *testing.T) {
	text, scores := splitScores(`A considered reply. {"relevance": 0.8, "impact": 0.6}`)
	if text != "A considered reply." {
		t.Errorf("text = %q", text)
	}
	if scores["relevance"] != 0.8 || scores["impact"] != 0.6 {
		t.Errorf("scores = %v", scores)
	}

	text, scores = splitScores("just text")
	if text != "just text" || scores != nil {
		t.Errorf("plain text should pass through, got %q %v", text, scores)
	}
}
