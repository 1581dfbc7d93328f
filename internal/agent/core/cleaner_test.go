package core

import "testing"

func TestExtractJSONArrayPlain(t *testing.T) {
	out, err := ExtractJSONArray(`["weather_agent", "qa_agent"]`)
	if err != nil {
		t.Fatalf("ExtractJSONArray: %v", err)
	}
	if out != `["weather_agent", "qa_agent"]` {
		t.Fatalf("unexpected payload: %s", out)
	}
}

func TestExtractJSONArrayFenced(t *testing.T) {
	raw := "```json\n[\"stock_agent\", \"qa_agent\"]\n```"
	out, err := ExtractJSONArray(raw)
	if err != nil {
		t.Fatalf("ExtractJSONArray: %v", err)
	}
	if out != `["stock_agent", "qa_agent"]` {
		t.Fatalf("unexpected payload: %s", out)
	}
}

func TestExtractJSONArrayProseWrapped(t *testing.T) {
	raw := `Sure! Here is the plan: ["qa_agent"] Hope that helps.`
	out, err := ExtractJSONArray(raw)
	if err != nil {
		t.Fatalf("ExtractJSONArray: %v", err)
	}
	if out != `["qa_agent"]` {
		t.Fatalf("unexpected payload: %s", out)
	}
}

func TestExtractJSONArrayBracketsInsideStrings(t *testing.T) {
	raw := `["a[b]c", "d]e["]`
	out, err := ExtractJSONArray(raw)
	if err != nil {
		t.Fatalf("ExtractJSONArray: %v", err)
	}
	if out != raw {
		t.Fatalf("unexpected payload: %s", out)
	}
}

func TestExtractJSONArrayNone(t *testing.T) {
	if _, err := ExtractJSONArray("no array here"); err == nil {
		t.Fatalf("expected error for input without array")
	}
}

func TestExtractJSONArrayUnbalanced(t *testing.T) {
	if _, err := ExtractJSONArray(`["weather_agent"`); err == nil {
		t.Fatalf("expected error for unbalanced array")
	}
}
