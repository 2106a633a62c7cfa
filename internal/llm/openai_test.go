package llm

import (
	"encoding/json"
	"testing"
)

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"plain", `{"building":"Baker House"}`},
		{"fenced", "```json\n{\"building\":\"Baker House\"}\n```"},
		{"bare fence", "```\n{\"building\":\"Baker House\"}\n```"},
		{"leading prose", `Sure, here is the JSON: {"building":"Baker House"}`},
	}
	for _, tc := range cases {
		var ext Extraction
		if err := json.Unmarshal(extractJSON(tc.raw), &ext); err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if ext.Building != "Baker House" {
			t.Fatalf("%s: building = %q", tc.name, ext.Building)
		}
	}
}

func TestExtractJSON_Array(t *testing.T) {
	raw := "```json\n[{\"case_id\":\"c1\",\"similarity_score\":0.9}]\n```"
	var scores []SimilarityScore
	if err := json.Unmarshal(extractJSON(raw), &scores); err != nil {
		t.Fatal(err)
	}
	if len(scores) != 1 || scores[0].Score != 0.9 {
		t.Fatalf("scores = %+v", scores)
	}
}
