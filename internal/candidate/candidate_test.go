package candidate

import (
	"os"
	"strings"
	"testing"
)

func TestKeyNormalizesCaseAndWhitespace(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		a    *Candidate
		b    *Candidate
		same bool
	}{
		{
			name: "case and spaces",
			a:    &Candidate{Name: " Jane Doe ", Company: "ACME"},
			b:    &Candidate{Name: "jane doe", Company: "  acme"},
			same: true,
		},
		{
			name: "different company",
			a:    &Candidate{Name: "Jane Doe", Company: "Acme"},
			b:    &Candidate{Name: "Jane Doe", Company: "Globex"},
			same: false,
		},
		{
			name: "fullwidth characters",
			a:    &Candidate{Name: "ＪＡＮＥ", Company: "Acme"},
			b:    &Candidate{Name: "jane", Company: "acme"},
			same: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tt.a.Key() == tt.b.Key(); got != tt.same {
				t.Fatalf("expected same=%v for %q and %q", tt.same, tt.a.Key(), tt.b.Key())
			}
		})
	}
}

func TestEmbeddingTextUsesFixedOrderAndSkipsEmpty(t *testing.T) {
	c := &Candidate{
		Name:      "Ann",
		Title:     "Site Manager",
		Company:   "BuildCo",
		Location:  "",
		Education: "MIT",
		Skills:    []string{"Planning", " ", "Safety"},
	}

	got := c.EmbeddingText()
	want := "Ann Site Manager BuildCo MIT Planning, Safety"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestCloneIsDeep(t *testing.T) {
	c := &Candidate{Name: "Ann", Skills: []string{"Go"}, Embedding: []float32{1, 2}}
	cp := c.Clone()

	cp.Skills[0] = "Rust"
	cp.Embedding[0] = 9

	if c.Skills[0] != "Go" || c.Embedding[0] != 1 {
		t.Fatalf("clone shares memory with original: %+v", c)
	}
}

func TestMissionEmbeddingText(t *testing.T) {
	m := Mission{
		Text:       " Find builders ",
		Attributes: Attributes{Industry: "construction", Role: "contractor"},
	}

	got := m.EmbeddingText()
	want := "Find builders | Industry: construction | Location: unspecified | Role: contractor"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestDumpMatchesToTmpFile(t *testing.T) {
	matches := []Match{NewMatch(&Candidate{ID: "1", Name: "Ann", Company: "BuildCo"}, 0.8)}

	name, err := DumpMatchesToTmpFile(matches)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(name)

	data, err := os.ReadFile(name)
	if err != nil {
		t.Fatalf("reading dump: %v", err)
	}
	if !strings.Contains(string(data), `"company": "BuildCo"`) {
		t.Fatalf("unexpected dump content: %s", data)
	}
}
