package chunkplan

import "testing"

func TestPlanBasic(t *testing.T) {
	files := []string{"c.root", "a.root", "b.root", "d.root", "e.root"}
	chunks := Plan(files, 2, nil)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	want := []Chunk{
		{Index: 0, Files: []string{"a.root", "b.root"}},
		{Index: 1, Files: []string{"c.root", "d.root"}},
		{Index: 2, Files: []string{"e.root"}},
	}
	for i, c := range chunks {
		if c.Index != want[i].Index {
			t.Errorf("chunk %d: index = %d, want %d", i, c.Index, want[i].Index)
		}
		if !equalStrings(c.Files, want[i].Files) {
			t.Errorf("chunk %d: files = %v, want %v", i, c.Files, want[i].Files)
		}
	}
}

func TestPlanSkipsFixedIndices(t *testing.T) {
	files := []string{"a.root", "b.root"}
	fixed := map[int][]string{
		0: {"z.root"},
		2: {"y.root"},
	}
	chunks := Plan(files, 1, fixed)
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].Index != 1 {
		t.Errorf("first new chunk index = %d, want 1 (0 reserved)", chunks[0].Index)
	}
	if chunks[1].Index != 3 {
		t.Errorf("second new chunk index = %d, want 3 (2 reserved)", chunks[1].Index)
	}
}

func TestPlanStabilityAcrossResubmission(t *testing.T) {
	first := Plan([]string{"a.root", "b.root", "c.root", "d.root"}, 2, nil)
	surviving := map[int][]string{
		0: first[0].Files, // chunk 0 succeeded, carried forward
	}
	// A new file arrives; chunk 1 failed and is replanned with its own files,
	// plus the new file, while index 0 must stay fixed.
	second := Plan(append(append([]string{}, first[1].Files...), "e.root"), 2, surviving)
	if len(second) != 2 {
		t.Fatalf("got %d chunks, want 2", len(second))
	}
	if second[0].Index != 1 {
		t.Errorf("replanned chunk index = %d, want 1 (0 reserved for surviving chunk)", second[0].Index)
	}
}

func TestEffectiveNFilesPerJob(t *testing.T) {
	cases := []struct {
		override, perSample, configDefault, split, want int
	}{
		{0, 0, 10, 0, 10},
		{0, 5, 10, 0, 5},
		{3, 5, 10, 0, 3},
		{0, 0, 10, 4, 2},
		{0, 0, 1, 4, 1},
		{0, 0, 3, 4, 1},
	}
	for _, c := range cases {
		got := EffectiveNFilesPerJob(c.override, c.perSample, c.configDefault, c.split)
		if got != c.want {
			t.Errorf("EffectiveNFilesPerJob(%d,%d,%d,%d) = %d, want %d",
				c.override, c.perSample, c.configDefault, c.split, got, c.want)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
