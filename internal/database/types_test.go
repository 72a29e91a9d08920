package database

import "testing"

func TestParseTaskStatus(t *testing.T) {
	tests := []struct {
		input   string
		want    TaskStatus
		wantErr bool
	}{
		{"", TaskPending, false},
		{"pending", TaskPending, false},
		{"completed", TaskCompleted, false},
		{"skipped", TaskSkipped, false},
		{"done", "", true},
		{"PENDING", "", true},
	}

	for _, tc := range tests {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseTaskStatus(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("ParseTaskStatus(%q) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if got != tc.want {
				t.Errorf("ParseTaskStatus(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}

func TestKnownPerson_HasEmbedding(t *testing.T) {
	if (&KnownPerson{}).HasEmbedding() {
		t.Error("expected person without embedding to report false")
	}
	if !(&KnownPerson{Embedding: []float32{0.1}}).HasEmbedding() {
		t.Error("expected person with embedding to report true")
	}
}
