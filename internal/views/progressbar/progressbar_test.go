package progressbar

import (
	"strings"
	"testing"

	"github.com/aiden-platform/aiden-watch/internal/progress"
)

func TestAnimateSettlesOnTarget(t *testing.T) {
	m := New()
	if !m.Set(progress.Snapshot{Status: progress.StatusRunning, Progress: 35}) {
		t.Fatal("Set should request frames for a new target")
	}

	frames := 0
	for m.Animate() {
		frames++
		if frames > 600 {
			t.Fatalf("spring did not settle, pos=%.2f", m.Position())
		}
	}
	if m.Position() != 35 {
		t.Errorf("Position() = %.2f, want 35", m.Position())
	}
	if m.Set(progress.Snapshot{Status: progress.StatusRunning, Progress: 35}) {
		t.Error("unchanged target should not request frames")
	}
}

func TestAnimateMovesTowardTarget(t *testing.T) {
	m := New()
	m.Set(progress.Snapshot{Progress: 100})
	m.Animate()
	if p := m.Position(); p <= 0 || p >= 100 {
		t.Errorf("after one frame Position() = %.2f, want between 0 and 100", p)
	}
}

func TestView(t *testing.T) {
	tests := []struct {
		name string
		snap progress.Snapshot
		want []string
	}{
		{
			name: "idle",
			snap: progress.Snapshot{Status: progress.StatusIdle},
			want: []string{"idle", "0%"},
		},
		{
			name: "waiting on a known stage",
			snap: progress.Snapshot{Status: progress.StatusWaitingForReview, Stage: "hitl_ambiguity_review", Progress: 60},
			want: []string{"waiting for review", "hitl_ambiguity_review (6/11)", "60%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			m.Stages = progress.DefaultStages()
			m.Set(tt.snap)
			v := m.View(100)
			for _, w := range tt.want {
				if !strings.Contains(v, w) {
					t.Errorf("View() missing %q:\n%s", w, v)
				}
			}
		})
	}
}
