package cli

import (
	"slices"
	"strings"
	"testing"

	"github.com/matzehuels/clustermap/pkg/errors"
)

func TestOrderCommand(t *testing.T) {
	path := writeTSV(t, scenarioTSV)
	tests := []struct {
		axis string
		want []string
	}{
		{axisRows, []string{"r1", "r2", "r3"}},
		{axisCols, []string{"c1", "c2", "c3"}},
	}
	for _, tt := range tests {
		t.Run(tt.axis, func(t *testing.T) {
			c, out := newTestCLI()
			if err := execute(c, "order", path, "--axis", tt.axis, "--method", "average"); err != nil {
				t.Fatalf("order: %v", err)
			}
			got := strings.Fields(out.String())
			sorted := slices.Sorted(slices.Values(got))
			if !slices.Equal(sorted, tt.want) {
				t.Fatalf("order printed %v, want a permutation of %v", got, tt.want)
			}
		})
	}
}

func TestOrderCommandKeepsClosestRowsAdjacent(t *testing.T) {
	// r1 and r2 are the closest pair, so r3 ends up at one end.
	path := writeTSV(t, scenarioTSV)
	c, out := newTestCLI()
	if err := execute(c, "order", path); err != nil {
		t.Fatalf("order: %v", err)
	}
	got := strings.Fields(out.String())
	if len(got) != 3 || got[1] == "r3" {
		t.Errorf("order = %v, r3 should not separate r1 and r2", got)
	}
}

func TestOrderCommandLinks(t *testing.T) {
	path := writeTSV(t, scenarioTSV)
	c, out := newTestCLI()
	if err := execute(c, "order", path, "--links", "--method", "single"); err != nil {
		t.Fatalf("order --links: %v", err)
	}
	s := out.String()
	for _, want := range []string{"Cluster", "Distance", "r1", "r2", "3"} {
		if !strings.Contains(s, want) {
			t.Errorf("output is missing %q:\n%s", want, s)
		}
	}
}

func TestOrderCommandErrors(t *testing.T) {
	path := writeTSV(t, scenarioTSV)
	tests := []struct {
		name string
		args []string
		code errors.Code
	}{
		{"bad axis", []string{"--axis", "diagonal"}, errors.ErrCodeInvalidParameter},
		{"bad metric", []string{"--metric", "nope"}, errors.ErrCodeClusteringFailed},
		{"too many leaves", []string{"--max-leaves", "2"}, errors.ErrCodeClusteringFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestCLI()
			err := execute(c, append([]string{"order", path}, tt.args...)...)
			if !errors.Is(err, tt.code) {
				t.Errorf("error = %v, want %s", err, tt.code)
			}
		})
	}
}

func TestOrderCommandSingleRow(t *testing.T) {
	path := writeTSV(t, "id\ta\tb\nonly\t1\t2\n")
	c, out := newTestCLI()
	if err := execute(c, "order", path, "--links"); err != nil {
		t.Fatalf("order: %v", err)
	}
	if got := strings.TrimSpace(out.String()); got != "only" {
		t.Errorf("order = %q, want the single label", got)
	}
}
