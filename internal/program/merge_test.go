package program

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"
)

// testProgram builds a valid program with controllable ID and timestamps.
func testProgram(t *testing.T, id string, updatedAt time.Time) Program {
	t.Helper()
	return Program{
		ID:        id,
		Title:     "snippet " + id,
		Language:  "go",
		Code:      "package main",
		Tags:      []string{"test"},
		CreatedAt: updatedAt.Add(-time.Hour),
		UpdatedAt: updatedAt,
	}
}

func mergedIDs(programs []Program) map[string]Program {
	out := make(map[string]Program, len(programs))
	for _, p := range programs {
		out[p.ID] = p
	}
	return out
}

// TestMerge_EmptySets verifies the edge cases around empty inputs.
func TestMerge_EmptySets(t *testing.T) {
	now := time.Now().UTC()
	local := []Program{testProgram(t, "a", now)}

	if got := Merge(nil, nil); len(got) != 0 {
		t.Errorf("Merge(nil, nil) = %d records, want 0", len(got))
	}
	if got := Merge(local, nil); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("Merge(local, nil) lost the local record: %v", got)
	}
	if got := Merge(nil, local); len(got) != 1 || got[0].ID != "a" {
		t.Errorf("Merge(nil, remote) dropped the remote record: %v", got)
	}
}

// TestMerge_Union verifies that disjoint sets combine completely.
func TestMerge_Union(t *testing.T) {
	now := time.Now().UTC()
	local := []Program{testProgram(t, "a", now), testProgram(t, "b", now)}
	remote := []Program{testProgram(t, "c", now)}

	got := Merge(local, remote)
	if len(got) != 3 {
		t.Fatalf("Merge() = %d records, want 3", len(got))
	}
	ids := mergedIDs(got)
	for _, want := range []string{"a", "b", "c"} {
		if _, ok := ids[want]; !ok {
			t.Errorf("merged set missing %s", want)
		}
	}
}

// TestMerge_NewerRemoteWins verifies last-write-wins when the remote copy
// is strictly newer.
func TestMerge_NewerRemoteWins(t *testing.T) {
	now := time.Now().UTC()
	local := testProgram(t, "a", now)
	remote := testProgram(t, "a", now.Add(time.Minute))
	remote.Title = "remote edit"

	got := Merge([]Program{local}, []Program{remote})
	if len(got) != 1 {
		t.Fatalf("Merge() = %d records, want 1", len(got))
	}
	if got[0].Title != "remote edit" {
		t.Errorf("newer remote copy did not win: got title %q", got[0].Title)
	}
}

// TestMerge_LocalWinsTie verifies that equal timestamps keep the local copy.
func TestMerge_LocalWinsTie(t *testing.T) {
	now := time.Now().UTC()
	local := testProgram(t, "a", now)
	local.Title = "local edit"
	remote := testProgram(t, "a", now)
	remote.Title = "remote edit"

	got := Merge([]Program{local}, []Program{remote})
	if got[0].Title != "local edit" {
		t.Errorf("tie did not keep local copy: got title %q", got[0].Title)
	}
}

// TestMerge_OlderRemoteLoses verifies a stale remote copy never replaces
// a newer local one.
func TestMerge_OlderRemoteLoses(t *testing.T) {
	now := time.Now().UTC()
	local := testProgram(t, "a", now)
	local.Title = "local edit"
	remote := testProgram(t, "a", now.Add(-time.Minute))

	got := Merge([]Program{local}, []Program{remote})
	if got[0].Title != "local edit" {
		t.Errorf("stale remote copy replaced local: got title %q", got[0].Title)
	}
}

// TestMerge_NonDestructive verifies that a record missing from the remote
// set is kept, so a partial fetch cannot destroy data.
func TestMerge_NonDestructive(t *testing.T) {
	now := time.Now().UTC()
	local := []Program{testProgram(t, "kept", now), testProgram(t, "shared", now)}
	remote := []Program{testProgram(t, "shared", now)}

	got := Merge(local, remote)
	if _, ok := mergedIDs(got)["kept"]; !ok {
		t.Error("record absent from remote was dropped by merge")
	}
}

// TestMerge_Pure verifies that neither input slice is mutated.
func TestMerge_Pure(t *testing.T) {
	now := time.Now().UTC()
	local := []Program{testProgram(t, "a", now)}
	remote := []Program{testProgram(t, "a", now.Add(time.Minute))}
	localBefore := local[0].Clone()
	remoteBefore := remote[0].Clone()

	got := Merge(local, remote)

	if !reflect.DeepEqual(local[0], localBefore) {
		t.Error("Merge mutated the local input")
	}
	if !reflect.DeepEqual(remote[0], remoteBefore) {
		t.Error("Merge mutated the remote input")
	}

	// Mutating the output must not reach back into the inputs.
	got[0].Tags[0] = "mutated"
	if remote[0].Tags[0] == "mutated" {
		t.Error("merge output shares tag storage with an input")
	}
}

// TestMerge_Idempotent verifies that merging the result with the same
// remote set again changes nothing.
func TestMerge_Idempotent(t *testing.T) {
	now := time.Now().UTC()
	local := []Program{testProgram(t, "a", now), testProgram(t, "b", now.Add(time.Second))}
	remote := []Program{testProgram(t, "b", now.Add(time.Minute)), testProgram(t, "c", now)}

	once := Merge(local, remote)
	twice := Merge(once, remote)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("second merge changed the result:\nonce:  %v\ntwice: %v", once, twice)
	}
}

// TestMerge_Randomized exercises the invariants over random sets: the
// result contains every ID from both sides exactly once, and each record
// carries the greater UpdatedAt of its two copies.
func TestMerge_Randomized(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for round := 0; round < 50; round++ {
		var local, remote []Program
		for i := 0; i < 10; i++ {
			id := fmt.Sprintf("p%d", rng.Intn(15))
			p := testProgram(t, id, base.Add(time.Duration(rng.Intn(1000))*time.Second))
			if rng.Intn(2) == 0 {
				local = append(local, p)
			} else {
				remote = append(remote, p)
			}
		}
		// Drop duplicate IDs within a side; sets are keyed by ID.
		local = dedupe(local)
		remote = dedupe(remote)

		got := mergedIDs(Merge(local, remote))
		for _, p := range local {
			winner, ok := got[p.ID]
			if !ok {
				t.Fatalf("round %d: local %s missing from merge", round, p.ID)
			}
			if winner.UpdatedAt.Before(p.UpdatedAt) {
				t.Fatalf("round %d: %s regressed to older UpdatedAt", round, p.ID)
			}
		}
		for _, p := range remote {
			winner, ok := got[p.ID]
			if !ok {
				t.Fatalf("round %d: remote %s missing from merge", round, p.ID)
			}
			if winner.UpdatedAt.Before(p.UpdatedAt) {
				t.Fatalf("round %d: %s regressed to older UpdatedAt", round, p.ID)
			}
		}
	}
}

func dedupe(programs []Program) []Program {
	seen := make(map[string]struct{})
	var out []Program
	for _, p := range programs {
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}
