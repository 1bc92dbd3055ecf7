package program

// Merge reconciles a local and a remote record set into one.
//
// The result starts from local. Remote records with an unknown ID are
// inserted; when both sides hold the same ID, the record with the strictly
// greater UpdatedAt wins. Equal timestamps keep the local version, since
// local was written most recently on this device.
//
// Records present locally but absent remotely are kept: deletions propagate
// only through explicit delete operations, never through a merge, so a stale
// or partial remote fetch can never silently destroy data. An empty remote
// set therefore yields local unchanged.
//
// Merge is pure: it never mutates its inputs and performs no I/O. The
// returned slice is sorted newest-first by CreatedAt for display.
func Merge(local, remote []Program) []Program {
	merged := make(map[string]Program, len(local)+len(remote))
	for _, p := range local {
		merged[p.ID] = p.Clone()
	}
	for _, r := range remote {
		current, ok := merged[r.ID]
		if !ok || r.UpdatedAt.After(current.UpdatedAt) {
			merged[r.ID] = r.Clone()
		}
	}

	out := make([]Program, 0, len(merged))
	for _, p := range merged {
		out = append(out, p)
	}
	SortByCreatedAt(out)
	return out
}
