package model

import "time"

// Snapshot is the complete ordered view of the feed delivered to one
// subscription at one point in time.
//
// Version increases by one for every snapshot of the same subscription. Diff
// is computed against the previous snapshot of that subscription, the first
// snapshot reports every post as added.
type Snapshot struct {
	Version int64        `json:"version"`
	Posts   []*Post      `json:"posts"`
	Diff    SnapshotDiff `json:"diff"`
	At      time.Time    `json:"at"`
}

type SnapshotDiff struct {
	Added   []string `json:"added"`
	Updated []string `json:"updated"`
	Removed []string `json:"removed"`
}

func (d SnapshotDiff) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}

// DiffPosts compares two ordered views by post id.
func DiffPosts(prev, next []*Post) SnapshotDiff {
	diff := SnapshotDiff{Added: []string{}, Updated: []string{}, Removed: []string{}}
	old := make(map[string]*Post, len(prev))
	for _, p := range prev {
		old[p.Id] = p
	}
	seen := make(map[string]bool, len(next))
	for _, p := range next {
		seen[p.Id] = true
		before, ok := old[p.Id]
		if !ok {
			diff.Added = append(diff.Added, p.Id)
			continue
		}
		if !SamePost(before, p) {
			diff.Updated = append(diff.Updated, p.Id)
		}
	}
	for _, p := range prev {
		if !seen[p.Id] {
			diff.Removed = append(diff.Removed, p.Id)
		}
	}
	return diff
}

// NextSnapshot builds the snapshot following prev, prev may be nil.
func NextSnapshot(prev *Snapshot, posts []*Post) *Snapshot {
	var (
		version  int64 = 1
		previous []*Post
	)
	if prev != nil {
		version = prev.Version + 1
		previous = prev.Posts
	}
	return &Snapshot{
		Version: version,
		Posts:   posts,
		Diff:    DiffPosts(previous, posts),
		At:      time.Now(),
	}
}
