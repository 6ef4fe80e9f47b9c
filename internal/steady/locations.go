package steady

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/san-kum/fieldlab/internal/dynamo"
)

// SnapshotStride is the spacing at which the solver stores snapshots.
const SnapshotStride = 1000

// ParseLocations expands entries such as "20000" or "10000:50000" into
// sorted, unique iteration numbers. Ranges are inclusive with step
// SnapshotStride.
func ParseLocations(entries []string) ([]int, error) {
	seen := make(map[int]bool)
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if start, end, ok := strings.Cut(entry, ":"); ok {
			a, err := strconv.Atoi(strings.TrimSpace(start))
			if err != nil {
				return nil, fmt.Errorf("snapshot range %q: %w", entry, err)
			}
			b, err := strconv.Atoi(strings.TrimSpace(end))
			if err != nil {
				return nil, fmt.Errorf("snapshot range %q: %w", entry, err)
			}
			for it := a; it <= b; it += SnapshotStride {
				seen[it] = true
			}
			continue
		}
		it, err := strconv.Atoi(entry)
		if err != nil {
			return nil, fmt.Errorf("snapshot location %q: %w", entry, err)
		}
		seen[it] = true
	}

	out := make([]int, 0, len(seen))
	for it := range seen {
		if it%SnapshotStride != 0 {
			return nil, fmt.Errorf("snapshot location %d is not a multiple of %d: %w", it, SnapshotStride, dynamo.ErrParameterBounds)
		}
		out = append(out, it)
	}
	sort.Ints(out)
	return out, nil
}

// SnapshotFile is the file name the solver uses for an iteration.
func SnapshotFile(iteration int) string {
	return fmt.Sprintf("w_%08d.npy", iteration)
}

// Key labels an iteration the way result tables do.
func Key(iteration int) string {
	return fmt.Sprintf("Iteration = %d", iteration)
}
