package fetcher

import (
	"context"
	"os"

	"github.com/rotisserie/eris"

	"github.com/sells-group/adscope-cli/internal/resilience"
)

// SnapshotFetcher serves page bytes from local snapshot files instead of the
// network. Used for offline extraction and tests: the request URL is treated
// as a filesystem path.
type SnapshotFetcher struct{}

// FetchPage reads the snapshot file named by req.URL. Snapshots are single
// pages, so the cursor is ignored.
func (SnapshotFetcher) FetchPage(_ context.Context, req PageRequest) ([]byte, error) {
	data, err := os.ReadFile(req.URL)
	if err != nil {
		return nil, resilience.Permanent(eris.Wrapf(err, "snapshot: read %s", req.URL), 0)
	}
	return data, nil
}
