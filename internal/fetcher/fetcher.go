package fetcher

import "context"

// PageRequest describes one page fetch: the gallery or API URL, the opaque
// pagination cursor from the prior page ("" for the first page), and any
// extra headers.
type PageRequest struct {
	URL     string
	Cursor  string
	Headers map[string]string
}

// Fetcher retrieves raw page bytes for the extraction pipeline. A fetch is a
// single attempt: errors come back tagged retryable or not (see
// resilience.TransportError) and retry policy belongs to the caller.
type Fetcher interface {
	FetchPage(ctx context.Context, req PageRequest) ([]byte, error)
}
