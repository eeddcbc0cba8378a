// File: internal/extractor/extractor.go
// Scans captured browser traffic for the GraphQL persisted query hash IMDb's
// web client attaches to its API calls.
package extractor

import (
	"errors"
	"net/url"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/xkilldash9x/gqlharvest/api/schemas"
)

var (
	// ErrNoRequests means the crawl finished without capturing any traffic,
	// usually a sign the page never loaded.
	ErrNoRequests = errors.New("no network requests captured")
	// ErrNoGraphQLRequests means the page loaded but never called the
	// GraphQL API host.
	ErrNoGraphQLRequests = errors.New("no graphql requests captured")
	// ErrNoHash means GraphQL requests were seen but none carried a
	// persisted query hash in its extensions parameter.
	ErrNoHash = errors.New("no persisted query hash found in captured requests")
)

var (
	operationNameRe = regexp.MustCompile(`[?&]operationName=([^&]+)`)
	extensionsRe    = regexp.MustCompile(`[?&]extensions=([^&]+)`)
)

// Extractor scans captured requests with a static operation priority list.
type Extractor struct {
	logger      *zap.Logger
	graphqlHost string
	priority    []string
}

// New creates an Extractor. The priority list ranks operation names whose
// hashes are preferred; requests outside the list are only consulted when no
// priority operation yields a hash.
func New(logger *zap.Logger, graphqlHost string, priority []string) *Extractor {
	return &Extractor{
		logger:      logger.Named("extractor"),
		graphqlHost: graphqlHost,
		priority:    priority,
	}
}

// Extract scans the captured requests and returns the first persisted query
// hash, favoring the configured priority operations over capture order.
func (e *Extractor) Extract(requests []schemas.NetworkRequest) (*schemas.ExtractionResult, error) {
	if len(requests) == 0 {
		return nil, ErrNoRequests
	}

	gql := e.filterGraphQL(requests)
	if len(gql) == 0 {
		return nil, ErrNoGraphQLRequests
	}
	e.logger.Info("Filtered GraphQL requests.", zap.Int("count", len(gql)), zap.Int("captured", len(requests)))
	e.logger.Info("Observed operations.", zap.Strings("operations", operationNames(gql)))

	// Priority pass: walk the ranked operations first so a late-arriving
	// WatchListPage request still beats an earlier sidebar call.
	for _, op := range e.priority {
		for _, req := range gql {
			// Exact match on the parsed name; a substring check would let
			// WatchListPageRefiner satisfy the WatchListPage rank.
			if operationName(req.URL) != op {
				continue
			}
			if hash, ok := hashFromURL(req.URL); ok {
				e.logger.Info("Extracted hash from priority operation.",
					zap.String("operation", op),
					zap.String("hash", hash),
				)
				return &schemas.ExtractionResult{Hash: hash, Operation: op, RequestURL: req.URL}, nil
			}
		}
	}

	// Fallback pass: any GraphQL request, in capture order.
	e.logger.Info("No priority operation yielded a hash; scanning all GraphQL requests.")
	for _, req := range gql {
		hash, ok := hashFromURL(req.URL)
		if !ok {
			continue
		}
		op := operationName(req.URL)
		e.logger.Info("Extracted hash from fallback operation.",
			zap.String("operation", op),
			zap.String("hash", hash),
		)
		return &schemas.ExtractionResult{Hash: hash, Operation: op, RequestURL: req.URL}, nil
	}

	return nil, ErrNoHash
}

// filterGraphQL keeps only request events addressed to the GraphQL API host.
func (e *Extractor) filterGraphQL(requests []schemas.NetworkRequest) []schemas.NetworkRequest {
	filtered := make([]schemas.NetworkRequest, 0, len(requests))
	for _, req := range requests {
		if req.EventType != schemas.EventTypeRequest || req.URL == "" {
			continue
		}
		if !strings.Contains(req.URL, e.graphqlHost) {
			continue
		}
		filtered = append(filtered, req)
	}
	return filtered
}

// operationNames returns the distinct operation names in capture order.
func operationNames(requests []schemas.NetworkRequest) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, len(requests))
	for _, req := range requests {
		m := operationNameRe.FindStringSubmatch(req.URL)
		if m == nil {
			continue
		}
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// operationName extracts a single request's operation name, or "unknown".
func operationName(rawURL string) string {
	if m := operationNameRe.FindStringSubmatch(rawURL); m != nil {
		return m[1]
	}
	return "unknown"
}

// hashFromURL decodes the extensions query parameter and digs out
// persistedQuery.sha256Hash. Malformed blobs are skipped, not fatal.
func hashFromURL(rawURL string) (string, bool) {
	m := extensionsRe.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}

	// PathUnescape leaves literal '+' alone; the blob is URL-encoded, not
	// form-encoded.
	decoded, err := url.PathUnescape(m[1])
	if err != nil {
		// Some clients send the blob unencoded; try it as-is.
		decoded = m[1]
	}

	hash := gjson.Get(decoded, "persistedQuery.sha256Hash")
	if !hash.Exists() || hash.String() == "" {
		return "", false
	}
	return hash.String(), true
}
