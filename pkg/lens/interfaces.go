package lens

import (
	"context"
	"net/http"
)

//go:generate mockgen -destination=mock_lens.go -package=lens github.com/carverauto/lens-sync/pkg/lens HTTPClient,TokenExchanger,TokenProvider,PageFetcher,SummaryFetcher,Controller

// HTTPClient defines the interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// TokenExchanger trades client credentials for an access token.
type TokenExchanger interface {
	ExchangeToken(ctx context.Context) (*AccessTokenResponse, error)
}

// TokenProvider hands out a currently valid token, refreshing when needed.
type TokenProvider interface {
	EnsureToken(ctx context.Context) (Token, error)
	Invalidate()
}

// PageFetcher fetches one page of the filtered device search.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor Cursor, filter FilterExpression, token Token) (*Page, error)
}

// SummaryFetcher fetches the system summary.
type SummaryFetcher interface {
	FetchSummary(ctx context.Context, filter FilterExpression, token Token) (*Summary, error)
}

// Controller executes device control mutations.
type Controller interface {
	RebootDevice(ctx context.Context, deviceID string, token Token) error
}
