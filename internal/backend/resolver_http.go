package backend

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
)

// HTTPResolver asks the backend panel for a miner's pool with a form post of
// the shared secret and the miner's address.
type HTTPResolver struct {
	endpoint string
	secret   string
	client   *http.Client
}

// NewHTTPResolver returns a resolver posting to endpoint.
func NewHTTPResolver(endpoint, secret string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		endpoint: endpoint,
		secret:   secret,
		client:   &http.Client{Timeout: timeout},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, clientAddress string) (Destination, error) {
	form := url.Values{
		"password": {r.secret},
		"address":  {clientAddress},
	}
	body, err := postForm(ctx, r.client, r.endpoint, form)
	if err != nil {
		return Destination{}, errors.Wrap(err, "resolve destination")
	}
	return decodeDestination(body)
}

func (r *HTTPResolver) Close() error {
	r.client.CloseIdleConnections()
	return nil
}
