package backend

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// maxResponseBody caps how much of any backend response is read.
const maxResponseBody = 1 << 20

// postForm submits form to endpoint and returns the body of a 2xx response.
func postForm(ctx context.Context, client *http.Client, endpoint string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "post %s", endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", endpoint)
	}
	if resp.StatusCode/100 != 2 {
		return nil, errors.Errorf("post %s: %s", endpoint, resp.Status)
	}
	return body, nil
}
