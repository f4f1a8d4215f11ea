package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
)

// API is a small JSON client over a Fetcher.
type API struct {
	fetcher *Fetcher
	baseURL string
}

func NewAPI(baseURL string, fetcher *Fetcher) *API {
	return &API{fetcher: fetcher, baseURL: baseURL}
}

func (a *API) URL(path string, params url.Values) string {
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return fmt.Sprintf("%s%s", a.baseURL, path)
}

// Raw fetches path and returns the undecoded body.
func (a *API) Raw(ctx context.Context, path string, params url.Values) ([]byte, error) {
	return a.fetcher.Fetch(ctx, a.URL(path, params))
}

func (a *API) Get(ctx context.Context, path string, params url.Values, v any) error {
	body, err := a.Raw(ctx, path, params)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
