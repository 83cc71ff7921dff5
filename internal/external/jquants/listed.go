package jquants

import (
	"context"
	"net/url"
)

type listedInfo struct {
	Code        string `json:"Code"`
	CompanyName string `json:"CompanyName"`
}

type listedPage struct {
	Info          []listedInfo `json:"info"`
	PaginationKey string       `json:"pagination_key"`
}

// ListedNames returns the code to company-name mapping from the listed
// master. Names are cosmetic; callers that get an error fall back to
// bare codes and keep going.
func (c *Client) ListedNames(ctx context.Context) (map[string]string, error) {
	names := make(map[string]string)
	pageKey := ""
	for {
		q := url.Values{}
		if pageKey != "" {
			q.Set("pagination_key", pageKey)
		}
		var page listedPage
		if err := c.getJSON(ctx, "/listed/info", q, &page); err != nil {
			return nil, err
		}
		for _, info := range page.Info {
			if info.Code != "" && info.CompanyName != "" {
				names[info.Code] = info.CompanyName
			}
		}
		if page.PaginationKey == "" {
			break
		}
		pageKey = page.PaginationKey
	}

	c.logger.WithField("names", len(names)).Info("Listed master fetched")
	return names, nil
}
