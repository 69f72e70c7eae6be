package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	unsplashAPI = "https://api.unsplash.com"
	pexelsAPI   = "https://api.pexels.com"

	// Stock photo of an engine bay, labelled with the part name. Used when
	// every provider comes up empty so the invoice never shows a broken
	// image slot.
	placeholderBase = "https://images.unsplash.com/photo-1486262715619-67b85e0b08d3?w=200&h=200&fit=crop&auto=format&q=80&text="
)

// ImageClient searches stock-photo providers for a product image. A zero key
// disables the corresponding provider.
type ImageClient struct {
	httpClient  *http.Client
	unsplashKey string
	pexelsKey   string
	unsplashURL string
	pexelsURL   string
}

// NewImageClient builds an image search client. baseURL overrides are for
// tests; empty strings select the real endpoints.
func NewImageClient(httpClient *http.Client, unsplashKey, pexelsKey, unsplashURL, pexelsURL string) *ImageClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if unsplashURL == "" {
		unsplashURL = unsplashAPI
	}
	if pexelsURL == "" {
		pexelsURL = pexelsAPI
	}
	return &ImageClient{
		httpClient:  httpClient,
		unsplashKey: unsplashKey,
		pexelsKey:   pexelsKey,
		unsplashURL: unsplashURL,
		pexelsURL:   pexelsURL,
	}
}

// FindImage returns an image URL for the part, trying Unsplash query
// variants, then Pexels, then a deterministic placeholder. It never returns
// an empty string.
func (c *ImageClient) FindImage(ctx context.Context, partName, category string) string {
	if c.unsplashKey != "" {
		queries := []string{
			partName + " automotive part isolated",
			partName + " car part replacement",
			strings.TrimSpace(category+" "+partName) + " auto part",
			partName + " vehicle component",
		}
		for _, q := range queries {
			if imageURL, err := c.searchUnsplash(ctx, q); err == nil && imageURL != "" {
				return imageURL
			}
		}
	}

	if c.pexelsKey != "" {
		if imageURL, err := c.searchPexels(ctx, partName+" automotive part"); err == nil && imageURL != "" {
			return imageURL
		}
	}

	return placeholderBase + url.QueryEscape(partName)
}

type unsplashResponse struct {
	Results []struct {
		URLs struct {
			Regular string `json:"regular"`
			Small   string `json:"small"`
			Thumb   string `json:"thumb"`
		} `json:"urls"`
	} `json:"results"`
}

func (c *ImageClient) searchUnsplash(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/search/photos?query=%s&per_page=1&orientation=square", c.unsplashURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Client-ID "+c.unsplashKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unsplash search returned %s", resp.Status)
	}

	var body unsplashResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Results) == 0 {
		return "", nil
	}
	urls := body.Results[0].URLs
	for _, u := range []string{urls.Regular, urls.Small, urls.Thumb} {
		if u != "" {
			return u, nil
		}
	}
	return "", nil
}

type pexelsResponse struct {
	Photos []struct {
		Src struct {
			Medium string `json:"medium"`
			Small  string `json:"small"`
		} `json:"src"`
	} `json:"photos"`
}

func (c *ImageClient) searchPexels(ctx context.Context, query string) (string, error) {
	endpoint := fmt.Sprintf("%s/v1/search?query=%s&per_page=1&orientation=square", c.pexelsURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", c.pexelsKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("pexels search returned %s", resp.Status)
	}

	var body pexelsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if len(body.Photos) == 0 {
		return "", nil
	}
	if body.Photos[0].Src.Medium != "" {
		return body.Photos[0].Src.Medium, nil
	}
	return body.Photos[0].Src.Small, nil
}
