package http

import (
	"fmt"
	"net/url"
	"strings"
)

// BuildURL joins path onto the path of baseURL and sets queryParams.
func BuildURL(baseURL, path string, queryParams map[string]string) (string, error) {
	// Parse the base URL
	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("error parsing base URL: %w", err)
	}

	// Append the path, keeping any prefix the base URL carries
	if path != "" {
		parsedURL.Path = strings.TrimRight(parsedURL.Path, "/") + "/" + strings.TrimLeft(path, "/")
	}

	// Set query parameters dynamically
	if len(queryParams) > 0 {
		q := url.Values{}
		for key, value := range queryParams {
			q.Set(key, value)
		}
		parsedURL.RawQuery = q.Encode()
	}

	// Return the full URL as a string
	return parsedURL.String(), nil
}

// StripQuery returns rawURL without query string and fragment.
func StripQuery(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
