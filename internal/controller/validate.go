package controller

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/wpfleet/wpfleet/internal/api"
)

// NormalizeSiteURL trims whitespace and trailing slashes and requires an
// absolute http(s) URL.
func NormalizeSiteURL(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("%w: url is required", ErrInvalidSite)
	}
	if !strings.Contains(value, "://") {
		value = "https://" + value
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return "", fmt.Errorf("%w: invalid url: %v", ErrInvalidSite, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: unsupported url scheme %q", ErrInvalidSite, parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: url host is required", ErrInvalidSite)
	}
	if parsed.RawQuery != "" || parsed.Fragment != "" {
		return "", fmt.Errorf("%w: url must not contain a query or fragment", ErrInvalidSite)
	}

	parsed.Scheme = scheme
	parsed.Host = strings.ToLower(parsed.Host)
	return strings.TrimRight(parsed.String(), "/"), nil
}

func validateDraft(draft api.SiteDraft) (api.SiteDraft, error) {
	draft.Name = strings.TrimSpace(draft.Name)
	draft.APIKey = strings.TrimSpace(draft.APIKey)
	draft.APISecret = strings.TrimSpace(draft.APISecret)

	if draft.Name == "" {
		return draft, fmt.Errorf("%w: name is required", ErrInvalidSite)
	}
	if draft.APIKey == "" || draft.APISecret == "" {
		return draft, fmt.Errorf("%w: api key and secret are required", ErrInvalidSite)
	}
	normalized, err := NormalizeSiteURL(draft.URL)
	if err != nil {
		return draft, err
	}
	draft.URL = normalized

	if draft.Client != nil {
		if err := validateClient(*draft.Client); err != nil {
			return draft, err
		}
	}
	return draft, nil
}

func validatePatch(patch api.SitePatch) (api.SitePatch, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return patch, fmt.Errorf("%w: name must not be empty", ErrInvalidSite)
		}
		patch.Name = &name
	}
	if patch.URL != nil {
		normalized, err := NormalizeSiteURL(*patch.URL)
		if err != nil {
			return patch, err
		}
		patch.URL = &normalized
	}
	for _, field := range []*string{patch.APIKey, patch.APISecret} {
		if field != nil && strings.TrimSpace(*field) == "" {
			return patch, fmt.Errorf("%w: credentials must not be empty", ErrInvalidSite)
		}
	}
	if patch.Status != nil && !patch.Status.Valid() {
		return patch, fmt.Errorf("%w: unknown status %q", ErrInvalidSite, *patch.Status)
	}
	if patch.Client != nil {
		if err := validateClient(*patch.Client); err != nil {
			return patch, err
		}
	}
	return patch, nil
}

func validateClient(client api.ClientInfo) error {
	if client.ReportDay != 0 && (client.ReportDay < 1 || client.ReportDay > 28) {
		return fmt.Errorf("%w: report day must be between 1 and 28", ErrInvalidSite)
	}
	if client.SendReports && strings.TrimSpace(client.Email) == "" {
		return fmt.Errorf("%w: client email is required to send reports", ErrInvalidSite)
	}
	return nil
}
