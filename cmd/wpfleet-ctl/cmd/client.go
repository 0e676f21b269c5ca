package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/wpfleet/wpfleet/internal/api"
)

// APIClient handles communication with the wpfleet server
type APIClient struct {
	BaseURL string
	Client  *http.Client
}

// NewClient creates a new APIClient. Bulk operations wait on every site, so
// the timeout is generous.
func NewClient() *APIClient {
	return &APIClient{
		BaseURL: strings.TrimRight(viper.GetString("url"), "/"),
		Client: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// Get performs a GET request
func (c *APIClient) Get(path string) (*http.Response, error) {
	return c.Client.Get(c.BaseURL + path)
}

// Post performs a POST request
func (c *APIClient) Post(path string, body interface{}) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return c.Client.Post(c.BaseURL+path, "application/json", bytes.NewBuffer(jsonBody))
}

// Patch performs a PATCH request
func (c *APIClient) Patch(path string, body interface{}) (*http.Response, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPatch, c.BaseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.Client.Do(req)
}

// Delete performs a DELETE request
func (c *APIClient) Delete(path string) (*http.Response, error) {
	req, err := http.NewRequest(http.MethodDelete, c.BaseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.Client.Do(req)
}

// CheckResponse checks the API response for errors
func CheckResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(resp.Body)
	var apiResp api.APIResponse
	if err := json.Unmarshal(body, &apiResp); err == nil && apiResp.Message != "" {
		return fmt.Errorf("API Error (%d): %s", resp.StatusCode, apiResp.Message)
	}

	return fmt.Errorf("API Error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

// DecodeData checks resp and decodes the data field of the envelope into out.
// It returns the envelope message.
func DecodeData(resp *http.Response, out interface{}) (string, error) {
	if err := CheckResponse(resp); err != nil {
		return "", err
	}
	var envelope struct {
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", fmt.Errorf("error decoding response: %v", err)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return "", fmt.Errorf("error decoding response: %v", err)
		}
	}
	return envelope.Message, nil
}

// PrintJSON prints data as JSON
func PrintJSON(data interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		fmt.Printf("Error encoding JSON: %v\n", err)
	}
}

func sitePath(id string, rest ...string) string {
	path := "/api/v1/sites/" + url.PathEscape(id)
	for _, part := range rest {
		path += "/" + part
	}
	return path
}

func siteQuery(id string) string {
	if id == "" {
		return ""
	}
	return "?site=" + url.QueryEscape(id)
}
