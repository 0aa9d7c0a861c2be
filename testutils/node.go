package testutils

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"testing"
)

// Client issues the three public operations against a base URL.
type Client struct {
	BaseURL string
	HTTP    *http.Client
	// Token is sent as a bearer token when set.
	Token string
}

func NewClient(baseURL string) *Client {
	return &Client{BaseURL: baseURL, HTTP: &http.Client{}}
}

// Put returns the status code and decoded JSON body.
func (c *Client) Put(t *testing.T, key, value string) (int, map[string]string) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"key": key, "value": value})
	req, err := http.NewRequest(http.MethodPut, c.BaseURL+"/put", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(t, req)
}

func (c *Client) Get(t *testing.T, key string) (int, map[string]string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, c.BaseURL+"/get/"+url.PathEscape(key), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return c.do(t, req)
}

func (c *Client) Delete(t *testing.T, key string) (int, map[string]string) {
	t.Helper()
	req, err := http.NewRequest(http.MethodDelete, c.BaseURL+"/delete/"+url.PathEscape(key), nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return c.do(t, req)
}

func (c *Client) do(t *testing.T, req *http.Request) (int, map[string]string) {
	t.Helper()
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", req.Method, req.URL, err)
	}
	defer resp.Body.Close()

	var out map[string]string
	json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}
