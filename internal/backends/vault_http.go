package backends

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// vaultHTTP talks to the Vault KV v2 HTTP API directly. kvenv only needs
// two calls, read and list, so it carries no full Vault SDK.
type vaultHTTP struct {
	config     vaultHTTPConfig
	httpClient *http.Client
}

type vaultHTTPConfig struct {
	Address       string
	Token         string
	Mount         string
	Namespace     string
	TLSSkipVerify bool
}

// vaultAPIError is a non-2xx answer from Vault, carrying the HTTP status
// and the messages of the errors array.
type vaultAPIError struct {
	Status   int
	Messages []string
}

func (e *vaultAPIError) Error() string {
	if len(e.Messages) > 0 {
		return fmt.Sprintf("vault returned %d: %s", e.Status, strings.Join(e.Messages, "; "))
	}
	return fmt.Sprintf("vault returned %d", e.Status)
}

func newVaultHTTP(cfg vaultHTTPConfig) *vaultHTTP {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.TLSSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &vaultHTTP{
		config: cfg,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   60 * time.Second,
		},
	}
}

// ReadSecret reads one KV v2 secret and returns its data as strings.
// Non-string values are allowed in Vault; scalars keep their literal form
// and nested values are re-encoded as compact JSON.
func (v *vaultHTTP) ReadSecret(ctx context.Context, path string) (map[string]string, error) {
	url := fmt.Sprintf("%s/v1/%s/data/%s", v.config.Address, v.config.Mount, path)
	body, err := v.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			Data map[string]interface{} `json:"data"`
		} `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decoding vault response for %s: %w", path, err)
	}

	pairs := make(map[string]string, len(envelope.Data.Data))
	for k, raw := range envelope.Data.Data {
		pairs[k] = vaultValueString(raw)
	}
	return pairs, nil
}

// ListKeys lists one metadata directory. dir is either empty or ends with
// a slash.
func (v *vaultHTTP) ListKeys(ctx context.Context, dir string) ([]string, error) {
	url := fmt.Sprintf("%s/v1/%s/metadata/%s?list=true", v.config.Address, v.config.Mount, dir)
	body, err := v.get(ctx, url)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data struct {
			Keys []string `json:"keys"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding vault listing for %s: %w", dir, err)
	}
	return envelope.Data.Keys, nil
}

func (v *vaultHTTP) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Vault-Token", v.config.Token)
	if v.config.Namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.config.Namespace)
	}

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &vaultAPIError{Status: resp.StatusCode}
		var failure struct {
			Errors []string `json:"errors"`
		}
		if json.Unmarshal(body, &failure) == nil {
			apiErr.Messages = failure.Errors
		}
		return nil, apiErr
	}
	return body, nil
}

func vaultValueString(v interface{}) string {
	switch value := v.(type) {
	case string:
		return value
	case bool:
		return strconv.FormatBool(value)
	case json.Number:
		return value.String()
	case nil:
		return ""
	default:
		encoded, err := json.Marshal(value)
		if err != nil {
			return fmt.Sprintf("%v", value)
		}
		return string(encoded)
	}
}
