// Package action performs ticket transitions against the board backend.
package action

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"tapflow/workflow"
)

// DefaultTimeout bounds one transition call.
const DefaultTimeout = 5 * time.Second

// Config holds API backend settings.
type Config struct {
	URL      string        `yaml:"url"` // e.g. "http://localhost/api"
	CAFile   string        `yaml:"ca_file"`
	Token    string        `yaml:"token"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Timeout  time.Duration `yaml:"timeout"`
}

// RemoteError is a non-success answer from the backend.
type RemoteError struct {
	Status  int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned %d", e.Status)
	}
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// HTTP posts transitions to {url}/tickets/{id}/{start|complete}.
type HTTP struct {
	cfg    Config
	base   string
	client *http.Client
}

// NewHTTP creates the executor. A CA file switches on certificate
// verification against that CA only.
func NewHTTP(cfg Config) (*HTTP, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("api url missing")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA cert: %w", err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("no certificates in %s", cfg.CAFile)
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: caCertPool}
	}

	return &HTTP{
		cfg:    cfg,
		base:   strings.TrimRight(cfg.URL, "/"),
		client: &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}, nil
}

// Transition implements workflow.Executor. Any non-2xx answer is a *RemoteError.
func (h *HTTP) Transition(ctx context.Context, ticketID int, t workflow.Transition) error {
	url := fmt.Sprintf("%s/tickets/%d/%s", h.base, ticketID, t)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	switch {
	case h.cfg.Token != "":
		req.Header.Set("Authorization", "Bearer "+h.cfg.Token)
	case h.cfg.Username != "":
		req.SetBasicAuth(h.cfg.Username, h.cfg.Password)
	}
	req.Header.Set("Accept", "application/json")

	response, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("make request: %w", err)
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, 4096))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		return &RemoteError{Status: response.StatusCode, Message: errorMessage(body)}
	}
	return nil
}

// errorMessage prefers the backend's {"error": "..."} field over the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(body))
}
