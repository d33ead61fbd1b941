/*
Package client implements the client identity resolver against the client
service's REST API.

PURPOSE:
  Accounts reference clients owned by a separate service. This package is
  the only place that knows the wire format of `GET /api/clients/{id}`.

FAILURE MAPPING:
  404                      -> ledger.ErrClientNotFound
  transport error / 5xx    -> ledger.ErrClientUnavailable (after retries)
  other non-2xx            -> ledger.ErrClientUnavailable

RETRIES:
  Transient failures are retried a small, fixed number of times with linear
  backoff before surfacing ErrClientUnavailable. Not-found is never retried.

SEE ALSO:
  - ledger/client.go: the interface and its failure semantics
*/
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sofka/account-ledger/ledger"
)

const (
	defaultTimeout = 3 * time.Second
	defaultRetries = 2
	retryBackoff   = 200 * time.Millisecond
)

// Resolver resolves client identity over HTTP.
type Resolver struct {
	BaseURL string
	Client  *http.Client
	Log     *logrus.Logger

	// Retries is the number of additional attempts after a transient
	// failure; zero means a single attempt.
	Retries int
}

func NewResolver(baseURL string, log *logrus.Logger) *Resolver {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Resolver{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: defaultTimeout},
		Log:     log,
		Retries: defaultRetries,
	}
}

// clientPayload is the slice of the client service's response we consume.
type clientPayload struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Active *bool  `json:"active"`
}

// Resolve implements ledger.ClientResolver.
func (r *Resolver) Resolve(ctx context.Context, id ledger.ClientID) (ledger.Client, error) {
	url := fmt.Sprintf("%s/api/clients/%d", r.BaseURL, id)

	var lastErr error
	for attempt := 0; attempt <= r.Retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ledger.Client{}, fmt.Errorf("%w: %v", ledger.ErrClientUnavailable, ctx.Err())
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}

		client, retryable, err := r.fetch(ctx, url, id)
		if err == nil {
			return client, nil
		}
		if !retryable {
			return ledger.Client{}, err
		}
		lastErr = err
		r.Log.WithFields(logrus.Fields{"client_id": id, "attempt": attempt + 1}).
			WithError(err).Warn("client service request failed")
	}
	return ledger.Client{}, lastErr
}

func (r *Resolver) fetch(ctx context.Context, url string, id ledger.ClientID) (ledger.Client, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ledger.Client{}, false, fmt.Errorf("%w: %v", ledger.ErrClientUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return ledger.Client{}, true, fmt.Errorf("%w: %v", ledger.ErrClientUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ledger.Client{}, false, ledger.ErrClientNotFound
	case resp.StatusCode >= 500:
		return ledger.Client{}, true, fmt.Errorf("%w: status %d", ledger.ErrClientUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return ledger.Client{}, false, fmt.Errorf("%w: unexpected status %d", ledger.ErrClientUnavailable, resp.StatusCode)
	}

	var payload clientPayload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return ledger.Client{}, false, fmt.Errorf("%w: decoding response: %v", ledger.ErrClientUnavailable, err)
	}

	active := payload.Active == nil || *payload.Active
	return ledger.Client{ID: ledger.ClientID(payload.ID), Name: payload.Name, Active: active}, false, nil
}
