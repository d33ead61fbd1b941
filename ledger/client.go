/*
client.go - Client identity resolver collaborator

PURPOSE:
  Accounts are owned by clients that live in a separate service. The engine
  only needs to know whether a client exists and what to call it; this
  interface is that boundary.

FAILURE SEMANTICS:
  - ErrClientNotFound:    the client doesn't exist. Aborts account
    creation/update.
  - ErrClientUnavailable: the client service can't be reached. Also aborts
    account mutations (the caller may retry with backoff), but statement
    generation degrades to an empty client name instead of failing.

SEE ALSO:
  - client/http.go: HTTP implementation against the client service
  - statement.go:   the degrade-to-empty-name read path
*/
package ledger

import "context"

// Client is the slice of client identity the engine cares about.
type Client struct {
	ID     ClientID
	Name   string
	Active bool
}

// ClientResolver looks up client identity in the client service.
type ClientResolver interface {
	// Resolve returns the client, ErrClientNotFound, or ErrClientUnavailable.
	Resolve(ctx context.Context, id ClientID) (Client, error)
}
