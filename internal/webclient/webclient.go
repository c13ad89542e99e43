// Package webclient is the outbound HTTP layer used by the scan and
// assistant clients.
package webclient

import "context"

type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}
