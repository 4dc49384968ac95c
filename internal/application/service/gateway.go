package service

import (
	"context"

	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
)

// Target names the remote instance a run is directed at. Empty fields fall
// back to the configured defaults of the dialer.
type Target struct {
	Server   string
	Username string
	Password string
}

type GatewayDialer interface {
	Dial(ctx context.Context, target Target) (taxonomy.Session, error)
}
