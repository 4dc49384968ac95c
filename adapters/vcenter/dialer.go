package vcenter

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"

	"github.com/vmware/govmomi/vapi/rest"
	"github.com/vmware/govmomi/vim25"
	"github.com/vmware/govmomi/vim25/soap"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/taxonomy"
	"github.com/khoahotran/tagvault/pkg/apperror"
	"github.com/khoahotran/tagvault/pkg/logger"
)

// Dialer opens REST sessions. Target fields left empty fall back to the
// configured vCenter defaults.
type Dialer struct {
	defaults service.Target
	insecure bool
	logger   logger.Logger
}

var _ service.GatewayDialer = (*Dialer)(nil)

func NewDialer(cfg config.Config, log logger.Logger) *Dialer {
	return &Dialer{
		defaults: service.Target{
			Server:   cfg.VCenter.Server,
			Username: cfg.VCenter.Username,
			Password: cfg.VCenter.Password,
		},
		insecure: cfg.VCenter.Insecure,
		logger:   log,
	}
}

// Dial accepts a bare host name or a full SDK URL; the session reports the
// canonical host. Any failure before the session is established is reported
// as apperror.ErrUnavailable.
func (d *Dialer) Dial(ctx context.Context, target service.Target) (taxonomy.Session, error) {
	if target.Server == "" {
		target.Server = d.defaults.Server
	}
	if target.Username == "" {
		target.Username = d.defaults.Username
		target.Password = d.defaults.Password
	}
	if target.Server == "" {
		return nil, apperror.NewInvalidInput("no vCenter server configured", nil)
	}

	u, err := soap.ParseURL(target.Server)
	if err != nil {
		return nil, apperror.NewInvalidInput("invalid vCenter server address", err)
	}
	u.User = nil
	target.Server = canonicalHost(u)

	soapClient := soap.NewClient(u, d.insecure)
	vc, err := vim25.NewClient(ctx, soapClient)
	if err != nil {
		d.logger.Error("Failed to reach vCenter", err, zap.String("server", target.Server))
		return nil, apperror.NewUnavailable(target.Server, err)
	}

	rc := rest.NewClient(vc)
	if err := rc.Login(ctx, url.UserPassword(target.Username, target.Password)); err != nil {
		d.logger.Error("Failed to log in to vCenter", err, zap.String("server", target.Server), zap.String("username", target.Username))
		return nil, apperror.NewUnavailable(target.Server, err)
	}

	d.logger.Info("vCenter session established", zap.String("server", target.Server), zap.String("username", target.Username))
	return NewSession(rc, target.Server, d.logger), nil
}

// CanonicalServer reduces a bare host name or an SDK URL to the host Dial
// connects to. "vc1", "VC1:443" and "https://vc1/sdk" all yield "vc1".
func CanonicalServer(raw string) (string, error) {
	u, err := soap.ParseURL(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	if u == nil || u.Hostname() == "" {
		return "", errors.New("empty server address")
	}
	return canonicalHost(u), nil
}

func canonicalHost(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" || (u.Scheme == "https" && port == "443") || (u.Scheme == "http" && port == "80") {
		if strings.Contains(host, ":") {
			return "[" + host + "]"
		}
		return host
	}
	return net.JoinHostPort(host, port)
}
