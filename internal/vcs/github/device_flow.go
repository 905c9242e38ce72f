package github

import (
	"context"
	stderrors "errors"
	"time"

	domainErrors "github.com/thomas-vilte/materelease/internal/errors"
	"github.com/thomas-vilte/materelease/internal/logger"
	"github.com/thomas-vilte/materelease/internal/models"
	"golang.org/x/oauth2"
	githubOAuth "golang.org/x/oauth2/github"
)

// DeviceFlow implements the OAuth 2.0 Device Authorization Grant against
// GitHub.
type DeviceFlow struct {
	config *oauth2.Config
	now    func() time.Time
}

func NewDeviceFlow(clientID string, scopes ...string) *DeviceFlow {
	endpoint := githubOAuth.Endpoint
	// GitHub apps have no client secret; client_id travels in the body.
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return NewDeviceFlowWithEndpoint(clientID, endpoint, scopes...)
}

func NewDeviceFlowWithEndpoint(clientID string, endpoint oauth2.Endpoint, scopes ...string) *DeviceFlow {
	if len(scopes) == 0 {
		scopes = []string{"repo"}
	}
	return &DeviceFlow{
		config: &oauth2.Config{
			ClientID: clientID,
			Endpoint: endpoint,
			Scopes:   scopes,
		},
		now: time.Now,
	}
}

// Start requests a device and user code. The user code and verification URI
// must be shown to the user.
func (d *DeviceFlow) Start(ctx context.Context) (models.DeviceCode, error) {
	if d.config.ClientID == "" {
		return models.DeviceCode{}, domainErrors.ErrClientIDMissing
	}

	resp, err := d.config.DeviceAuth(ctx)
	if err != nil {
		return models.DeviceCode{}, domainErrors.ErrDeviceFlow.WithError(err).WithContext("stage", "device code")
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return models.DeviceCode{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		Expiry:          resp.Expiry,
		Interval:        interval,
	}, nil
}

// Poll waits for the user to approve the code. It polls at the
// provider-given interval and stops at the code's expiry: the outcome is a
// token, ErrDeviceAccessDenied or ErrDeviceCodeExpired.
func (d *DeviceFlow) Poll(ctx context.Context, code models.DeviceCode) (string, error) {
	log := logger.FromContext(ctx)

	if !code.Expiry.IsZero() {
		if !d.now().Before(code.Expiry) {
			return "", domainErrors.ErrDeviceCodeExpired
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, code.Expiry)
		defer cancel()
	}

	tok, err := d.config.DeviceAccessToken(ctx, &oauth2.DeviceAuthResponse{
		DeviceCode:      code.DeviceCode,
		UserCode:        code.UserCode,
		VerificationURI: code.VerificationURI,
		Expiry:          code.Expiry,
		Interval:        int64(code.Interval / time.Second),
	})
	if err == nil {
		log.Info("device login approved")
		return tok.AccessToken, nil
	}

	var retrieveErr *oauth2.RetrieveError
	if stderrors.As(err, &retrieveErr) {
		switch retrieveErr.ErrorCode {
		case "access_denied":
			return "", domainErrors.ErrDeviceAccessDenied.WithError(err)
		case "expired_token":
			return "", domainErrors.ErrDeviceCodeExpired.WithError(err)
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) && !code.Expiry.IsZero() && !d.now().Before(code.Expiry) {
		return "", domainErrors.ErrDeviceCodeExpired
	}

	log.Warn("device login failed", "error", err)
	return "", domainErrors.ErrDeviceFlow.WithError(err).WithContext("stage", "token")
}
