// Package auth resolves the signing credentials used for the upstream
// transcription endpoint, optionally through a role-assumption exchange with
// the security token service.
package auth

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"

	"stt-relay-service/internal/signer"
)

// ErrAuthResolution indicates a credential or role-assumption failure. It is
// fatal to the session: the caller must close the inbound socket and must not
// open the upstream connection.
var ErrAuthResolution = errors.New("auth resolution error")

// Credentials is a resolved signing credential set.
type Credentials struct {
	AccessKeyId     string
	SecretAccessKey string
	SessionToken    string
}

// Provider resolves credentials for a session. With no role configured the
// ambient credentials pass through unchanged; with a role ARN every Resolve
// performs a fresh token exchange and returns the short-lived credentials.
type Provider struct {
	ambient  Credentials
	roleArn  string
	region   string
	endpoint string
	client   *http.Client
	now      func() time.Time
}

// Option customizes a Provider.
type Option func(*Provider)

// WithEndpoint overrides the token service endpoint.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) { p.endpoint = endpoint }
}

// WithHTTPClient overrides the HTTP client used for the exchange.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) { p.client = c }
}

// WithClock overrides the signing clock.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

// NewProvider builds a credential provider. roleArn may be empty.
func NewProvider(ambient Credentials, roleArn, region string, opts ...Option) *Provider {
	p := &Provider{
		ambient:  ambient,
		roleArn:  roleArn,
		region:   region,
		endpoint: fmt.Sprintf("https://sts.%s.amazonaws.com", region),
		client:   &http.Client{Timeout: 10 * time.Second},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Resolve returns the credential set for a new session.
func (p *Provider) Resolve(ctx context.Context) (Credentials, error) {
	if p.roleArn == "" {
		return p.ambient, nil
	}
	return p.assumeRole(ctx)
}

// assumeRoleResponse mirrors the token service XML response.
type assumeRoleResponse struct {
	XMLName xml.Name `xml:"AssumeRoleResponse"`
	Result  struct {
		Credentials struct {
			AccessKeyId     string `xml:"AccessKeyId"`
			SecretAccessKey string `xml:"SecretAccessKey"`
			SessionToken    string `xml:"SessionToken"`
			Expiration      string `xml:"Expiration"`
		} `xml:"Credentials"`
	} `xml:"AssumeRoleResult"`
}

func (p *Provider) assumeRole(ctx context.Context) (Credentials, error) {
	endpoint, err := url.Parse(p.endpoint)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: invalid endpoint %q: %v", ErrAuthResolution, p.endpoint, err)
	}

	now := p.now()
	sessionName := "stt-relay-" + now.UTC().Format("20060102T150405Z")

	signed, err := signer.Presign(http.MethodGet, endpoint.Host, "/", "sts", signer.HexPayloadHash(nil), signer.Options{
		Key:          p.ambient.AccessKeyId,
		Secret:       p.ambient.SecretAccessKey,
		SessionToken: p.ambient.SessionToken,
		Protocol:     endpoint.Scheme,
		Region:       p.region,
		Expires:      60,
		Timestamp:    now,
		Query: map[string]string{
			"Action":          "AssumeRole",
			"Version":         "2011-06-15",
			"RoleArn":         p.roleArn,
			"RoleSessionName": sessionName,
		},
	})
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrAuthResolution, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, signed, nil)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: %v", ErrAuthResolution, err)
	}
	req.Header.Set("Accept", "application/xml")

	resp, err := p.client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: token exchange request: %v", ErrAuthResolution, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credentials{}, fmt.Errorf("%w: reading token exchange response: %v", ErrAuthResolution, err)
	}

	if resp.StatusCode != http.StatusOK {
		log.Error().
			Str("roleArn", p.roleArn).
			Int("status", resp.StatusCode).
			Msg("Role assumption rejected by identity service")
		return Credentials{}, fmt.Errorf("%w: identity service returned status %d", ErrAuthResolution, resp.StatusCode)
	}

	var parsed assumeRoleResponse
	if err := xml.Unmarshal(body, &parsed); err != nil {
		return Credentials{}, fmt.Errorf("%w: parsing token exchange response: %v", ErrAuthResolution, err)
	}

	creds := Credentials{
		AccessKeyId:     parsed.Result.Credentials.AccessKeyId,
		SecretAccessKey: parsed.Result.Credentials.SecretAccessKey,
		SessionToken:    parsed.Result.Credentials.SessionToken,
	}
	if creds.AccessKeyId == "" || creds.SecretAccessKey == "" {
		return Credentials{}, fmt.Errorf("%w: token exchange returned empty credentials", ErrAuthResolution)
	}

	log.Debug().
		Str("roleArn", p.roleArn).
		Str("sessionName", sessionName).
		Msg("Assumed role for transcription session")
	return creds, nil
}
