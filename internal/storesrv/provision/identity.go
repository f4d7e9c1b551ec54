package provision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/storeforge/storeforge/internal/common/apperrors"
	"github.com/storeforge/storeforge/internal/storesrv/config"
)

// IdentityProvider is the boundary to the external identity system. A
// provisioned store gets an OAuth client and an initial admin user; both
// operations are idempotent on the provider side keyed by name, so a
// retried onboarding attempt converges instead of duplicating.
type IdentityProvider interface {
	CreateClient(ctx context.Context, tenantKey string) (clientID string, err apperrors.Error)
	CreateAdminUser(ctx context.Context, tenantKey, email string) (userID string, err apperrors.Error)
	AssignRole(ctx context.Context, userID, role string) apperrors.Error
}

// keycloakProvider talks to a Keycloak-compatible admin API.
type keycloakProvider struct {
	baseURL string
	realm   string
	client  *http.Client

	mu          sync.Mutex
	adminToken  string
	tokenExpiry time.Time
}

// NewIdentityProvider builds the identity provider client from the loaded
// configuration.
func NewIdentityProvider() IdentityProvider {
	c := config.Config().Identity
	return &keycloakProvider{
		baseURL: strings.TrimRight(c.BaseURL, "/"),
		realm:   c.Realm,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

// token returns a valid admin access token, fetching a fresh one through
// the password grant when the cached token is near expiry. The token is
// never validated here; only its exp claim is read to schedule renewal.
func (p *keycloakProvider) token(ctx context.Context) (string, apperrors.Error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.adminToken != "" && time.Until(p.tokenExpiry) > 30*time.Second {
		return p.adminToken, nil
	}

	c := config.Config().Identity
	form := url.Values{
		"grant_type": {"password"},
		"client_id":  {"admin-cli"},
		"username":   {c.AdminUser},
		"password":   {c.AdminPassword},
	}
	tokenURL := p.baseURL + "/realms/master/protocol/openid-connect/token"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", ErrIdentityProvisioning.MsgErr("unable to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, herr := p.do(ctx, req, http.StatusOK)
	if herr != nil {
		return "", herr
	}

	token := gjson.GetBytes(body, "access_token").String()
	if token == "" {
		return "", ErrIdentityProvisioning.Msg("token response carried no access_token")
	}

	expiry := time.Now().Add(30 * time.Second)
	if parsed, _, perr := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{}); perr == nil {
		if exp, eerr := parsed.Claims.GetExpirationTime(); eerr == nil && exp != nil {
			expiry = exp.Time
		}
	}

	p.adminToken = token
	p.tokenExpiry = expiry
	return token, nil
}

// CreateClient registers an OAuth client named after the tenant key and
// returns the provider's id for it. An already-registered client is looked
// up and reused.
func (p *keycloakProvider) CreateClient(ctx context.Context, tenantKey string) (string, apperrors.Error) {
	clientName := "store-" + tenantKey
	payload, _ := json.Marshal(map[string]any{
		"clientId":               clientName,
		"enabled":                true,
		"publicClient":           false,
		"serviceAccountsEnabled": true,
	})

	rsp, err := p.adminPost(ctx, p.adminPath("clients"), payload)
	if err == nil {
		if id := idFromLocation(rsp); id != "" {
			return id, nil
		}
	} else if rsp == nil || rsp.StatusCode != http.StatusConflict {
		return "", err
	}

	// Conflict or missing Location: resolve the id by name.
	body, err := p.adminGet(ctx, p.adminPath("clients")+"?clientId="+url.QueryEscape(clientName))
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "0.id").String()
	if id == "" {
		return "", ErrIdentityProvisioning.Msg("client " + clientName + " not found after creation")
	}
	return id, nil
}

// CreateAdminUser registers the store's initial admin user and returns the
// provider's id for it.
func (p *keycloakProvider) CreateAdminUser(ctx context.Context, tenantKey, email string) (string, apperrors.Error) {
	username := tenantKey + "-admin"
	payload, _ := json.Marshal(map[string]any{
		"username":      username,
		"email":         email,
		"enabled":       true,
		"emailVerified": false,
	})

	rsp, err := p.adminPost(ctx, p.adminPath("users"), payload)
	if err == nil {
		if id := idFromLocation(rsp); id != "" {
			return id, nil
		}
	} else if rsp == nil || rsp.StatusCode != http.StatusConflict {
		return "", err
	}

	body, err := p.adminGet(ctx, p.adminPath("users")+"?username="+url.QueryEscape(username)+"&exact=true")
	if err != nil {
		return "", err
	}
	id := gjson.GetBytes(body, "0.id").String()
	if id == "" {
		return "", ErrIdentityProvisioning.Msg("user " + username + " not found after creation")
	}
	return id, nil
}

// AssignRole grants a realm role to the user. Assigning an already-held
// role succeeds.
func (p *keycloakProvider) AssignRole(ctx context.Context, userID, role string) apperrors.Error {
	body, err := p.adminGet(ctx, p.adminPath("roles", role))
	if err != nil {
		return err
	}
	roleID := gjson.GetBytes(body, "id").String()
	if roleID == "" {
		return ErrIdentityProvisioning.Msg("role " + role + " not defined in realm")
	}

	payload, _ := json.Marshal([]map[string]any{{"id": roleID, "name": role}})
	_, err = p.adminPost(ctx, p.adminPath("users", userID, "role-mappings", "realm"), payload)
	return err
}

func (p *keycloakProvider) adminPath(parts ...string) string {
	return p.baseURL + "/admin/realms/" + path.Join(append([]string{p.realm}, parts...)...)
}

func (p *keycloakProvider) adminPost(ctx context.Context, u string, payload []byte) (*http.Response, apperrors.Error) {
	token, terr := p.token(ctx)
	if terr != nil {
		return nil, terr
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return nil, ErrIdentityProvisioning.MsgErr("unable to build identity request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	rsp, herr := p.send(ctx, req)
	if herr != nil {
		return nil, herr
	}
	defer rsp.Body.Close()
	io.Copy(io.Discard, rsp.Body)

	switch rsp.StatusCode {
	case http.StatusCreated, http.StatusNoContent, http.StatusOK:
		return rsp, nil
	default:
		return rsp, ErrIdentityProvisioning.Msg(fmt.Sprintf("identity provider returned %d for %s", rsp.StatusCode, u))
	}
}

func (p *keycloakProvider) adminGet(ctx context.Context, u string) ([]byte, apperrors.Error) {
	token, terr := p.token(ctx)
	if terr != nil {
		return nil, terr
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, ErrIdentityProvisioning.MsgErr("unable to build identity request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return p.do(ctx, req, http.StatusOK)
}

// do sends the request with transient-failure retries and returns the body
// when the status matches want.
func (p *keycloakProvider) do(ctx context.Context, req *http.Request, want int) ([]byte, apperrors.Error) {
	rsp, err := p.send(ctx, req)
	if err != nil {
		return nil, err
	}
	defer rsp.Body.Close()

	body, rerr := io.ReadAll(io.LimitReader(rsp.Body, 1<<20))
	if rerr != nil {
		return nil, ErrIdentityProvisioning.MsgErr("unable to read identity response", rerr)
	}
	if rsp.StatusCode != want {
		return nil, ErrIdentityProvisioning.Msg(fmt.Sprintf("identity provider returned %d for %s", rsp.StatusCode, req.URL.Path))
	}
	return body, nil
}

// send retries network errors and 5xx responses a few times with backoff.
// 4xx responses are definitive and returned immediately.
func (p *keycloakProvider) send(ctx context.Context, req *http.Request) (*http.Response, apperrors.Error) {
	var rsp *http.Response
	err := retry.Do(
		func() error {
			if req.GetBody != nil {
				body, berr := req.GetBody()
				if berr != nil {
					return retry.Unrecoverable(berr)
				}
				req.Body = body
			}
			var err error
			rsp, err = p.client.Do(req) //nolint:bodyclose
			if err != nil {
				return err
			}
			if rsp.StatusCode >= http.StatusInternalServerError {
				io.Copy(io.Discard, rsp.Body)
				rsp.Body.Close()
				return fmt.Errorf("identity provider returned %d", rsp.StatusCode)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Ctx(ctx).Warn().Err(err).Uint("attempt", n+1).Str("url", req.URL.Path).Msg("retrying identity provider request")
		}),
	)
	if err != nil {
		return nil, ErrIdentityProvisioning.MsgErr("identity provider unreachable", err)
	}
	return rsp, nil
}

// idFromLocation extracts the created resource id from a Location header.
func idFromLocation(rsp *http.Response) string {
	if rsp == nil {
		return ""
	}
	loc := rsp.Header.Get("Location")
	if loc == "" {
		return ""
	}
	return loc[strings.LastIndex(loc, "/")+1:]
}
