package chromegcm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenURL is the OAuth2 endpoint used for the refresh-token exchange.
const DefaultTokenURL = "https://accounts.google.com/o/oauth2/token"

// GrantTypeRefreshToken is the only grant type the exchange is meant for.
const GrantTypeRefreshToken = "refresh_token"

// RefreshCredentials are the OAuth2 client credentials and refresh token
// exchanged for an access token.
type RefreshCredentials struct {
	ClientID     string `json:"client_id" yaml:"client_id"`
	ClientSecret string `json:"client_secret" yaml:"client_secret"`
	RefreshToken string `json:"refresh_token" yaml:"refresh_token"`
	GrantType    string `json:"grant_type,omitempty" yaml:"grant_type,omitempty"`
}

// Form returns the credentials as the token endpoint form body. An empty
// GrantType defaults to "refresh_token".
func (c RefreshCredentials) Form() url.Values {
	grantType := c.GrantType
	if grantType == "" {
		grantType = GrantTypeRefreshToken
	}
	return url.Values{
		"client_id":     {c.ClientID},
		"client_secret": {c.ClientSecret},
		"refresh_token": {c.RefreshToken},
		"grant_type":    {grantType},
	}
}

// tokenForm maps the credential shapes accepted by New to a form body.
// Raw mappings are sent verbatim, so missing fields are left for the token
// endpoint to reject.
func tokenForm(authInfo any) (url.Values, bool) {
	switch v := authInfo.(type) {
	case RefreshCredentials:
		return v.Form(), true
	case *RefreshCredentials:
		if v == nil {
			return nil, false
		}
		return v.Form(), true
	case url.Values:
		return v, true
	case map[string]string:
		form := url.Values{}
		for k, s := range v {
			form.Set(k, s)
		}
		return form, true
	default:
		return nil, false
	}
}

// renewAccessToken performs the one-time refresh-token exchange and stores
// the resulting token on the client.
func (c *Client) renewAccessToken(ctx context.Context, form url.Values) error {
	c.logger.Debug("Exchanging refresh token", "url", c.tokenURL)

	body := []byte(form.Encode())
	req, err := newRequest(ctx, http.MethodPost, c.tokenURL, "application/x-www-form-urlencoded", body)
	if err != nil {
		return err
	}
	resp, err := c.do(req, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %w", ErrBadRequest, newAPIError(resp))
	}

	token, err := parseTokenResponse(resp.Body)
	if err != nil {
		return &UnexpectedError{Cause: err}
	}
	c.token = token

	c.logger.Debug("Access token obtained",
		"expiresIn", fmt.Sprintf("%ds", token.ExpiresIn),
		"expiresAt", token.Expiry.UTC().Format(time.RFC3339),
	)
	return nil
}

// parseTokenResponse extracts access_token and expires_in from a token
// endpoint response. expires_in may be a JSON number or a numeric string.
func parseTokenResponse(r io.Reader) (*oauth2.Token, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var content map[string]any
	if err := dec.Decode(&content); err != nil {
		return nil, fmt.Errorf("decoding token response: %w", err)
	}

	accessToken, ok := content["access_token"].(string)
	if !ok || accessToken == "" {
		return nil, errors.New("token response: missing access_token")
	}

	var expiresIn int64
	switch v := content["expires_in"].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("token response: expires_in: %w", err)
		}
		expiresIn = n
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("token response: expires_in: %w", err)
		}
		expiresIn = n
	case nil:
		return nil, errors.New("token response: missing expires_in")
	default:
		return nil, fmt.Errorf("token response: expires_in: unexpected type %T", v)
	}

	return &oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   expiresIn,
		Expiry:      time.Now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
