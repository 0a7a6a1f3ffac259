package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/config"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"golang.org/x/oauth2"
	github "golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
)

const (
	googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	githubAPIBase     = "https://api.github.com"
	oauthStateTTL     = 10 * time.Minute
)

var ErrInvalidOAuthState = errors.New("invalid or expired oauth state")

type OAuthProviderService struct {
	Cfg *config.Config

	// Overridable for tests.
	GoogleUserInfoURL string
	GitHubAPIBase     string
}

func NewOAuthProviderService(cfg *config.Config) *OAuthProviderService {
	return &OAuthProviderService{
		Cfg:               cfg,
		GoogleUserInfoURL: googleUserInfoURL,
		GitHubAPIBase:     githubAPIBase,
	}
}

// OAuthState travels through the provider round trip sealed with AES-GCM, so the
// invitation code a new user arrived with survives the redirect untouched.
type OAuthState struct {
	Provider       string    `json:"p"`
	Nonce          string    `json:"n"`
	InvitationCode string    `json:"i,omitempty"`
	ExpiresAt      time.Time `json:"e"`
}

type OAuthProfile struct {
	Provider       string
	ProviderUserID string
	Email          string
	FirstName      string
	LastName       string
	AvatarURL      *string
}

func (s *OAuthProviderService) GetOAuthConfig(provider string) (*oauth2.Config, string, error) {
	switch strings.ToLower(provider) {
	case "google":
		if !s.Cfg.SSO.Google.Enabled {
			return nil, "", errors.New("google oauth is not enabled")
		}
		return clientConfig(s.Cfg.SSO.Google, google.Endpoint), "google", nil
	case "github":
		if !s.Cfg.SSO.GitHub.Enabled {
			return nil, "", errors.New("github oauth is not enabled")
		}
		return clientConfig(s.Cfg.SSO.GitHub, github.Endpoint), "github", nil
	default:
		return nil, "", errors.New("unknown oauth provider: " + provider)
	}
}

func clientConfig(p config.OAuthProviderConfig, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     p.ClientID,
		ClientSecret: p.ClientSecret,
		RedirectURL:  p.RedirectURL,
		Scopes:       p.Scopes,
		Endpoint:     endpoint,
	}
}

func (s *OAuthProviderService) GenerateState(provider, invitationCode string) (*OAuthState, error) {
	nonceBytes := make([]byte, 32)
	if _, err := rand.Read(nonceBytes); err != nil {
		return nil, err
	}

	return &OAuthState{
		Provider:       provider,
		Nonce:          base64.RawURLEncoding.EncodeToString(nonceBytes),
		InvitationCode: invitationCode,
		ExpiresAt:      time.Now().Add(oauthStateTTL),
	}, nil
}

// AuthURL builds the provider redirect carrying a sealed state.
func (s *OAuthProviderService) AuthURL(provider, invitationCode string) (string, error) {
	oauthCfg, name, err := s.GetOAuthConfig(provider)
	if err != nil {
		return "", err
	}
	state, err := s.GenerateState(name, invitationCode)
	if err != nil {
		return "", err
	}
	sealed, err := utils.SealJSON(state)
	if err != nil {
		return "", err
	}
	return oauthCfg.AuthCodeURL(sealed, oauth2.AccessTypeOnline), nil
}

func (s *OAuthProviderService) OpenState(sealed, provider string) (*OAuthState, error) {
	var state OAuthState
	if err := utils.OpenJSON(sealed, &state); err != nil {
		return nil, ErrInvalidOAuthState
	}
	if !strings.EqualFold(state.Provider, provider) || time.Now().After(state.ExpiresAt) {
		return nil, ErrInvalidOAuthState
	}
	return &state, nil
}

func (s *OAuthProviderService) ExchangeCode(ctx context.Context, provider string, code string) (*oauth2.Token, error) {
	oauthCfg, _, err := s.GetOAuthConfig(provider)
	if err != nil {
		return nil, err
	}

	token, err := oauthCfg.Exchange(ctx, code)
	if err != nil {
		logger.Warn("oauth_exchange_failed", map[string]interface{}{
			"provider": provider,
			"error":    err.Error(),
		})
		return nil, errors.New("failed to exchange code for token")
	}

	return token, nil
}

func (s *OAuthProviderService) GetUserInfo(ctx context.Context, provider string, token *oauth2.Token) (*OAuthProfile, error) {
	oauthCfg, name, err := s.GetOAuthConfig(provider)
	if err != nil {
		return nil, err
	}
	client := oauthCfg.Client(ctx, token)

	switch name {
	case "google":
		return s.getGoogleUserInfo(client)
	default:
		return s.getGitHubUserInfo(client)
	}
}

func (s *OAuthProviderService) getGoogleUserInfo(client *http.Client) (*OAuthProfile, error) {
	var data struct {
		ID            string `json:"id"`
		Email         string `json:"email"`
		GivenName     string `json:"given_name"`
		FamilyName    string `json:"family_name"`
		Picture       string `json:"picture"`
		VerifiedEmail bool   `json:"verified_email"`
	}
	if err := getJSON(client, s.GoogleUserInfoURL, "google", &data); err != nil {
		return nil, err
	}
	if data.Email == "" || !data.VerifiedEmail {
		return nil, errors.New("google account has no verified email")
	}

	return &OAuthProfile{
		Provider:       "google",
		ProviderUserID: data.ID,
		Email:          strings.ToLower(data.Email),
		FirstName:      data.GivenName,
		LastName:       data.FamilyName,
		AvatarURL:      optionalString(data.Picture),
	}, nil
}

func (s *OAuthProviderService) getGitHubUserInfo(client *http.Client) (*OAuthProfile, error) {
	var data struct {
		ID        int    `json:"id"`
		Login     string `json:"login"`
		Name      string `json:"name"`
		Email     string `json:"email"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(client, s.GitHubAPIBase+"/user", "github", &data); err != nil {
		return nil, err
	}

	if data.Email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if getJSON(client, s.GitHubAPIBase+"/user/emails", "github", &emails) == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					data.Email = e.Email
					break
				}
			}
		}
	}
	if data.Email == "" {
		return nil, errors.New("github email not available")
	}

	name := data.Name
	if name == "" {
		name = data.Login
	}
	firstName, lastName, _ := strings.Cut(name, " ")

	return &OAuthProfile{
		Provider:       "github",
		ProviderUserID: fmt.Sprintf("%d", data.ID),
		Email:          strings.ToLower(data.Email),
		FirstName:      firstName,
		LastName:       lastName,
		AvatarURL:      optionalString(data.AvatarURL),
	}, nil
}

func getJSON(client *http.Client, url, provider string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s api returned status %d: %s", provider, resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func optionalString(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
