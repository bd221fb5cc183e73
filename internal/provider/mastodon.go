package provider

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/mattn/go-mastodon"
	"golang.org/x/oauth2"
)

// ErrInvalidInstance is returned for a domain we cannot register against
var ErrInvalidInstance = errors.New("could not register app on instance")

const appName = "forget"

// Mastodon talks to Mastodon instances. App registrations are created
// lazily per instance and persisted through the InstanceRegistry.
type Mastodon struct {
	registry InstanceRegistry
	website  string
}

// NewMastodon creates the Mastodon provider
func NewMastodon(registry InstanceRegistry, website string) *Mastodon {
	return &Mastodon{registry: registry, website: website}
}

// appFor returns the app registration for a domain, registering the app
// on first contact. Reuse bumps the instance's popularity counter.
func (m *Mastodon) appFor(ctx context.Context, domain, callback string) (*InstanceCredentials, error) {
	creds, err := m.registry.Lookup(domain)
	if err != nil {
		return nil, err
	}
	if creds != nil {
		// 已注册过，仅累加人气
		if err := m.registry.Store(creds); err != nil {
			return nil, err
		}
		return creds, nil
	}

	app, err := mastodon.RegisterApp(ctx, &mastodon.AppConfig{
		Server:       serverURL(domain),
		ClientName:   appName,
		Scopes:       "read write",
		Website:      m.website,
		RedirectURIs: callback,
	})
	if err != nil {
		log.Printf("[Mastodon] app registration on %s failed: %v", domain, err)
		return nil, ErrInvalidInstance
	}

	creds = &InstanceCredentials{
		Domain:       domain,
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
	}
	if err := m.registry.Store(creds); err != nil {
		return nil, err
	}
	return creds, nil
}

func (m *Mastodon) oauthConfig(creds *InstanceCredentials, callback string) *oauth2.Config {
	server := serverURL(creds.Domain)
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		RedirectURL:  callback,
		Scopes:       []string{"read", "write"},
		Endpoint: oauth2.Endpoint{
			AuthURL:  server + "/oauth/authorize",
			TokenURL: server + "/oauth/token",
		},
	}
}

// LoginURL returns the instance's authorization URL, registering our app
// with the instance if this is the first login from it
func (m *Mastodon) LoginURL(ctx context.Context, domain, callback, state string) (string, error) {
	creds, err := m.appFor(ctx, domain, callback)
	if err != nil {
		return "", err
	}
	return m.oauthConfig(creds, callback).AuthCodeURL(state), nil
}

// ReceiveCode exchanges the authorization code and resolves the identity
// of the logged-in user
func (m *Mastodon) ReceiveCode(ctx context.Context, domain, callback, code string) (*Identity, error) {
	creds, err := m.registry.Lookup(domain)
	if err != nil {
		return nil, err
	}
	if creds == nil {
		return nil, ErrInvalidInstance
	}

	token, err := m.oauthConfig(creds, callback).Exchange(ctx, code)
	if err != nil {
		return nil, err
	}

	client := mastodon.NewClient(&mastodon.Config{
		Server:       serverURL(domain),
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		AccessToken:  token.AccessToken,
	})

	self, err := client.GetAccountCurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	return &Identity{
		RemoteID:       string(self.ID),
		ScreenName:     self.Acct,
		InstanceDomain: domain,
		AccessToken:    token.AccessToken,
	}, nil
}

// DeletePost deletes one status on the account's home instance
func (m *Mastodon) DeletePost(ctx context.Context, creds Credentials, remoteID string) DeleteResult {
	client := mastodon.NewClient(&mastodon.Config{
		Server:      serverURL(creds.InstanceDomain),
		AccessToken: creds.AccessToken,
	})

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := client.DeleteStatus(callCtx, mastodon.ID(remoteID)); err != nil {
		return classifyMastodonError(err)
	}
	return DeleteResult{Outcome: DeleteOK}
}

// statusPageSize is the per-request status limit Mastodon allows
const statusPageSize = 40

// FetchPosts pulls one page of the account's statuses, newest first
func (m *Mastodon) FetchPosts(ctx context.Context, creds Credentials, remoteID, maxID string) ([]FetchedPost, error) {
	client := mastodon.NewClient(&mastodon.Config{
		Server:      serverURL(creds.InstanceDomain),
		AccessToken: creds.AccessToken,
	})

	callCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	statuses, err := client.GetAccountStatuses(callCtx, mastodon.ID(remoteID), &mastodon.Pagination{
		MaxID: mastodon.ID(maxID),
		Limit: statusPageSize,
	})
	if err != nil {
		return nil, err
	}

	posts := make([]FetchedPost, 0, len(statuses))
	for _, status := range statuses {
		favourite, _ := status.Favourited.(bool)
		replyTo := ""
		if s, ok := status.InReplyToID.(string); ok {
			replyTo = s
		}
		posts = append(posts, FetchedPost{
			RemoteID:  string(status.ID),
			CreatedAt: status.CreatedAt.UTC(),
			Body:      status.Content,
			Favourite: favourite,
			Reblog:    status.Reblog != nil,
			ReplyToID: replyTo,
		})
	}
	return posts, nil
}

// classifyMastodonError maps go-mastodon errors onto outcomes. The
// library reports HTTP failures as strings containing the status text,
// so classification is by substring.
func classifyMastodonError(err error) DeleteResult {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "404") || strings.Contains(msg, "Not Found") || strings.Contains(msg, "Record not found"):
		return DeleteResult{Outcome: DeleteNotFound}
	case strings.Contains(msg, "429") || strings.Contains(msg, "Too Many Requests"):
		return DeleteResult{Outcome: DeleteRateLimited}
	case strings.Contains(msg, "401") || strings.Contains(msg, "403") || strings.Contains(msg, "Unauthorized") || strings.Contains(msg, "Forbidden"):
		return DeleteResult{Outcome: DeleteUnauthorized}
	}

	log.Printf("[Mastodon] delete failed: %v", err)
	return DeleteResult{Outcome: DeleteFailed, Err: err}
}

func serverURL(domain string) string {
	if strings.HasPrefix(domain, "https://") || strings.HasPrefix(domain, "http://") {
		return strings.TrimSuffix(domain, "/")
	}
	return "https://" + domain
}
