package provider

import (
	"context"
	"errors"
	"log"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/ChimeraCoder/anaconda"
	"github.com/garyburd/go-oauth/oauth"
)

// ErrUnknownLoginToken is returned when a callback arrives for a request
// token we never issued (or that has expired)
var ErrUnknownLoginToken = errors.New("unknown or expired login token")

// loginTokenTTL bounds how long a half-finished OAuth1 handshake is kept
const loginTokenTTL = 15 * time.Minute

// Twitter talks to the Twitter API: OAuth1 login handshake and tweet
// deletion. The consumer key/secret are process-wide, matching how
// anaconda configures them.
type Twitter struct {
	mu sync.Mutex
	// pending OAuth1 request tokens, keyed by token string
	pending map[string]pendingLogin
}

type pendingLogin struct {
	creds     *oauth.Credentials
	createdAt time.Time
}

// NewTwitter creates the Twitter provider and installs the consumer keys
func NewTwitter(consumerKey, consumerSecret string) *Twitter {
	anaconda.SetConsumerKey(consumerKey)
	anaconda.SetConsumerSecret(consumerSecret)
	return &Twitter{pending: make(map[string]pendingLogin)}
}

// LoginURL starts the OAuth1 handshake and returns the authorization URL
// the browser should be redirected to
func (t *Twitter) LoginURL(callback string) (string, error) {
	url, tmp, err := anaconda.AuthorizationURL(callback)
	if err != nil {
		return "", err
	}

	t.mu.Lock()
	// 顺便清理过期的半完成握手
	for token, p := range t.pending {
		if time.Since(p.createdAt) > loginTokenTTL {
			delete(t.pending, token)
		}
	}
	t.pending[tmp.Token] = pendingLogin{creds: tmp, createdAt: time.Now()}
	t.mu.Unlock()

	return url, nil
}

// ReceiveVerifier finishes the handshake and returns the authenticated
// identity together with its long-lived credentials
func (t *Twitter) ReceiveVerifier(token, verifier string) (*Identity, error) {
	t.mu.Lock()
	p, ok := t.pending[token]
	delete(t.pending, token)
	t.mu.Unlock()

	if !ok || time.Since(p.createdAt) > loginTokenTTL {
		return nil, ErrUnknownLoginToken
	}

	creds, values, err := anaconda.GetCredentials(p.creds, verifier)
	if err != nil {
		return nil, err
	}

	return &Identity{
		RemoteID:     values.Get("user_id"),
		ScreenName:   values.Get("screen_name"),
		AccessToken:  creds.Token,
		AccessSecret: creds.Secret,
	}, nil
}

// DeletePost deletes one tweet. Outcomes follow the Twitter status codes:
// 404/34 means already gone, 429/88 means rate limited, 401 means the
// user revoked us.
func (t *Twitter) DeletePost(ctx context.Context, creds Credentials, remoteID string) DeleteResult {
	id, err := strconv.ParseInt(remoteID, 10, 64)
	if err != nil {
		// A tweet id we cannot parse will never become deletable
		return DeleteResult{Outcome: DeleteNotFound}
	}

	api := anaconda.NewTwitterApi(creds.AccessToken, creds.AccessSecret)
	defer api.Close()

	type deleteReply struct {
		err error
	}
	done := make(chan deleteReply, 1)
	go func() {
		_, err := api.DeleteTweet(id, true)
		done <- deleteReply{err: err}
	}()

	select {
	case <-ctx.Done():
		return DeleteResult{Outcome: DeleteFailed, Err: ctx.Err()}
	case reply := <-done:
		if reply.err == nil {
			return DeleteResult{Outcome: DeleteOK}
		}
		return classifyTwitterError(reply.err)
	}
}

// fetchPageSize is the timeline page size Twitter allows per request
const fetchPageSize = 200

// FetchPosts pulls one page of the account's timeline, newest first.
// max_id is inclusive on the Twitter side, so the cursor is shifted by
// one to avoid refetching the boundary tweet.
func (t *Twitter) FetchPosts(ctx context.Context, creds Credentials, remoteID, maxID string) ([]FetchedPost, error) {
	api := anaconda.NewTwitterApi(creds.AccessToken, creds.AccessSecret)
	defer api.Close()

	v := url.Values{}
	v.Set("user_id", remoteID)
	v.Set("count", strconv.Itoa(fetchPageSize))
	v.Set("include_rts", "true")
	v.Set("trim_user", "true")
	if maxID != "" {
		if id, err := strconv.ParseInt(maxID, 10, 64); err == nil && id > 0 {
			v.Set("max_id", strconv.FormatInt(id-1, 10))
		}
	}

	type timelineReply struct {
		tweets []anaconda.Tweet
		err    error
	}
	done := make(chan timelineReply, 1)
	go func() {
		tweets, err := api.GetUserTimeline(v)
		done <- timelineReply{tweets: tweets, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case reply := <-done:
		if reply.err != nil {
			return nil, reply.err
		}
		posts := make([]FetchedPost, 0, len(reply.tweets))
		for _, tweet := range reply.tweets {
			ts, err := tweet.CreatedAtTime()
			if err != nil {
				continue
			}
			posts = append(posts, FetchedPost{
				RemoteID:  tweet.IdStr,
				CreatedAt: ts.UTC(),
				Body:      tweet.Text,
				Favourite: tweet.Favorited,
				Reblog:    tweet.RetweetedStatus != nil,
				ReplyToID: tweet.InReplyToStatusIdStr,
			})
		}
		return posts, nil
	}
}

func classifyTwitterError(err error) DeleteResult {
	var apiErr *anaconda.ApiError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case 404, 410:
			return DeleteResult{Outcome: DeleteNotFound}
		case 429:
			return DeleteResult{Outcome: DeleteRateLimited}
		case 401, 403:
			return DeleteResult{Outcome: DeleteUnauthorized}
		}
		// Twitter also signals rate limiting with error code 88 inside
		// a 200-family envelope
		for _, e := range apiErr.Decoded.Errors {
			if e.Code == 88 {
				return DeleteResult{Outcome: DeleteRateLimited}
			}
			if e.Code == 34 || e.Code == 144 {
				return DeleteResult{Outcome: DeleteNotFound}
			}
		}
	}

	log.Printf("[Twitter] delete failed: %v", err)
	return DeleteResult{Outcome: DeleteFailed, Err: err}
}
