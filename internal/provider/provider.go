// Package provider wraps the social networks' APIs behind small contracts
// so the sweep pipeline never depends on a concrete client library.
package provider

import (
	"context"
	"time"
)

// DeleteOutcome classifies the result of one remote deletion attempt
type DeleteOutcome int

const (
	// DeleteOK - the post is gone
	DeleteOK DeleteOutcome = iota
	// DeleteNotFound - the post was already gone; treated as satisfied
	DeleteNotFound
	// DeleteRateLimited - the provider asked us to back off; the pass stops
	DeleteRateLimited
	// DeleteUnauthorized - credentials revoked; the account goes dormant
	DeleteUnauthorized
	// DeleteFailed - transient provider error; recorded, pass continues
	DeleteFailed
)

// DeleteResult is the outcome of one deletion call plus the underlying
// error for DeleteFailed
type DeleteResult struct {
	Outcome DeleteOutcome
	Err     error
}

// Credentials are the decrypted tokens needed to act as an account
type Credentials struct {
	AccessToken  string
	AccessSecret string // OAuth1 token secret, Twitter only
	// InstanceDomain is set for Mastodon accounts
	InstanceDomain string
}

// Deleter deletes a single post on the remote service
type Deleter interface {
	DeletePost(ctx context.Context, creds Credentials, remoteID string) DeleteResult
}

// FetchedPost is one post pulled from the account's remote timeline
type FetchedPost struct {
	RemoteID  string
	CreatedAt time.Time
	Body      string
	// Favourite is set when the account owner favourited their own post
	Favourite bool
	Reblog    bool
	ReplyToID string
}

// Fetcher pages through an account's posts on the remote service, newest
// first. maxID is the remote id of the oldest post seen so far; "" asks
// for the newest page. An empty result means the history is exhausted.
type Fetcher interface {
	FetchPosts(ctx context.Context, creds Credentials, remoteID, maxID string) ([]FetchedPost, error)
}

// Identity is what a completed login handshake tells us about the user
type Identity struct {
	RemoteID       string
	ScreenName     string
	InstanceDomain string
	AccessToken    string
	AccessSecret   string
}

// InstanceCredentials is the app registration for one Mastodon instance
type InstanceCredentials struct {
	Domain       string
	ClientID     string
	ClientSecret string
}

// InstanceRegistry persists per-instance app registrations. Lookup returns
// nil (no error) when the instance has never been seen.
type InstanceRegistry interface {
	Lookup(domain string) (*InstanceCredentials, error)
	Store(creds *InstanceCredentials) error
}
