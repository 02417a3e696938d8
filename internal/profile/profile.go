// Package profile resolves public social profiles via twitterapi.io,
// degrading to a generated-avatar placeholder when the upstream fails.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"marketproxy/internal/cache"
	"marketproxy/internal/httpx"
)

const defaultBaseURL = "https://api.twitterapi.io"

// Profile is the normalized view returned regardless of which upstream
// payload shape served it.
type Profile struct {
	ImageURL       string `json:"imageUrl"`
	Name           string `json:"name"`
	Username       string `json:"username"`
	Verified       bool   `json:"verified"`
	Description    string `json:"description"`
	CreatedAt      string `json:"created_at"`
	FollowersCount int64  `json:"followers_count"`
	FriendsCount   int64  `json:"friends_count"`
	ProfileURL     string `json:"profile_url"`
	Error          string `json:"error,omitempty"`
}

// Fallback reports whether this profile is the degraded placeholder.
func (p Profile) Fallback() bool { return p.Error != "" }

type Config struct {
	APIKey   string
	BaseURL  string
	CacheTTL time.Duration
}

type Fetcher struct {
	cfg   Config
	http  *httpx.Client
	store cache.Store
	log   *slog.Logger
}

func NewFetcher(cfg Config, hc *httpx.Client, store cache.Store, log *slog.Logger) *Fetcher {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	return &Fetcher{cfg: cfg, http: hc, store: store, log: log}
}

// Fetch returns the profile for handle. A leading "@" is stripped. Successful
// lookups are cached; placeholder results are returned but never cached, so a
// transient upstream outage does not pin a blank profile for the full TTL.
func (f *Fetcher) Fetch(ctx context.Context, handle string) Profile {
	clean := strings.ReplaceAll(strings.TrimSpace(handle), "@", "")
	key := "profile:" + strings.ToLower(clean)

	if raw, ok := f.store.Get(ctx, key); ok {
		var p Profile
		if err := json.Unmarshal(raw, &p); err == nil {
			return p
		}
		f.log.Warn("discarding undecodable cache entry", "key", key)
	}

	user, err := f.lookup(ctx, clean)
	if err != nil {
		f.log.Warn("profile lookup failed", "handle", clean, "err", err)
		return fallbackProfile(clean, err)
	}

	p := user.normalize(clean)
	if raw, err := json.Marshal(p); err == nil {
		f.store.Set(ctx, key, raw, f.cfg.CacheTTL)
	}
	return p
}

// lookup tries the Twitter-compatible path first, then the legacy one.
func (f *Fetcher) lookup(ctx context.Context, handle string) (*apiUser, error) {
	body, err := f.get(ctx, f.cfg.BaseURL+"/twitter/user/by/username/"+url.PathEscape(handle))
	if err != nil {
		body, err = f.get(ctx, f.cfg.BaseURL+"/v1/user/by/username/"+url.PathEscape(handle))
	}
	if err != nil {
		return nil, err
	}
	return decodeUser(body)
}

func (f *Fetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("x-api-key", f.cfg.APIKey)

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// apiUser covers both known payload shapes: the modern one nests counters
// under public_metrics, the legacy one carries them flat.
type apiUser struct {
	Name                 string `json:"name"`
	Username             string `json:"username"`
	Verified             bool   `json:"verified"`
	Description          string `json:"description"`
	Bio                  string `json:"bio"`
	CreatedAt            string `json:"created_at"`
	Joined               string `json:"joined"`
	ProfileImageURL      string `json:"profile_image_url"`
	ProfileImageURLHTTPS string `json:"profile_image_url_https"`
	PublicMetrics        *struct {
		FollowersCount int64 `json:"followers_count"`
		FollowingCount int64 `json:"following_count"`
	} `json:"public_metrics"`
	FollowersCount int64 `json:"followers_count"`
	Followers      int64 `json:"followers"`
	FriendsCount   int64 `json:"friends_count"`
	Following      int64 `json:"following"`
}

// decodeUser unwraps an optional {"data": {...}} envelope. A "data" that is
// not a JSON object (null, string id, etc.) means the body itself is the user.
func decodeUser(body []byte) (*apiUser, error) {
	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	node := body
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if isObject(envelope.Data) {
		node = envelope.Data
	}
	var u apiUser
	if err := json.Unmarshal(node, &u); err != nil {
		return nil, fmt.Errorf("decoding user: %w", err)
	}
	return &u, nil
}

func isObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}

func (u *apiUser) normalize(handle string) Profile {
	p := Profile{
		ImageURL:    firstNonEmpty(u.ProfileImageURL, u.ProfileImageURLHTTPS),
		Name:        firstNonEmpty(u.Name, handle),
		Username:    firstNonEmpty(u.Username, handle),
		Verified:    u.Verified,
		Description: firstNonEmpty(u.Description, u.Bio),
		CreatedAt:   firstNonEmpty(u.CreatedAt, u.Joined),
		ProfileURL:  "https://x.com/" + handle + "/photo",
	}
	if u.PublicMetrics != nil {
		p.FollowersCount = u.PublicMetrics.FollowersCount
		p.FriendsCount = u.PublicMetrics.FollowingCount
	} else {
		p.FollowersCount = firstNonZero(u.FollowersCount, u.Followers)
		p.FriendsCount = firstNonZero(u.FriendsCount, u.Following)
	}
	return p
}

func fallbackProfile(handle string, err error) Profile {
	avatar := "https://ui-avatars.com/api/?name=" + url.QueryEscape(handle) +
		"&size=128&background=635BFF&color=fff&bold=true"
	return Profile{
		ImageURL:   avatar,
		Name:       handle,
		Username:   handle,
		ProfileURL: "https://x.com/" + handle + "/photo",
		Error:      err.Error(),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int64) int64 {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}
