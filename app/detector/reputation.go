package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	cache "github.com/go-pkgz/expirable-cache/v3"
)

// Flag is a tri-state result of an external reputation check. A check
// that can't be completed reports FlagUnknown which never counts as a
// spam signal.
type Flag int

// reputation check results
const (
	FlagUnknown Flag = iota
	FlagClean
	FlagBanned
)

func (f Flag) String() string {
	switch f {
	case FlagClean:
		return "clean"
	case FlagBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// reputation service defaults
const (
	DefaultCasAPI      = "https://api.cas.chat"
	DefaultLolsAPI     = "https://api.lols.bot"
	reputationTimeout  = 10 * time.Second
	reputationCacheTTL = 5 * time.Minute
)

// ReputationChecker queries CAS and LOLS ban lists for user ids. Results
// are cached for a short period to avoid hammering the services when the
// same author posts repeatedly.
type ReputationChecker struct {
	casAPI  string
	lolsAPI string
	client  *http.Client
	cache   cache.Cache[string, Flag]
}

// NewReputationChecker creates a checker with the given base URLs, empty
// values fall back to the public endpoints.
func NewReputationChecker(casAPI, lolsAPI string) *ReputationChecker {
	if casAPI == "" {
		casAPI = DefaultCasAPI
	}
	if lolsAPI == "" {
		lolsAPI = DefaultLolsAPI
	}
	return &ReputationChecker{
		casAPI:  casAPI,
		lolsAPI: lolsAPI,
		client:  &http.Client{Timeout: reputationTimeout},
		cache:   cache.NewCache[string, Flag]().WithMaxKeys(10000).WithTTL(reputationCacheTTL),
	}
}

// CheckCas asks the Combot Anti-Spam service about the user. The service
// answers {"ok": true} for users found on the ban list.
func (r *ReputationChecker) CheckCas(ctx context.Context, userID int64) Flag {
	key := fmt.Sprintf("cas:%d", userID)
	if flag, ok := r.cache.Get(key); ok {
		return flag
	}

	var body struct {
		OK bool `json:"ok"`
	}
	if err := r.fetch(ctx, fmt.Sprintf("%s/check?user_id=%d", r.casAPI, userID), &body); err != nil {
		log.Printf("[WARN] cas check failed for %d: %v", userID, err)
		return FlagUnknown
	}

	flag := FlagClean
	if body.OK {
		flag = FlagBanned // ok means the user is found on the ban list
	}
	r.cache.Set(key, flag, 0)
	return flag
}

// CheckLols asks the LOLS bot ban list about the user
func (r *ReputationChecker) CheckLols(ctx context.Context, userID int64) Flag {
	key := fmt.Sprintf("lols:%d", userID)
	if flag, ok := r.cache.Get(key); ok {
		return flag
	}

	var body struct {
		Banned bool `json:"banned"`
	}
	if err := r.fetch(ctx, fmt.Sprintf("%s/account?id=%d", r.lolsAPI, userID), &body); err != nil {
		log.Printf("[WARN] lols check failed for %d: %v", userID, err)
		return FlagUnknown
	}

	flag := FlagClean
	if body.Banned {
		flag = FlagBanned
	}
	r.cache.Set(key, flag, 0)
	return flag
}

func (r *ReputationChecker) fetch(ctx context.Context, url string, res any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status code %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if err := json.Unmarshal(body, res); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
