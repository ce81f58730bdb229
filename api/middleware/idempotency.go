package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/donorledger-backend/api/responses"
	"github.com/angelmondragon/donorledger-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/donorledger-backend/pkg/errors"
	"github.com/angelmondragon/donorledger-backend/pkg/logger"
	pkgredis "github.com/angelmondragon/donorledger-backend/pkg/redis"
)

const (
	defaultIdempotencyTTL  = 24 * time.Hour
	donationIdempotencyTTL = 7 * 24 * time.Hour

	idempotencyHeader = "Idempotency-Key"
	inFlightTTL       = 2 * time.Minute
)

type routeMatcher func(string) bool

type idempotencyRule struct {
	method  string
	matcher routeMatcher
	ttl     time.Duration
}

// idempotencyRules lists the endpoints whose retries must not repeat side
// effects. Anything that can submit a ledger transaction gets the long TTL.
func idempotencyRules(cfg config.IdempotencyConfig) []idempotencyRule {
	donationTTL := durationOr(cfg.DonationTTL, donationIdempotencyTTL)
	defaultTTL := durationOr(cfg.DefaultTTL, defaultIdempotencyTTL)
	return []idempotencyRule{
		{method: http.MethodPost, matcher: matchExact("/api/v1/donations"), ttl: donationTTL},
		{method: http.MethodPost, matcher: matchPrefixSuffix("/api/v1/donations/", "/escrow/finish"), ttl: donationTTL},
		{method: http.MethodPost, matcher: matchExact("/api/v1/users"), ttl: defaultTTL},
		{method: http.MethodPost, matcher: matchExact("/api/v1/npos"), ttl: defaultTTL},
		{method: http.MethodPost, matcher: matchExact("/api/v1/campaigns"), ttl: defaultTTL},
	}
}

type idempotencyRecord struct {
	Status      int               `json:"status"`
	Body        string            `json:"body"`
	Headers     map[string]string `json:"headers,omitempty"`
	RequestHash string            `json:"request_hash"`
	InFlight    bool              `json:"in_flight,omitempty"`
}

// Idempotency replays the stored response when a client retries a request with
// the same Idempotency-Key and body. The key is reserved before the handler
// runs so two concurrent retries cannot both reach the ledger. Server-side
// failures and throttled requests release the key so the client may try again.
func Idempotency(store pkgredis.IdempotencyStore, cfg config.IdempotencyConfig, logg *logger.Logger) func(http.Handler) http.Handler {
	g := &idempotencyGuard{store: store, rules: idempotencyRules(cfg), logg: logg}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ttl, ok := routeTTL(g.rules, r.Method, routePattern(r), r.URL.Path)
			if !ok || store == nil {
				next.ServeHTTP(w, r)
				return
			}
			g.serve(w, r, next, ttl)
		})
	}
}

type idempotencyGuard struct {
	store pkgredis.IdempotencyStore
	rules []idempotencyRule
	logg  *logger.Logger
}

func (g *idempotencyGuard) serve(w http.ResponseWriter, r *http.Request, next http.Handler, ttl time.Duration) {
	ctx := r.Context()
	clientKey := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if clientKey == "" {
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header required"))
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request"))
		return
	}
	r.Body = io.NopCloser(bytes.NewReader(body))

	requestHash := hashBody(body)
	key := g.store.IdempotencyKey(buildScope(r), clientKey)

	reserved, err := g.reserve(ctx, key, requestHash)
	if err != nil {
		responses.WriteError(ctx, g.logg, w, err)
		return
	}
	if !reserved {
		g.replay(ctx, w, key, requestHash)
		return
	}

	capture := &responseCapture{ResponseWriter: w}
	next.ServeHTTP(capture, r)
	// The outcome is stored even when the client has gone away.
	g.finish(context.WithoutCancel(ctx), key, requestHash, ttl, capture)
}

func (g *idempotencyGuard) reserve(ctx context.Context, key, requestHash string) (bool, error) {
	placeholder, err := json.Marshal(idempotencyRecord{RequestHash: requestHash, InFlight: true})
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode idempotency reservation")
	}
	reserved, err := g.store.SetNX(ctx, key, string(placeholder), inFlightTTL)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reserve idempotency key")
	}
	return reserved, nil
}

func (g *idempotencyGuard) finish(ctx context.Context, key, requestHash string, ttl time.Duration, capture *responseCapture) {
	status := defaultStatus(capture.status)
	if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		if err := g.store.Del(ctx, key); err != nil {
			logError(ctx, g.logg, "release idempotency key", err)
		}
		return
	}

	record := idempotencyRecord{
		Status:      status,
		Body:        base64.StdEncoding.EncodeToString(capture.body.Bytes()),
		RequestHash: requestHash,
	}
	if ct := capture.Header().Get("Content-Type"); ct != "" {
		record.Headers = map[string]string{"Content-Type": ct}
	}
	payload, err := json.Marshal(record)
	if err != nil {
		logError(ctx, g.logg, "marshal idempotency record", err)
		return
	}
	if err := g.store.Set(ctx, key, string(payload), ttl); err != nil {
		logError(ctx, g.logg, "persist idempotency record", err)
	}
}

func (g *idempotencyGuard) replay(ctx context.Context, w http.ResponseWriter, key, requestHash string) {
	stored, err := g.store.Get(ctx, key)
	switch {
	case err != nil && !errors.Is(err, pkgredis.Nil):
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
		return
	case stored == "":
		// Reservation expired between SetNX and Get.
		responses.WriteError(ctx, g.logg, w, errInFlight)
		return
	}

	record, err := decodeRecord(stored)
	switch {
	case err != nil:
		responses.WriteError(ctx, g.logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode idempotency record"))
	case record.RequestHash != requestHash:
		responses.WriteError(ctx, g.logg, w, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key reused with different request body"))
	case record.InFlight:
		responses.WriteError(ctx, g.logg, w, errInFlight)
	default:
		writeStoredResponse(w, record)
	}
}

var errInFlight = pkgerrors.New(pkgerrors.CodeConflict, "request with this idempotency key is still in progress")

func buildScope(r *http.Request) string {
	return strings.Join([]string{r.Method, r.URL.Path}, "|")
}

func decodeRecord(payload string) (*idempotencyRecord, error) {
	var record idempotencyRecord
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func writeStoredResponse(w http.ResponseWriter, record *idempotencyRecord) {
	if record == nil {
		return
	}
	if ct, ok := record.Headers["Content-Type"]; ok && ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(record.Status)
	if decoded, err := base64.StdEncoding.DecodeString(record.Body); err == nil {
		_, _ = w.Write(decoded)
	}
}

func hashBody(payload []byte) string {
	sum := sha256.Sum256(payload)
	return base64.StdEncoding.EncodeToString(sum[:])
}

func defaultStatus(value int) int {
	if value == 0 {
		return http.StatusOK
	}
	return value
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}

func routePattern(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ctx := chi.RouteContext(r.Context()); ctx != nil {
		if pattern := ctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return ""
}

// routeTTL matches the chi route pattern first and falls back to the raw path,
// since the pattern is only complete once routing has finished.
func routeTTL(rules []idempotencyRule, method string, candidates ...string) (time.Duration, bool) {
	for _, rule := range rules {
		if rule.method != method {
			continue
		}
		for _, candidate := range candidates {
			if candidate != "" && rule.matcher(strings.TrimSuffix(candidate, "/")) {
				return rule.ttl, true
			}
		}
	}
	return 0, false
}

func matchExact(path string) routeMatcher {
	return func(pattern string) bool {
		return pattern == path
	}
}

func matchPrefixSuffix(prefix, suffix string) routeMatcher {
	return func(pattern string) bool {
		return strings.HasPrefix(pattern, prefix) && strings.HasSuffix(pattern, suffix)
	}
}

type responseCapture struct {
	http.ResponseWriter
	body   bytes.Buffer
	status int
}

func (r *responseCapture) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseCapture) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func logError(ctx context.Context, logg *logger.Logger, msg string, err error) {
	if logg == nil || err == nil {
		return
	}
	logg.Error(ctx, msg, err)
}
