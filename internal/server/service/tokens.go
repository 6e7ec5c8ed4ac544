package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"path"
	"strings"
	"time"

	"storefront/internal/server/catalog"
	"storefront/internal/server/config"
	"storefront/internal/server/database"
)

// Sentinel errors for the service layer, one per failure class.
var (
	ErrNotFound     = errors.New("not found")
	ErrExpired      = errors.New("token has expired")
	ErrExhausted    = errors.New("download limit reached")
	ErrInvalidPath  = errors.New("file path not allowed")
	ErrMissingInput = errors.New("required parameter missing")
)

// tokenLength is the length of generated download tokens. 48 chars over
// a 62-symbol alphabet is ~285 bits of entropy.
const tokenLength = 48

// DownloadLink is one minted redemption link, returned to the
// fulfillment caller.
type DownloadLink struct {
	ProductID string    `json:"productId"`
	Title     string    `json:"title"`
	Token     string    `json:"token"`
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
	Remaining int       `json:"remaining"`
}

// FulfillOptions overrides the default token policy per request.
// Zero values fall back to the configured defaults.
type FulfillOptions struct {
	TTL     time.Duration
	MaxUses int
}

// RedeemResult is returned on a successful redemption.
type RedeemResult struct {
	FilePath  string
	Remaining int
}

// TokenService mints download tokens for fulfilled orders and redeems
// them. The atomicity of the terminal-use race lives entirely in the
// injected TokenStore; this layer never reads-then-writes remaining.
type TokenService struct {
	orders  database.OrderStore
	tokens  database.TokenStore
	catalog *catalog.Catalog
	cfg     *config.Config
	prefix  string
}

// NewTokenService creates a new token service. The assets prefix is
// normalized to end with a slash so "/assets" cannot match "/assetsfoo".
func NewTokenService(orders database.OrderStore, tokens database.TokenStore, cat *catalog.Catalog, cfg *config.Config) *TokenService {
	prefix := cfg.AssetsPrefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &TokenService{
		orders:  orders,
		tokens:  tokens,
		catalog: cat,
		cfg:     cfg,
		prefix:  prefix,
	}
}

// Fulfill mints one download token per eligible digital line item on
// the order and returns the redemption links in line-item order.
// Items that are non-digital, unknown to the catalog, or whose file
// path falls outside the allow-listed prefix are skipped, not errors.
// Calling Fulfill twice for the same order mints a second, independent
// set of links; the reissue is logged, not prevented.
func (s *TokenService) Fulfill(ctx context.Context, orderID string, opts FulfillOptions) ([]DownloadLink, error) {
	if orderID == "" {
		return nil, ErrMissingInput
	}

	order, err := s.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, database.ErrOrderNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}

	ttl := opts.TTL
	if ttl <= 0 {
		ttl = s.cfg.DefaultTokenTTL
	}
	maxUses := opts.MaxUses
	if maxUses <= 0 {
		maxUses = s.cfg.DefaultMaxUses
	}

	if prior, lerr := s.tokens.ListTokensByOrder(ctx, orderID); lerr == nil && len(prior) > 0 {
		slog.Warn("reissuing download links for order",
			"order_id", orderID,
			"existing_tokens", len(prior),
		)
	}

	now := time.Now().UTC()
	expiresAt := now.Add(ttl)
	links := make([]DownloadLink, 0, len(order.Items))

	for _, item := range order.Items {
		if item.Type != catalog.TypeDigital {
			continue
		}
		product := s.catalog.ByID(item.ProductID)
		if product == nil || product.FilePath == "" {
			continue
		}
		if !s.pathAllowed(product.FilePath) {
			slog.Warn("skipping digital item with disallowed file path",
				"order_id", orderID,
				"product_id", item.ProductID,
				"file_path", product.FilePath,
			)
			continue
		}

		tokenStr, err := generateToken(tokenLength)
		if err != nil {
			return nil, fmt.Errorf("failed to generate token: %w", err)
		}

		record := &database.DownloadToken{
			Token:     tokenStr,
			OrderID:   orderID,
			ProductID: item.ProductID,
			FilePath:  product.FilePath,
			ExpiresAt: expiresAt,
			Remaining: maxUses,
			CreatedAt: now,
		}
		if err := s.tokens.CreateToken(ctx, record); err != nil {
			return nil, fmt.Errorf("failed to persist token: %w", err)
		}

		links = append(links, DownloadLink{
			ProductID: item.ProductID,
			Title:     item.Title,
			Token:     tokenStr,
			URL:       fmt.Sprintf("%s/api/download?token=%s", s.cfg.BaseURL, tokenStr),
			ExpiresAt: expiresAt,
			Remaining: maxUses,
		})
	}

	slog.Info("order fulfilled",
		"order_id", orderID,
		"links", len(links),
		"max_uses", maxUses,
		"expires_at", expiresAt,
	)
	return links, nil
}

// Redeem consumes one use of a token and returns the asset path to
// redirect to. The check-and-decrement is a single conditional update
// in the store; on a miss a diagnostic read classifies the failure.
func (s *TokenService) Redeem(ctx context.Context, token string) (*RedeemResult, error) {
	if token == "" {
		return nil, ErrMissingInput
	}

	now := time.Now().UTC()
	t, err := s.tokens.RedeemValid(ctx, token, now)
	if err != nil {
		if errors.Is(err, database.ErrNotRedeemable) {
			return nil, s.classifyFailure(ctx, token, now)
		}
		return nil, fmt.Errorf("failed to redeem token: %w", err)
	}

	// Defensive re-check; a disallowed path here means the stored
	// record was corrupted after issuance. Give the use back.
	if !s.pathAllowed(t.FilePath) {
		if rerr := s.tokens.RestoreUse(ctx, token); rerr != nil {
			slog.Error("failed to restore use after path rejection",
				"token", token, "error", rerr)
		}
		slog.Warn("blocked redemption with disallowed file path",
			"token", token,
			"order_id", t.OrderID,
			"file_path", t.FilePath,
		)
		return nil, ErrInvalidPath
	}

	slog.Info("token redeemed",
		"order_id", t.OrderID,
		"product_id", t.ProductID,
		"remaining", t.Remaining,
	)
	return &RedeemResult{FilePath: t.FilePath, Remaining: t.Remaining}, nil
}

// classifyFailure explains why the conditional update matched nothing.
func (s *TokenService) classifyFailure(ctx context.Context, token string, now time.Time) error {
	t, err := s.tokens.GetToken(ctx, token)
	if err != nil {
		if errors.Is(err, database.ErrTokenNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to classify redemption failure: %w", err)
	}
	switch {
	case !t.ExpiresAt.After(now):
		return ErrExpired
	case t.Remaining <= 0:
		return ErrExhausted
	default:
		// Possible only if a compensating increment raced in between
		// the update and this read. Surface it, don't misclassify.
		return fmt.Errorf("token failed conditional redeem but reads as redeemable")
	}
}

// pathAllowed reports whether filePath is a clean path strictly under
// the allow-listed prefix. Cleaning first rejects traversal segments
// and scheme-relative ("//host") redirect targets.
func (s *TokenService) pathAllowed(filePath string) bool {
	if s.prefix == "" || filePath == "" {
		return false
	}
	cleaned := path.Clean(filePath)
	if cleaned != filePath {
		return false
	}
	return strings.HasPrefix(cleaned, s.prefix) && len(cleaned) > len(s.prefix)
}

// generateToken produces a cryptographically secure, URL-safe random string.
func generateToken(length int) (string, error) {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	result := make([]byte, length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(charset))))
		if err != nil {
			return "", fmt.Errorf("crypto/rand failure: %w", err)
		}
		result[i] = charset[n.Int64()]
	}
	return string(result), nil
}
