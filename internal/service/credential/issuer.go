package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/zhouzirui/improv-battle/backend/internal/model/connection"
)

const (
	RoomPrefix   = "improv_battle_"
	PlayerPrefix = "player_"

	KindStandard = "standard"
	KindAgent    = "agent"

	DefaultServerURL = "ws://localhost:7880"
	DefaultTTL       = 6 * time.Hour

	defaultAgentIdentity = "improv-host"
)

var (
	// ErrNotConfigured is returned when the signing key or secret is absent.
	ErrNotConfigured = errors.New("LiveKit API credentials not configured")
	// ErrInvalidToken is returned by Verify for any token it refuses.
	ErrInvalidToken = errors.New("invalid participant token")
)

// Config 描述签发凭证所需的配置
type Config struct {
	APIKey    string
	APISecret string
	ServerURL string
	TTL       time.Duration
}

// IDGenerator produces the random suffixes used for room and placeholder names.
type IDGenerator interface {
	Suffix() string
}

// IDGeneratorFunc adapts a plain function to IDGenerator.
type IDGeneratorFunc func() string

func (f IDGeneratorFunc) Suffix() string { return f() }

type uuidSuffix struct{}

func (uuidSuffix) Suffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

// Issuer mints room-scoped participant tokens. It keeps no record of what it issued.
type Issuer struct {
	cfg Config
	ids IDGenerator
	now func() time.Time
}

// Option customizes an Issuer.
type Option func(*Issuer)

// WithIDGenerator replaces the random suffix source.
func WithIDGenerator(g IDGenerator) Option {
	return func(i *Issuer) { i.ids = g }
}

// WithClock replaces time.Now for token timestamps and validation.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an issuer. Missing credentials are not an error here; they
// surface on every Issue call so the endpoint can report them.
func NewIssuer(cfg Config, opts ...Option) *Issuer {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		cfg.ServerURL = DefaultServerURL
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	i := &Issuer{cfg: cfg, ids: uuidSuffix{}, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Configured reports whether signing credentials are present.
func (i *Issuer) Configured() bool {
	_, _, err := resolveCredentials(i.cfg)
	return err == nil
}

// Issue mints a token for a new room. An empty name gets a generated placeholder.
func (i *Issuer) Issue(ctx context.Context, name string) (connection.Details, error) {
	if err := ctx.Err(); err != nil {
		return connection.Details{}, err
	}

	key, secret, err := resolveCredentials(i.cfg)
	if err != nil {
		return connection.Details{}, err
	}

	playerName := strings.TrimSpace(name)
	if playerName == "" {
		playerName = PlayerPrefix + i.ids.Suffix()
	}
	roomName := RoomPrefix + i.ids.Suffix()

	metadata, err := json.Marshal(map[string]string{"player_name": playerName})
	if err != nil {
		return connection.Details{}, errors.Wrap(err, "encode participant metadata")
	}

	token, err := i.sign(key, secret, grantRequest{
		identity: playerName,
		name:     playerName,
		metadata: string(metadata),
		room:     roomName,
		kind:     KindStandard,
	})
	if err != nil {
		return connection.Details{}, err
	}

	return connection.Details{
		ServerURL:        i.cfg.ServerURL,
		RoomName:         roomName,
		ParticipantToken: token,
		ParticipantName:  playerName,
	}, nil
}

// IssueAgent mints a token that lets the AI host join an existing room.
func (i *Issuer) IssueAgent(ctx context.Context, room, identity string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	key, secret, err := resolveCredentials(i.cfg)
	if err != nil {
		return "", err
	}

	room = strings.TrimSpace(room)
	if room == "" {
		return "", errors.New("room is required")
	}
	identity = strings.TrimSpace(identity)
	if identity == "" {
		identity = defaultAgentIdentity
	}

	return i.sign(key, secret, grantRequest{
		identity: identity,
		name:     "Host",
		metadata: `{"role":"host"}`,
		room:     room,
		kind:     KindAgent,
	})
}

// Verify checks signature, issuer and validity window and returns the grant.
func (i *Issuer) Verify(token string) (*Claims, error) {
	key, secret, err := resolveCredentials(i.cfg)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(strings.TrimSpace(token), claims,
		func(*jwt.Token) (any, error) { return []byte(secret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(key),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		// 保留 jwt 的错误链，调用方可区分过期与签名错误。
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.Video == nil {
		return nil, errors.Wrap(ErrInvalidToken, "token carries no identity or grant")
	}
	return claims, nil
}

type grantRequest struct {
	identity string
	name     string
	metadata string
	room     string
	kind     string
}

func (i *Issuer) sign(key, secret string, req grantRequest) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    key,
			Subject:   req.identity,
			ID:        req.identity,
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.cfg.TTL)),
		},
		Name:     req.name,
		Metadata: req.metadata,
		Kind:     req.kind,
		Video: &VideoGrant{
			Room:         req.room,
			RoomJoin:     true,
			CanPublish:   boolPtr(true),
			CanSubscribe: boolPtr(true),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", errors.Wrap(err, "sign participant token")
	}
	return signed, nil
}

// resolveCredentials 返回规范化后的 API Key 与 Secret，缺失时给出明确错误。
func resolveCredentials(cfg Config) (string, string, error) {
	key := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.APISecret)
	if key == "" || secret == "" {
		return "", "", ErrNotConfigured
	}
	return key, secret, nil
}

func boolPtr(v bool) *bool { return &v }
