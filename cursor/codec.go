package cursor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/golang-jwt/jwt/v5"

	"github.com/jacentio/spool/store"
)

// DefaultTTL is how long an issued cursor stays valid.
const DefaultTTL = 24 * time.Hour

var (
	// ErrEmptySecret is returned by NewCodec when no signing secret is given.
	ErrEmptySecret = errors.New("spool: cursor secret is empty")

	// ErrInvalidCursor is returned by Parse for any cursor that cannot be trusted.
	ErrInvalidCursor = errors.New("spool: invalid cursor")

	// ErrUnsupportedField is returned by Encode when a preserved field is
	// neither a string nor a number.
	ErrUnsupportedField = errors.New("spool: unsupported cursor field type")
)

// claims is the signed cursor payload. S holds string key fields and N holds
// number key fields, keyed by attribute name. Scope names the query that
// issued the cursor.
type claims struct {
	S     map[string]string `json:"s,omitempty"`
	N     map[string]string `json:"n,omitempty"`
	Scope string            `json:"scp"`
	jwt.RegisteredClaims
}

// Scope identifies one paginated query by its index, partition value and
// sort key prefix. A cursor only decodes under the scope it was issued for.
func Scope(index, partition, prefix string) string {
	return strings.Join([]string{index, partition, prefix}, "|")
}

// Option configures a Codec.
type Option func(*Codec)

// WithTTL sets the cursor lifetime. Non-positive values keep DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Codec) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source used for issuing and checking expiry.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// Codec signs and verifies cursors with an HMAC secret.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCodec creates a Codec signing with secret.
func NewCodec(secret []byte, opts ...Option) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	c := &Codec{
		secret: secret,
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Encode projects marker onto preserve and signs the result for scope. It
// returns "" when marker is nil or none of the preserved fields are present,
// which callers treat as "no more pages".
func (c *Codec) Encode(marker store.Key, preserve Fields, scope string) (string, error) {
	if len(marker) == 0 {
		return "", nil
	}

	cl := claims{Scope: scope}
	for _, f := range preserve.fields {
		v, ok := marker[string(f)]
		if !ok {
			continue
		}
		switch av := v.(type) {
		case *types.AttributeValueMemberS:
			if cl.S == nil {
				cl.S = make(map[string]string)
			}
			cl.S[string(f)] = av.Value
		case *types.AttributeValueMemberN:
			if cl.N == nil {
				cl.N = make(map[string]string)
			}
			cl.N[string(f)] = av.Value
		default:
			return "", fmt.Errorf("%w: %s", ErrUnsupportedField, f)
		}
	}
	if len(cl.S) == 0 && len(cl.N) == 0 {
		return "", nil
	}

	now := c.now()
	cl.IssuedAt = jwt.NewNumericDate(now)
	cl.ExpiresAt = jwt.NewNumericDate(now.Add(c.ttl))

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, cl).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign cursor: %w", err)
	}
	return token, nil
}

// Decode returns the marker carried by token, or nil when token is empty or
// cannot be trusted for any reason, including a cursor issued for another
// scope or preserve set.
func (c *Codec) Decode(token string, preserve Fields, scope string) store.Key {
	key, err := c.Parse(token, preserve, scope)
	if err != nil {
		return nil
	}
	return key
}

// Parse is the strict form of Decode. An empty token yields (nil, nil).
func (c *Codec) Parse(token string, preserve Fields, scope string) (store.Key, error) {
	if token == "" {
		return nil, nil
	}

	cl := &claims{}
	_, err := jwt.ParseWithClaims(token, cl, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidCursor, err)
	}
	if cl.Scope != scope {
		return nil, fmt.Errorf("%w: issued for another query", ErrInvalidCursor)
	}

	key := make(store.Key, len(cl.S)+len(cl.N))
	for name, v := range cl.S {
		if !preserve.Contains(KeyField(name)) {
			return nil, fmt.Errorf("%w: unexpected field %q", ErrInvalidCursor, name)
		}
		key[name] = &types.AttributeValueMemberS{Value: v}
	}
	for name, v := range cl.N {
		if !preserve.Contains(KeyField(name)) {
			return nil, fmt.Errorf("%w: unexpected field %q", ErrInvalidCursor, name)
		}
		key[name] = &types.AttributeValueMemberN{Value: v}
	}
	if len(key) == 0 || len(key) != preserve.Len() {
		return nil, fmt.Errorf("%w: expected %d key fields, got %d", ErrInvalidCursor, preserve.Len(), len(key))
	}
	return key, nil
}
