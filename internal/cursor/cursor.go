package cursor

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/emilythestrangee/reddit-clone/votefeed/internal/apperr"
	"github.com/emilythestrangee/reddit-clone/votefeed/internal/ranking"
)

// Cursor marks the last item of a feed page. AsOf pins the instant
// time-dependent keys were computed at, so later pages rank identically.
type Cursor struct {
	Sort ranking.Sort
	Key  ranking.Key
	AsOf time.Time
	Page int
}

type claims struct {
	Sort ranking.Sort `json:"s"`
	Key  ranking.Key  `json:"k"`
	AsOf int64        `json:"a"`
	Page int          `json:"n"`
	jwt.RegisteredClaims
}

// Codec signs cursors so clients cannot forge sort keys.
type Codec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewCodec(secret string, ttl time.Duration) *Codec {
	return &Codec{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

func (c *Codec) Encode(cur Cursor) (string, error) {
	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		Sort: cur.Sort,
		Key:  cur.Key,
		AsOf: cur.AsOf.UnixNano(),
		Page: cur.Page,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	})

	return token.SignedString(c.secret)
}

// Decode verifies and parses a cursor. Any failure is an INVALID_CURSOR
// validation error.
func (c *Codec) Decode(token string) (*Cursor, error) {
	var cl claims
	_, err := jwt.ParseWithClaims(token, &cl, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, apperr.New(apperr.KindValidation, apperr.CodeInvalidCursor, "invalid or expired cursor", err)
	}
	if cl.Page < 1 {
		return nil, apperr.Validation(apperr.CodeInvalidCursor, "invalid cursor page")
	}

	return &Cursor{
		Sort: cl.Sort,
		Key:  cl.Key,
		AsOf: time.Unix(0, cl.AsOf).UTC(),
		Page: cl.Page,
	}, nil
}
