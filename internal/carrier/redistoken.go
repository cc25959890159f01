package carrier

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/redis/go-redis/v9"
)

// DefaultTokenKey is the redis key holding the shared carrier token.
const DefaultTokenKey = "carrier:shiprocket:token"

var _ TokenStore = (*RedisTokenStore)(nil)

// RedisTokenStore shares the carrier token between instances. The key
// expires together with the token.
type RedisTokenStore struct {
	rdb redis.Cmdable
	key string
	now func() time.Time
}

// NewRedisTokenStore creates a RedisTokenStore. An empty key selects
// DefaultTokenKey.
func NewRedisTokenStore(rdb redis.Cmdable, key string) *RedisTokenStore {
	if key == "" {
		key = DefaultTokenKey
	}
	return &RedisTokenStore{rdb: rdb, key: key, now: time.Now}
}

func (s *RedisTokenStore) Get(ctx context.Context) (Token, bool, error) {
	raw, err := s.rdb.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Token{}, false, nil
	}
	if err != nil {
		return Token{}, false, errors.Wrap(err, "redis get")
	}
	t, err := decodeToken(raw)
	if err != nil {
		return Token{}, false, errors.Wrap(err, "decode token")
	}
	return t, true, nil
}

func (s *RedisTokenStore) Set(ctx context.Context, t Token) error {
	ttl := t.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, s.key, encodeToken(t), ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

func (s *RedisTokenStore) Delete(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return errors.Wrap(err, "redis del")
	}
	return nil
}

func encodeToken(t Token) []byte {
	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("value", func(e *jx.Encoder) { e.Str(t.Value) })
		e.Field("expires_at", func(e *jx.Encoder) { e.Str(t.ExpiresAt.Format(time.RFC3339Nano)) })
	})
	return e.Bytes()
}

func decodeToken(raw []byte) (Token, error) {
	var t Token
	err := jx.DecodeBytes(raw).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "value":
			v, err := d.Str()
			if err != nil {
				return err
			}
			t.Value = v
		case "expires_at":
			v, err := d.Str()
			if err != nil {
				return err
			}
			at, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return err
			}
			t.ExpiresAt = at
		default:
			return d.Skip()
		}
		return nil
	})
	if err != nil {
		return Token{}, err
	}
	if t.Value == "" {
		return Token{}, errors.New("token has no value")
	}
	return t, nil
}
