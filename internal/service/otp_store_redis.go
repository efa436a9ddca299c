package service

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisOTPConsumeScript compara, cuenta intentos y borra en una sola
// operación para cerrar la carrera de doble verificación.
const redisOTPConsumeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return "not_found"
end
local expires = tonumber(redis.call("HGET", KEYS[1], "expires_at"))
if tonumber(ARGV[2]) > expires then
  redis.call("DEL", KEYS[1])
  return "expired"
end
local attempts = tonumber(redis.call("HGET", KEYS[1], "attempts"))
if attempts >= tonumber(ARGV[3]) then
  redis.call("DEL", KEYS[1])
  return "too_many"
end
if redis.call("HGET", KEYS[1], "code_hash") == ARGV[1] then
  redis.call("DEL", KEYS[1])
  return "ok"
end
redis.call("HINCRBY", KEYS[1], "attempts", 1)
return "mismatch"
`

type redisOTPStore struct {
	client *redis.Client
	prefix string
}

// NewRedisOTPStore crea un OTPStore respaldado en Redis. El TTL de la
// clave lleva un margen sobre expires_at para poder distinguir
// "expirado" de "inexistente" en la siguiente verificación.
func NewRedisOTPStore(client *redis.Client) OTPStore {
	if client == nil {
		return nil
	}
	return &redisOTPStore{
		client: client,
		prefix: "otp:challenge:",
	}
}

func (s *redisOTPStore) Save(ctx context.Context, email string, challenge OTPChallenge) error {
	key := s.key(email)
	ttl := time.Until(challenge.ExpiresAt) + time.Minute
	if ttl <= 0 {
		ttl = time.Minute
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key,
		"code_hash", challenge.CodeHash,
		"expires_at", challenge.ExpiresAt.UTC().Unix(),
		"attempts", challenge.Attempts,
	)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisOTPStore) Consume(ctx context.Context, email, codeHash string) (OTPVerdict, error) {
	now := time.Now().UTC().Unix()
	res, err := s.client.Eval(ctx, redisOTPConsumeScript, []string{s.key(email)}, codeHash, now, otpMaxAttempts).Text()
	if err != nil {
		return OTPVerdictNotFound, err
	}
	switch res {
	case "ok":
		return OTPVerdictOK, nil
	case "expired":
		return OTPVerdictExpired, nil
	case "too_many":
		return OTPVerdictTooManyAttempts, nil
	case "mismatch":
		return OTPVerdictMismatch, nil
	default:
		return OTPVerdictNotFound, nil
	}
}

func (s *redisOTPStore) key(email string) string {
	return s.prefix + strings.ToLower(strings.TrimSpace(email))
}
