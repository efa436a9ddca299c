package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// Parámetros del desafío OTP.
const (
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 3
)

// OTPChallenge es el desafío efímero por email. A lo sumo existe uno
// vivo por email: un nuevo envío pisa al anterior.
type OTPChallenge struct {
	CodeHash  string
	ExpiresAt time.Time
	Attempts  int
}

// OTPVerdict es el resultado de consumir un desafío.
type OTPVerdict int

const (
	OTPVerdictOK OTPVerdict = iota
	OTPVerdictNotFound
	OTPVerdictExpired
	OTPVerdictTooManyAttempts
	OTPVerdictMismatch
)

// OTPStore guarda desafíos por email. Consume debe ser atómico:
// comparar, contar intentos y borrar en una sola operación, para que
// dos verificaciones simultáneas no puedan acertar las dos.
type OTPStore interface {
	Save(ctx context.Context, email string, challenge OTPChallenge) error
	Consume(ctx context.Context, email, codeHash string) (OTPVerdict, error)
}

func hashOTPCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

type memoryOTPStore struct {
	mu    sync.Mutex
	items map[string]OTPChallenge
}

// NewMemoryOTPStore crea un store en memoria, útil para tests y para
// correr sin Redis en un solo proceso.
func NewMemoryOTPStore() OTPStore {
	return &memoryOTPStore{
		items: make(map[string]OTPChallenge),
	}
}

func (s *memoryOTPStore) Save(_ context.Context, email string, challenge OTPChallenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[email] = challenge
	return nil
}

func (s *memoryOTPStore) Consume(_ context.Context, email, codeHash string) (OTPVerdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, ok := s.items[email]
	if !ok {
		return OTPVerdictNotFound, nil
	}
	if time.Now().UTC().After(challenge.ExpiresAt) {
		delete(s.items, email)
		return OTPVerdictExpired, nil
	}
	if challenge.Attempts >= otpMaxAttempts {
		delete(s.items, email)
		return OTPVerdictTooManyAttempts, nil
	}
	if challenge.CodeHash != codeHash {
		challenge.Attempts++
		s.items[email] = challenge
		return OTPVerdictMismatch, nil
	}
	delete(s.items, email)
	return OTPVerdictOK, nil
}
