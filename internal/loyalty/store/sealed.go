package store

import (
	"context"
	"fmt"
)

// Cipher seals records before they reach the backing KV.
type Cipher interface {
	Seal(plaintext, additional []byte) ([]byte, error)
	Open(sealed, additional []byte) ([]byte, error)
}

// Sealed encrypts values at rest. The storage key is bound as additional data,
// so a record copied under another key fails to open.
type Sealed struct {
	next   KV
	cipher Cipher
}

func NewSealed(next KV, c Cipher) *Sealed {
	return &Sealed{next: next, cipher: c}
}

func (s *Sealed) Get(ctx context.Context, key string) ([]byte, error) {
	raw, err := s.next.Get(ctx, key)
	if err != nil {
		return nil, err
	}

	plain, err := s.cipher.Open(raw, []byte(key))
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", key, err)
	}
	return plain, nil
}

func (s *Sealed) Set(ctx context.Context, key string, value []byte) error {
	sealed, err := s.cipher.Seal(value, []byte(key))
	if err != nil {
		return fmt.Errorf("store: seal %q: %w", key, err)
	}
	return s.next.Set(ctx, key, sealed)
}

func (s *Sealed) Delete(ctx context.Context, key string) error {
	return s.next.Delete(ctx, key)
}
