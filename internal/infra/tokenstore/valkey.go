package tokenstore

import (
	"context"
	"fmt"

	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/mealplanner/internal/domain/session"
)

// ValkeyStore persists the token in a Valkey-compatible database.
type ValkeyStore struct {
	client valkey.Client
	prefix string
}

// NewValkeyStore constructs a store using keys under prefix.
func NewValkeyStore(client valkey.Client, prefix string) *ValkeyStore {
	if prefix == "" {
		prefix = "mealplanner"
	}
	return &ValkeyStore{client: client, prefix: prefix}
}

func (s *ValkeyStore) Load(ctx context.Context) (string, bool, error) {
	token, err := s.client.Do(ctx, s.client.B().Get().Key(s.key()).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return token, true, nil
}

func (s *ValkeyStore) Save(ctx context.Context, token string) error {
	return s.client.Do(ctx, s.client.B().Set().Key(s.key()).Value(token).Build()).Error()
}

func (s *ValkeyStore) Clear(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Del().Key(s.key()).Build()).Error()
}

func (s *ValkeyStore) key() string {
	return fmt.Sprintf("%s:%s", s.prefix, Name)
}

var _ session.TokenStore = (*ValkeyStore)(nil)
