package sessionvalkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"
)

type ObjectType string

var errNotFound = errors.New("key not found")

type store struct {
	valkey valkey.Client
	prefix string
}

func newStore(valkeyClient valkey.Client, prefix string) *store {
	prefix = strings.TrimSuffix(prefix, ":")
	return &store{
		valkey: valkeyClient,
		prefix: prefix,
	}
}

func (s *store) Get(ctx context.Context, objectType ObjectType, objectID string, decodeInto any) error {
	bytes, err := s.valkey.Do(ctx, s.valkey.B().Get().Key(s.key(objectType, objectID)).Build()).AsBytes()
	if err != nil {
		if valkeyErr, ok := valkey.IsValkeyErr(err); ok && valkeyErr.IsNil() {
			return errNotFound
		}

		return fmt.Errorf("executing get command: %w", err)
	}

	if err := s.decode(bytes, decodeInto); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}

	return nil
}

// Set writes val under the key and lets it expire after ttl. A ttl of zero
// or less keeps the key until it is destroyed.
func (s *store) Set(ctx context.Context, objectType ObjectType, id string, val any, ttl time.Duration) error {
	bytes, err := s.encode(val)
	if err != nil {
		return fmt.Errorf("encoding data: %w", err)
	}

	set := s.valkey.B().Set().Key(s.key(objectType, id)).Value(valkey.BinaryString(bytes))

	var cmd valkey.Completed
	if ttl > 0 {
		cmd = set.PxMilliseconds(ttl.Milliseconds()).Build()
	} else {
		cmd = set.Build()
	}

	if err := s.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (s *store) Destroy(ctx context.Context, objectType ObjectType, id string) error {
	if err := s.valkey.Do(ctx, s.valkey.B().Del().Key(s.key(objectType, id)).Build()).Error(); err != nil {
		return fmt.Errorf("executing del command: %w", err)
	}

	return nil
}

func (s *store) key(objectType ObjectType, objectID string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, objectType, objectID)
}

func (s *store) encode(v any) ([]byte, error) {
	bytes, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshaling json: %w", err)
	}

	return bytes, nil
}

func (s *store) decode(data []byte, into any) error {
	if err := json.Unmarshal(data, into); err != nil {
		return fmt.Errorf("unmarshaling json: %w", err)
	}

	return nil
}
