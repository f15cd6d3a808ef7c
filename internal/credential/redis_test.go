package credential_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/sahan/go-idp/internal/credential"
)

func newRedisStore(t *testing.T) (*credential.RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return credential.NewRedisStoreFromClient(client, "idp:credential:", logger), mini
}

func TestRedisStorePutGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStore(t)

	code := credential.NewAuthorizationCode("citizen-1", "client-1", []string{"openid", "profile"}, map[string]string{
		credential.MetadataCodeChallenge: "challenge",
		credential.MetadataNonce:         "n-0S6_WzA2Mj",
	})

	if err := store.Put(ctx, code); err != nil {
		t.Fatal(err)
	}

	got, err := store.Get(ctx, code.Value)
	if err != nil {
		t.Fatal(err)
	}
	if got.SubjectID != "citizen-1" || got.Kind != credential.KindAuthorizationCode {
		t.Errorf("unexpected credential: %+v", got)
	}
	if got.Metadata[credential.MetadataNonce] != "n-0S6_WzA2Mj" {
		t.Error("metadata not preserved through redis")
	}
	if len(got.Scopes) != 2 {
		t.Errorf("expected 2 scopes, got %v", got.Scopes)
	}
}

func TestRedisStorePutRejectsDuplicate(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStore(t)

	token := credential.NewAccessToken("citizen-1", "client-1", nil)
	if err := store.Put(ctx, token); err != nil {
		t.Fatal(err)
	}

	duplicate := credential.NewAccessToken("citizen-2", "client-2", nil)
	duplicate.Value = token.Value

	if err := store.Put(ctx, duplicate); !errors.Is(err, credential.ErrDuplicateValue) {
		t.Errorf("expected ErrDuplicateValue, got %v", err)
	}
}

func TestRedisStorePutRejectsExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStore(t)

	expired := credential.NewAccessToken("citizen-1", "client-1", nil)
	expired.ExpiresAt = time.Now().Add(-time.Second)

	if err := store.Put(ctx, expired); err == nil {
		t.Error("expected error storing an already expired credential")
	}
}

func TestRedisStoreTTLExpiry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mini := newRedisStore(t)

	code := credential.NewAuthorizationCode("citizen-1", "client-1", nil, nil)
	if err := store.Put(ctx, code); err != nil {
		t.Fatal(err)
	}

	mini.FastForward(credential.AuthorizationCodeTTL + time.Second)

	if _, err := store.Get(ctx, code.Value); !errors.Is(err, credential.ErrNotFound) {
		t.Errorf("expected ErrNotFound after TTL, got %v", err)
	}
	if _, err := store.Consume(ctx, code.Value); !errors.Is(err, credential.ErrNotFound) {
		t.Errorf("expected ErrNotFound consuming after TTL, got %v", err)
	}
}

func TestRedisStoreConsumeOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStore(t)

	code := credential.NewAuthorizationCode("citizen-1", "client-1", []string{"openid"}, nil)
	if err := store.Put(ctx, code); err != nil {
		t.Fatal(err)
	}

	got, err := store.Consume(ctx, code.Value)
	if err != nil {
		t.Fatal(err)
	}
	if got.Revoked {
		t.Error("winning consume should observe the pre-consumption state")
	}
	if got.SubjectID != "citizen-1" {
		t.Errorf("unexpected subject %q", got.SubjectID)
	}

	if _, err := store.Consume(ctx, code.Value); !errors.Is(err, credential.ErrAlreadyConsumed) {
		t.Errorf("expected ErrAlreadyConsumed on replay, got %v", err)
	}

	// The record stays around revoked until its TTL ends
	stored, err := store.Get(ctx, code.Value)
	if err != nil {
		t.Fatal(err)
	}
	if !stored.Revoked {
		t.Error("consumed credential should be marked revoked")
	}
}

func TestRedisStoreConcurrentConsumeSingleWinner(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStore(t)

	code := credential.NewAuthorizationCode("citizen-1", "client-1", nil, nil)
	if err := store.Put(ctx, code); err != nil {
		t.Fatal(err)
	}

	const racers = 16

	var wins int
	var mutex sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Consume(ctx, code.Value); err == nil {
				mutex.Lock()
				wins++
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly 1 winning consume, got %d", wins)
	}
}

func TestRedisStoreRevokeIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, _ := newRedisStore(t)

	token := credential.NewAccessToken("citizen-1", "client-1", nil)
	if err := store.Put(ctx, token); err != nil {
		t.Fatal(err)
	}

	if err := store.Revoke(ctx, token.Value); err != nil {
		t.Fatal(err)
	}
	if err := store.Revoke(ctx, token.Value); err != nil {
		t.Errorf("second revoke should succeed, got %v", err)
	}

	if err := store.Revoke(ctx, "missing"); !errors.Is(err, credential.ErrNotFound) {
		t.Errorf("expected ErrNotFound revoking unknown value, got %v", err)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store, mini := newRedisStore(t)

	mini.Close()

	token := credential.NewAccessToken("citizen-1", "client-1", nil)
	if err := store.Put(ctx, token); !errors.Is(err, credential.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if _, err := store.Get(ctx, "anything"); !errors.Is(err, credential.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable, got %v", err)
	}
	if err := store.Ping(ctx); !errors.Is(err, credential.ErrUnavailable) {
		t.Errorf("expected ErrUnavailable from ping, got %v", err)
	}
}
