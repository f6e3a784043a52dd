package qrcode

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	accountentity "github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/entity"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/entity"
	qrrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/qrcode/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/utilities"
)

var (
	admin = access.Principal{AccountID: 1, Role: access.RoleAdmin}
	user1 = access.Principal{AccountID: 10, Role: access.RoleUser}
	user2 = access.Principal{AccountID: 11, Role: access.RoleUser}
)

type owners struct {
	mu   sync.Mutex
	byID map[int64]accountentity.Summary
}

func (o *owners) Summaries(_ context.Context, ids []int64) (map[int64]accountentity.Summary, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := map[int64]accountentity.Summary{}
	for _, id := range ids {
		if s, ok := o.byID[id]; ok {
			out[id] = s
		}
	}
	return out, nil
}

func newOwners() *owners {
	return &owners{byID: map[int64]accountentity.Summary{
		10: {ID: 10, Name: "Uma", Email: "uma@example.com", Role: access.RoleUser},
		11: {ID: 11, Name: "Vic", Email: "vic@example.com", Role: access.RoleUser},
	}}
}

func newTestService(t *testing.T, store Store) (*Service, *owners) {
	t.Helper()
	ids, err := utilities.NewIDGenerator(1)
	require.NoError(t, err)
	if store == nil {
		store = qrrepo.NewMemoryRepo()
	}
	o := newOwners()
	return NewService(store, o, ids, nil), o
}

func sequence(values ...string) func() (string, error) {
	var mu sync.Mutex
	i := 0
	return func() (string, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v, nil
	}
}

func code(n int) string { return fmt.Sprintf("%016d", 1000000000000000+n) }

func TestGenerate_Unique(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	seen := map[string]struct{}{}
	for i := 0; i < 5; i++ {
		out, err := svc.Generate(ctx, admin, MaxBatch)
		require.NoError(t, err)
		require.Len(t, out, MaxBatch)
		for _, v := range out {
			assert.True(t, utilities.IsCodeValue(v.Value))
			assert.Equal(t, entity.StatusUnclaimed, v.Status)
			_, dup := seen[v.Value]
			require.False(t, dup, v.Value)
			seen[v.Value] = struct{}{}
		}
	}
	all, err := svc.ListAll(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 5*MaxBatch)
}

func TestGenerate_Validation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	for _, n := range []int{0, -1, MaxBatch + 1} {
		_, err := svc.Generate(ctx, admin, n)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument, n)
	}
	_, err := svc.Generate(ctx, user1, 1)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.Generate(ctx, access.Principal{}, 1)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	superadmin := access.Principal{AccountID: 2, Role: access.RoleSuperAdmin}
	out, err := svc.Generate(ctx, superadmin, 1)
	require.NoError(t, err)
	assert.Len(t, out, 1)
}

func TestGenerate_RegeneratesCollisions(t *testing.T) {
	store := qrrepo.NewMemoryRepo()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	_, err := svc.Save(ctx, admin, []SaveItem{{Value: code(1)}})
	require.NoError(t, err)

	// code(1) is stored, code(2) repeats within the batch
	svc.values = sequence(code(1), code(2), code(2), code(3), code(4))
	out, err := svc.Generate(ctx, admin, 3)
	require.NoError(t, err)
	got := []string{out[0].Value, out[1].Value, out[2].Value}
	assert.ElementsMatch(t, []string{code(2), code(3), code(4)}, got)
}

func TestGenerate_ExhaustedIsInternal(t *testing.T) {
	svc, _ := newTestService(t, nil)
	svc.values = sequence(code(7))

	_, err := svc.Generate(context.Background(), admin, 2)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	all, err := svc.ListAll(context.Background(), admin)
	require.NoError(t, err)
	assert.Empty(t, all, "nothing persisted on failure")
}

// racingStore reports a unique violation for the first failures inserts.
type racingStore struct {
	*qrrepo.MemoryRepo
	failures int
	calls    int
}

func (s *racingStore) InsertBatch(ctx context.Context, codes []*entity.QRCode) error {
	s.calls++
	if s.calls <= s.failures {
		return qrrepo.ErrDuplicate
	}
	return s.MemoryRepo.InsertBatch(ctx, codes)
}

func TestGenerate_RetriesBatchOnDuplicate(t *testing.T) {
	store := &racingStore{MemoryRepo: qrrepo.NewMemoryRepo(), failures: 2}
	svc, _ := newTestService(t, store)

	out, err := svc.Generate(context.Background(), admin, 4)
	require.NoError(t, err)
	assert.Len(t, out, 4)
	assert.Equal(t, 3, store.calls)
}

func TestGenerate_GivesUpAfterBatchAttempts(t *testing.T) {
	store := &racingStore{MemoryRepo: qrrepo.NewMemoryRepo(), failures: 100}
	svc, _ := newTestService(t, store)

	_, err := svc.Generate(context.Background(), admin, 4)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	assert.Equal(t, maxBatchAttempts, store.calls)
}

func TestSave(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	out, err := svc.Save(ctx, admin, []SaveItem{
		{Value: code(1), Timestamp: "2025-05-01T10:00:00Z"},
		{Value: code(2)},
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC), out[0].CreatedAt)

	tests := map[string][]SaveItem{
		"empty":          {},
		"short":          {{Value: "123"}},
		"leading zero":   {{Value: "0123456789012345"}},
		"letters":        {{Value: "12345678901234ab"}},
		"dup in batch":   {{Value: code(5)}, {Value: code(5)}},
		"already stored": {{Value: code(6)}, {Value: code(1)}},
		"bad timestamp":  {{Value: code(7), Timestamp: "yesterday"}},
	}
	for name, items := range tests {
		_, err := svc.Save(ctx, admin, items)
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument, name)
	}

	// nothing from the rejected batches was written
	all, err := svc.ListAll(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = svc.Save(ctx, user1, []SaveItem{{Value: code(9)}})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestClaim_Validation(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Save(ctx, admin, []SaveItem{{Value: code(1)}})
	require.NoError(t, err)

	_, err = svc.Claim(ctx, user1, code(1), "   ")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.Claim(ctx, user1, code(1), strings.Repeat("x", MaxPurposeLength+1))
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	_, err = svc.Claim(ctx, user1, code(2), "desk")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Claim(ctx, user1, "nope", "desk")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.Claim(ctx, admin, code(1), "desk")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = svc.Claim(ctx, access.Principal{}, code(1), "desk")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	v, err := svc.GetDetails(ctx, user1, code(1))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusUnclaimed, v.Status, "failed claims leave the code untouched")

	v, err = svc.Claim(ctx, user1, code(1), strings.Repeat("é", MaxPurposeLength))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusClaimed, v.Status)
}

func TestClaim_ConcurrentExactlyOnce(t *testing.T) {
	svc, o := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Save(ctx, admin, []SaveItem{{Value: code(1)}})
	require.NoError(t, err)

	const n = 64
	o.mu.Lock()
	for i := 0; i < n; i++ {
		id := int64(100 + i)
		o.byID[id] = accountentity.Summary{ID: id, Name: fmt.Sprintf("user-%d", i)}
	}
	o.mu.Unlock()

	var (
		wg       sync.WaitGroup
		start    = make(chan struct{})
		mu       sync.Mutex
		winners  []int64
		rejected int
		other    []error
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			<-start
			_, err := svc.Claim(ctx, access.Principal{AccountID: id, Role: access.RoleUser}, code(1), "desk")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners = append(winners, id)
			case apperr.KindOf(err) == apperr.KindAlreadyClaimed:
				rejected++
			default:
				other = append(other, err)
			}
		}(int64(100 + i))
	}
	close(start)
	wg.Wait()

	require.Empty(t, other)
	require.Len(t, winners, 1)
	assert.Equal(t, n-1, rejected)

	v, err := svc.GetDetails(ctx, user1, code(1))
	require.NoError(t, err)
	require.NotNil(t, v.ClaimedBy)
	assert.Equal(t, winners[0], *v.ClaimedBy)
	require.NotNil(t, v.Owner)
	assert.Equal(t, winners[0], v.Owner.ID)
}

func TestNoTornState(t *testing.T) {
	store := qrrepo.NewMemoryRepo()
	svc, _ := newTestService(t, store)
	ctx := context.Background()

	out, err := svc.Generate(ctx, admin, 20)
	require.NoError(t, err)
	var wg sync.WaitGroup
	for i, v := range out {
		if i%2 == 1 {
			continue
		}
		for _, p := range []access.Principal{user1, user2} {
			wg.Add(1)
			go func(p access.Principal, value string) {
				defer wg.Done()
				_, _ = svc.Claim(ctx, p, value, "shelf")
			}(p, v.Value)
		}
	}
	wg.Wait()
	require.NoError(t, svc.Delete(ctx, admin, out[0].ID))
	require.NoError(t, svc.Delete(ctx, admin, out[1].ID))

	codes, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, codes, 18)
	claimed := 0
	for _, c := range codes {
		assert.True(t, c.Consistent(), c.Value)
		if c.Status == entity.StatusClaimed {
			claimed++
		}
	}
	assert.Equal(t, 9, claimed)
}

func TestGetByValue_IdempotentRead(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Save(ctx, admin, []SaveItem{{Value: code(1)}})
	require.NoError(t, err)

	first, err := svc.GetByValue(ctx, user1, code(1))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		again, err := svc.GetByValue(ctx, admin, code(1))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	_, err = svc.GetByValue(ctx, access.Principal{}, code(1))
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
	_, err = svc.GetByValue(ctx, user1, code(2))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestScenario_GenerateClaimDelete(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()

	codes, err := svc.Generate(ctx, admin, 3)
	require.NoError(t, err)
	all, err := svc.ListAll(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 3)
	for _, v := range all {
		assert.Equal(t, entity.StatusUnclaimed, v.Status)
		assert.Nil(t, v.Owner)
	}

	_, err = svc.Claim(ctx, user1, codes[0].Value, "desk-42")
	require.NoError(t, err)
	d, err := svc.GetDetails(ctx, user1, codes[0].Value)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusClaimed, d.Status)
	require.NotNil(t, d.Owner)
	assert.Equal(t, user1.AccountID, d.Owner.ID)
	assert.Equal(t, "Uma", d.Owner.Name)
	require.NotNil(t, d.Purpose)
	assert.Equal(t, "desk-42", *d.Purpose)

	_, err = svc.Claim(ctx, user2, codes[0].Value, "other")
	assert.ErrorIs(t, err, apperr.ErrAlreadyClaimed)

	require.NoError(t, svc.Delete(ctx, admin, codes[1].ID))
	all, err = svc.ListAll(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 2)
	for _, v := range all {
		assert.NotEqual(t, codes[1].Value, v.Value)
	}
}

func TestDelete(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	out, err := svc.Generate(ctx, admin, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, user1, out[0].ID), apperr.ErrForbidden)
	assert.ErrorIs(t, svc.Delete(ctx, user1, 999), apperr.ErrForbidden, "no existence leak")
	assert.ErrorIs(t, svc.Delete(ctx, admin, 999), apperr.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, admin, 0), apperr.ErrNotFound)
	require.NoError(t, svc.Delete(ctx, admin, out[0].ID))
	assert.ErrorIs(t, svc.Delete(ctx, admin, out[0].ID), apperr.ErrNotFound)
}

func TestOwnerIsWeakReference(t *testing.T) {
	svc, o := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Save(ctx, admin, []SaveItem{{Value: code(1)}})
	require.NoError(t, err)
	_, err = svc.Claim(ctx, user1, code(1), "desk")
	require.NoError(t, err)

	o.mu.Lock()
	delete(o.byID, user1.AccountID)
	o.mu.Unlock()

	v, err := svc.GetDetails(ctx, admin, code(1))
	require.NoError(t, err)
	assert.Equal(t, entity.StatusClaimed, v.Status)
	assert.Nil(t, v.Owner)
	require.NotNil(t, v.ClaimedBy)
	assert.Equal(t, user1.AccountID, *v.ClaimedBy)
}

func TestGetDetails_OwnerEmailOnlyForAdmins(t *testing.T) {
	svc, _ := newTestService(t, nil)
	ctx := context.Background()
	_, err := svc.Save(ctx, admin, []SaveItem{{Value: code(1)}})
	require.NoError(t, err)
	_, err = svc.Claim(ctx, user1, code(1), "desk")
	require.NoError(t, err)

	v, err := svc.GetDetails(ctx, user2, code(1))
	require.NoError(t, err)
	require.NotNil(t, v.Owner)
	assert.Equal(t, "Uma", v.Owner.Name)
	assert.Empty(t, v.Owner.Email)
	require.NotNil(t, v.User)
	assert.Empty(t, v.User.Email)
	assert.True(t, v.IsClaimed)

	v, err = svc.GetDetails(ctx, admin, code(1))
	require.NoError(t, err)
	require.NotNil(t, v.Owner)
	assert.Equal(t, "uma@example.com", v.Owner.Email)

	all, err := svc.ListAll(ctx, admin)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "uma@example.com", all[0].User.Email)
}
