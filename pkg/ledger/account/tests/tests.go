package tests

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kbruccoleri/solana-bpf-program/pkg/database/query"
	"github.com/kbruccoleri/solana-bpf-program/pkg/ledger/account"
)

func RunTests(t *testing.T, s account.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s account.Store){
		testRoundTrip,
		testUpdate,
		testCommitDeletes,
		testCommitInvalid,
		testGetAllByOwner,
		testCount,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s account.Store) {
	ctx := context.Background()

	expected := newRecord(t, randomKey(t), 100)
	expected.Data = []byte{1, 2, 3}
	expected.Executable = true
	expected.Slot = 5

	actual, err := s.Get(ctx, expected.Address)
	assert.Equal(t, account.ErrAccountNotFound, err)
	assert.Nil(t, actual)

	require.NoError(t, s.Commit(ctx, []*account.Record{expected}, nil))
	assert.EqualValues(t, 1, expected.Id)

	actual, err = s.Get(ctx, expected.Address)
	require.NoError(t, err)
	assert.True(t, expected.Equal(actual))
	assert.Equal(t, expected.Id, actual.Id)

	// Returned records are copies.
	actual.Data[0] = 9
	again, err := s.Get(ctx, expected.Address)
	require.NoError(t, err)
	assert.EqualValues(t, 1, again.Data[0])
}

func testUpdate(t *testing.T, s account.Store) {
	ctx := context.Background()

	record := newRecord(t, randomKey(t), 100)
	require.NoError(t, s.Commit(ctx, []*account.Record{record}, nil))
	id := record.Id

	record.Lamports = 50
	record.Data = make([]byte, 10)
	record.Slot = 2
	require.NoError(t, s.Commit(ctx, []*account.Record{record}, nil))
	assert.Equal(t, id, record.Id)

	actual, err := s.Get(ctx, record.Address)
	require.NoError(t, err)
	assert.True(t, record.Equal(actual))

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func testCommitDeletes(t *testing.T, s account.Store) {
	ctx := context.Background()

	owner := randomKey(t)
	first := newRecord(t, owner, 1)
	second := newRecord(t, owner, 2)
	require.NoError(t, s.Commit(ctx, []*account.Record{first, second}, nil))

	third := newRecord(t, owner, 3)
	require.NoError(t, s.Commit(ctx, []*account.Record{third}, []string{first.Address, randomKey(t)}))

	_, err := s.Get(ctx, first.Address)
	assert.Equal(t, account.ErrAccountNotFound, err)

	for _, record := range []*account.Record{second, third} {
		actual, err := s.Get(ctx, record.Address)
		require.NoError(t, err)
		assert.True(t, record.Equal(actual))
	}
}

func testCommitInvalid(t *testing.T, s account.Store) {
	ctx := context.Background()

	valid := newRecord(t, randomKey(t), 1)
	invalid := newRecord(t, randomKey(t), 0)

	assert.Error(t, s.Commit(ctx, []*account.Record{valid, invalid}, nil))

	// Nothing from the failed commit is visible.
	_, err := s.Get(ctx, valid.Address)
	assert.Equal(t, account.ErrAccountNotFound, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)
}

func testGetAllByOwner(t *testing.T, s account.Store) {
	ctx := context.Background()

	owner := randomKey(t)

	_, err := s.GetAllByOwner(ctx, owner, query.EmptyCursor, 10, query.Ascending)
	assert.Equal(t, account.ErrAccountNotFound, err)

	var expected []*account.Record
	for i := 0; i < 5; i++ {
		record := newRecord(t, owner, uint64(i+1))
		require.NoError(t, s.Commit(ctx, []*account.Record{record}, nil))
		expected = append(expected, record)
	}
	require.NoError(t, s.Commit(ctx, []*account.Record{newRecord(t, randomKey(t), 1)}, nil))

	actual, err := s.GetAllByOwner(ctx, owner, query.EmptyCursor, 10, query.Ascending)
	require.NoError(t, err)
	require.Len(t, actual, 5)
	for i := range actual {
		assert.True(t, expected[i].Equal(actual[i]))
	}

	actual, err = s.GetAllByOwner(ctx, owner, query.EmptyCursor, 2, query.Descending)
	require.NoError(t, err)
	require.Len(t, actual, 2)
	assert.Equal(t, expected[4].Address, actual[0].Address)
	assert.Equal(t, expected[3].Address, actual[1].Address)

	actual, err = s.GetAllByOwner(ctx, owner, query.ToCursor(expected[1].Id), 2, query.Ascending)
	require.NoError(t, err)
	require.Len(t, actual, 2)
	assert.Equal(t, expected[2].Address, actual[0].Address)
	assert.Equal(t, expected[3].Address, actual[1].Address)

	actual, err = s.GetAllByOwner(ctx, owner, query.ToCursor(expected[2].Id), 10, query.Descending)
	require.NoError(t, err)
	require.Len(t, actual, 2)
	assert.Equal(t, expected[1].Address, actual[0].Address)
	assert.Equal(t, expected[0].Address, actual[1].Address)

	_, err = s.GetAllByOwner(ctx, owner, query.ToCursor(expected[4].Id), 10, query.Ascending)
	assert.Equal(t, account.ErrAccountNotFound, err)
}

func testCount(t *testing.T, s account.Store) {
	ctx := context.Background()

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	owner := randomKey(t)
	var records []*account.Record
	for i := 0; i < 3; i++ {
		records = append(records, newRecord(t, owner, 1))
	}
	require.NoError(t, s.Commit(ctx, records, nil))

	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 3, count)

	require.NoError(t, s.Commit(ctx, nil, []string{records[0].Address}))

	count, err = s.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func newRecord(t *testing.T, owner string, lamports uint64) *account.Record {
	return &account.Record{
		Address:  randomKey(t),
		Owner:    owner,
		Lamports: lamports,
		Data:     []byte{},
	}
}

func randomKey(t *testing.T) string {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub)
}
