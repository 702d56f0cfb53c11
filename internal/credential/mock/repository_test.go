package credentialmock_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkcm/addon-auth/internal/credential"
	credentialmock "github.com/openkcm/addon-auth/internal/credential/mock"
)

func TestRepository_PutGet(t *testing.T) {
	r := credentialmock.NewInMemRepository(nil, nil, nil)
	ctx := t.Context()

	_, found, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, found)

	c1 := credential.Credential{SubjectID: "u1", AccessToken: "at-1", RefreshToken: "rt-1"}
	c2 := credential.Credential{SubjectID: "u1", AccessToken: "at-2"}
	require.NoError(t, r.Put(ctx, c1))
	require.NoError(t, r.Put(ctx, c2))

	got, found, err := r.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, c2, got)
}

func TestRepository_Errors(t *testing.T) {
	errGet, errPut, errDel := errors.New("get"), errors.New("put"), errors.New("delete")
	r := credentialmock.NewInMemRepository(errGet, errPut, errDel)
	ctx := t.Context()

	_, _, err := r.Get(ctx, "u1")
	assert.ErrorIs(t, err, errGet)
	assert.ErrorIs(t, r.Put(ctx, credential.Credential{SubjectID: "u1"}), errPut)
	assert.ErrorIs(t, r.Delete(ctx, "u1"), errDel)
}
