package rest

import (
	"bytes"
	"dm-lab/domain"
	"dm-lab/errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestUserHandler_SaveProfile(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	// Then the caller is saved as an active member of the directory
	f.users.EXPECT().Save(domain.User{ID: "alice", Username: "alice", FullName: "Alice Liddell", IsActive: true}).Return(nil)

	w := f.do(http.MethodPut, "/api/users/me",
		bytes.NewBufferString(`{"username":"alice","fullName":"Alice Liddell"}`), "application/json")

	req.Equal(http.StatusOK, w.Code)
	req.Equal("alice", decodeBody(t, w)["data"].(map[string]any)["id"])

	// When the avatar is not a url
	w = f.do(http.MethodPut, "/api/users/me",
		bytes.NewBufferString(`{"username":"alice","avatarUrl":"nope"}`), "application/json")
	req.Equal(http.StatusBadRequest, w.Code)
}

func TestUserHandler_Get(t *testing.T) {
	req := require.New(t)
	f := newRestFixture(t)

	f.users.EXPECT().GetUser("bob").Return(domain.User{ID: "bob", Username: "bob", IsActive: true}, nil)
	f.users.EXPECT().GetUser("ghost").Return(domain.User{ID: "ghost", IsActive: false}, nil)
	f.users.EXPECT().GetUser("nobody").Return(domain.User{}, errors.NotFound("user nobody"))

	req.Equal(http.StatusOK, f.do(http.MethodGet, "/api/users/bob", nil, "").Code)
	req.Equal(http.StatusNotFound, f.do(http.MethodGet, "/api/users/ghost", nil, "").Code)
	req.Equal(http.StatusNotFound, f.do(http.MethodGet, "/api/users/nobody", nil, "").Code)
}
