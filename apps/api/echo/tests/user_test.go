package tests

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/trezcool/kalamu/apps/api/echo"
	"github.com/trezcool/kalamu/core/quota"
	"github.com/trezcool/kalamu/core/user"
	testutil "github.com/trezcool/kalamu/tests"
)

const pwd = "correct-Horse-42"

func Test_userApi_register(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.usrRepo, "Taken", "taken", "taken@test.cd", pwd, "", true)

	tests := []struct {
		name     string
		data     user.NewUser
		wantCode int
	}{
		{name: "missing fields", data: user.NewUser{}, wantCode: http.StatusBadRequest},
		{
			name:     "passwords mismatch",
			data:     user.NewUser{Name: "Joe", Email: "joe@test.cd", Password: pwd, PasswordConfirm: pwd + "x"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "email taken",
			data:     user.NewUser{Name: "Joe", Email: "TAKEN@test.cd", Password: pwd, PasswordConfirm: pwd},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "success",
			data:     user.NewUser{Name: " Joe ", Username: "Joe", Email: "Joe@test.cd", Password: pwd, PasswordConfirm: pwd},
			wantCode: http.StatusCreated,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/register", marchallObj(t, tt.data))
			f.serve(req, rec)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			if tt.wantCode == http.StatusCreated {
				var resp echoapi.LoginResponse
				decode(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
				require.NotNil(t, resp.User)
				assert.Equal(t, "Joe", resp.User.Name)
				assert.Equal(t, "joe", resp.User.Username)
				assert.Equal(t, "joe@test.cd", resp.User.Email)
				assert.Equal(t, quota.PlanFree, resp.User.Plan)
			}
		})
	}
}

func Test_userApi_login(t *testing.T) {
	f := setup(t)
	testutil.CreateUser(t, f.usrRepo, "User", "user", "user@test.cd", pwd, "", true)
	testutil.CreateUser(t, f.usrRepo, "Gone", "gone", "gone@test.cd", pwd, "", false)

	tests := []httpTest{
		{name: "missing credentials", body: marchallObj(t, echoapi.LoginRequest{}), wantCode: http.StatusBadRequest},
		{
			name:     "unknown user",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "nobody", Password: pwd}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "user", Password: "nope"}),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "inactive",
			body:     marchallObj(t, echoapi.LoginRequest{Username: "gone", Password: pwd}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{name: "by username", body: marchallObj(t, echoapi.LoginRequest{Username: "USER", Password: pwd}), wantCode: http.StatusOK},
		{name: "by email", body: marchallObj(t, echoapi.LoginRequest{Username: "user@test.cd", Password: pwd}), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/login", tt.body)
			f.serve(req, rec)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var resp echoapi.LoginResponse
				decode(t, rec, &resp)
				assert.NotEmpty(t, resp.Token)
				require.NotNil(t, resp.User)
				assert.Equal(t, "user", resp.User.Username)
				assert.False(t, resp.User.LastLogin.IsZero())
			}
		})
	}
}

func Test_userApi_me(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "User", "user", "user@test.cd", pwd, quota.PlanPro, true)
	gone := testutil.CreateUser(t, f.usrRepo, "Gone", "gone", "gone@test.cd", pwd, "", false)

	tests := []httpTest{
		{name: "auth required", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "bad token", token: "lol", wantCode: http.StatusUnauthorized},
		{name: "inactive", token: getToken(t, f.conf, gone), wantCode: http.StatusForbidden},
		{name: "success", token: getToken(t, f.conf, usr), wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", tt.token)
			f.serve(req, rec)
			checkCodeAndData(t, tt, rec)

			if tt.wantCode == http.StatusOK {
				var got user.User
				decode(t, rec, &got)
				assert.Equal(t, usr.ID, got.ID)
				assert.Equal(t, quota.PlanPro, got.Plan)
				assert.Empty(t, got.PasswordHash)
			}
		})
	}
}

func Test_userApi_update(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "User", "user", "user@test.cd", pwd, "", true)
	testutil.CreateUser(t, f.usrRepo, "Other", "other", "other@test.cd", pwd, "", true)
	token := getToken(t, f.conf, usr)

	t.Run("username taken", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", token, marchallObj(t, user.UpdateUser{Username: "other"}))
		f.serve(req, rec)
		assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
	})

	t.Run("success", func(t *testing.T) {
		data := user.UpdateUser{Name: "New Name", Password: "another-Horse-43", PasswordConfirm: "another-Horse-43"}
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", token, marchallObj(t, data))
		f.serve(req, rec)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
		require.NoError(t, err)
		assert.Equal(t, "New Name", got.Name)
		assert.Equal(t, "user@test.cd", got.Email)
		assert.NoError(t, got.CheckPassword("another-Horse-43"))
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "User", "user", "user@test.cd", pwd, "", true)

	req, rec := newAuthRequest(http.MethodPost, "/v1/users/token-refresh", getToken(t, f.conf, usr))
	f.serve(req, rec)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp echoapi.LoginResponse
	decode(t, rec, &resp)
	assert.NotEmpty(t, resp.Token)
	assert.Nil(t, resp.User)

	// the refreshed token is accepted
	req, rec = newAuthRequest(http.MethodGet, "/v1/users/me", resp.Token)
	f.serve(req, rec)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_passwordReset(t *testing.T) {
	f := setup(t)
	usr := testutil.CreateUser(t, f.usrRepo, "User", "user", "user@test.cd", pwd, "", true)
	testutil.CreateUser(t, f.usrRepo, "Gone", "gone", "gone@test.cd", pwd, "", false)

	for _, email := range []string{"nobody@test.cd", "gone@test.cd", "USER@test.cd"} {
		req, rec := newRequest(http.MethodPost, "/v1/users/password-reset", marchallObj(t, echoapi.PasswordResetRequest{Email: email}))
		f.serve(req, rec)
		assert.Equal(t, http.StatusOK, rec.Code, email)
	}
	// only the active account got a mail
	require.Len(t, f.outbox.Messages(), 1)
	_, ok := f.outbox.Last("user@test.cd")
	assert.True(t, ok)

	token, err := user.MakeResetToken(usr, f.conf)
	require.NoError(t, err)

	tests := []struct {
		name     string
		data     user.ResetUserPassword
		wantCode int
	}{
		{
			name:     "invalid uid",
			data:     user.ResetUserPassword{Token: token, UID: "lol", Password: "another-Horse-43", PasswordConfirm: "another-Horse-43"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "invalid token",
			data:     user.ResetUserPassword{Token: "lol", UID: user.EncodeUID(usr), Password: "another-Horse-43", PasswordConfirm: "another-Horse-43"},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "success",
			data:     user.ResetUserPassword{Token: token, UID: user.EncodeUID(usr), Password: "another-Horse-43", PasswordConfirm: "another-Horse-43"},
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(http.MethodPost, "/v1/users/password-reset-confirm", marchallObj(t, tt.data))
			f.serve(req, rec)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}

	got, err := f.usrRepo.GetUser(context.Background(), user.GetFilter{ID: usr.ID})
	require.NoError(t, err)
	assert.NoError(t, got.CheckPassword("another-Horse-43"))
}
