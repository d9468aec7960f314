package user

import (
	"context"

	"github.com/trezcool/kalamu/core"
)

type serviceMock struct {
	*service
}

// NewServiceMock returns a Service that sends its emails synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{service: newService(repo, mailSvc, conf)}
}

func (svc *serviceMock) RequestPasswordReset(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUser(ctx, GetFilter{Email: core.CleanString(email, true /* lower */)})
	if err != nil {
		return err
	}
	if !usr.Active() {
		return ErrNotFound
	}
	// run synchronously
	svc.sendPasswordResetMail(usr)
	return nil
}

// MakeResetToken exposes the password reset token of usr for tests.
func MakeResetToken(usr User, conf *core.Config) (string, error) {
	return newService(nil, nil, conf).tokens.makeToken(usr)
}
