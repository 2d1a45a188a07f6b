package account

import (
	"context"

	"github.com/rotisserie/eris"
)

// EnsureAccount returns the account registered under email, creating it with a
// fresh API key when it does not exist yet. The raw key is non-empty only on
// creation; it cannot be recovered afterwards.
func EnsureAccount(ctx context.Context, repo Repository, name, email string) (*Account, string, error) {
	acct, err := repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, "", eris.Wrap(err, "looking up bootstrap account")
	}
	if acct != nil {
		return acct, "", nil
	}

	acct, rawKey, err := repo.Create(ctx, name, email)
	if err != nil {
		return nil, "", eris.Wrap(err, "creating bootstrap account")
	}

	return acct, rawKey, nil
}
