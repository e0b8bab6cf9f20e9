//go:generate go run go.uber.org/mock/mockgen -source=user_repository.go -destination=../../mocks/mock_user_repository.go -package=mocks
package storage

import (
	"dm-lab/domain"
	"dm-lab/errors"
	stderrors "errors"

	"github.com/dgraph-io/badger/v4"
)

// IUserRepository is the read side of the user directory.
// Accounts are owned elsewhere, Save only exists to seed the directory.
type IUserRepository interface {
	Save(user domain.User) error
	GetUser(id string) (domain.User, error)
	GetUsers(ids []string) (map[string]domain.User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (u *UserRepository) Save(user domain.User) error {
	if err := domain.ValidateUserID(user.ID); err != nil {
		return err
	}
	data, err := encodeUser(user)
	if err != nil {
		return err
	}
	return storeError(u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	}))
}

func (u *UserRepository) GetUser(id string) (domain.User, error) {
	var user domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.User{}, errors.NotFound("user %s", id)
	}
	if err != nil {
		return domain.User{}, storeError(err)
	}
	return user, nil
}

// GetUsers returns the users that exist among ids, keyed by id.
func (u *UserRepository) GetUsers(ids []string) (map[string]domain.User, error) {
	users := make(map[string]domain.User, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			user, err := getUser(txn, id)
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			users[id] = user
		}
		return nil
	})
	if err != nil {
		return nil, storeError(err)
	}
	return users, nil
}

func getUser(txn *badger.Txn, id string) (domain.User, error) {
	item, err := txn.Get(userKey(id))
	if err != nil {
		return domain.User{}, err
	}
	var user domain.User
	err = item.Value(func(val []byte) error {
		user, err = decodeUser(val)
		return err
	})
	return user, err
}
