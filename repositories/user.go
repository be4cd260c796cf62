//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-live/errors"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type IUserRepository interface {
	CreateUser(user User) error
	GetUser(id string) (User, error)
	GetUsers(ids []string) ([]User, error)
	GetUserByEmail(email string) (User, error)
	SearchUsers(term, excludeID string) ([]User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) *UserRepository {
	return &UserRepository{db: db}
}

// User is the stored representation of an account.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Pic          string    `json:"pic"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

func userKey(id string) string { return "user:" + id }

func emailKey(email string) string { return "user_email:" + strings.ToLower(email) }

// CreateUser persists the user and reserves its email.
func (u *UserRepository) CreateUser(user User) error {
	return u.db.Update(func(txn *badger.Txn) error {
		key := []byte(emailKey(user.Email))
		if _, err := txn.Get(key); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(key, []byte(user.ID)); err != nil {
			return err
		}
		return setJSON(txn, userKey(user.ID), user)
	})
}

func (u *UserRepository) GetUser(id string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &user, errors.ErrUserNotFound)
	})
	return user, err
}

// GetUsers loads every user, failing on the first unknown id.
func (u *UserRepository) GetUsers(ids []string) ([]User, error) {
	users := make([]User, 0, len(ids))
	err := u.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			var user User
			if err := getJSON(txn, userKey(id), &user, errors.ErrUserNotFound); err != nil {
				return err
			}
			users = append(users, user)
		}
		return nil
	})
	return users, err
}

func (u *UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(emailKey(email)))
		if err != nil {
			return errors.ErrUserNotFound
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(string(id)), &user, errors.ErrUserNotFound)
	})
	return user, err
}

// SearchUsers returns the users whose name or email contains term, case-insensitively.
func (u *UserRepository) SearchUsers(term, excludeID string) ([]User, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	var users []User
	err := u.db.View(func(txn *badger.Txn) error {
		return scanJSON(txn, "user:", func(user User) error {
			if user.ID == excludeID {
				return nil
			}
			if term == "" ||
				strings.Contains(strings.ToLower(user.Name), term) ||
				strings.Contains(strings.ToLower(user.Email), term) {
				users = append(users, user)
			}
			return nil
		})
	})
	return users, err
}
