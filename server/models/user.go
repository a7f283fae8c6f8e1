package models

import (
	"errors"
	"strings"

	"github.com/Daskott/haven/server/auth"
	"gorm.io/gorm"
)

var ErrDuplicateEmail = errors.New("email already exists")

var allFieldsExceptPassword = []string{"id",
	"name",
	"phone",
	"email",
	"created_at",
	"updated_at",
}

// User is keyed by email; contacts and alerts reference it by that value.
type User struct {
	BaseModel
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Email    string `json:"email" gorm:"not null;unique"`
	Password string `json:"-" gorm:"not null"`
}

func (user *User) AddContact(contact *Contact) error {
	contact.ID = 0
	contact.UserEmail = user.Email
	return db.Create(contact).Error
}

func (user *User) Contacts() ([]Contact, error) {
	return ContactsFor(user.Email)
}

// UpdateContact applies 'data' to the contact with 'contactID' if this user owns it.
// It returns false when no such contact exists.
func (user *User) UpdateContact(contactID uint, data map[string]interface{}) (bool, error) {
	res := db.Model(&Contact{}).Scopes(ownedBy(user.Email)).
		Where("id = ?", contactID).
		Select(updatableContactFields).
		Updates(data)

	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

// DeleteContact removes the contact with 'contactID' if this user owns it.
// It returns false when no such contact exists.
func (user *User) DeleteContact(contactID uint) (bool, error) {
	res := db.Scopes(ownedBy(user.Email)).Where("id = ?", contactID).Delete(&Contact{})
	if res.Error != nil {
		return false, res.Error
	}

	return res.RowsAffected > 0, nil
}

func (user *User) Alerts() ([]Alert, error) {
	return AlertsFor(user.Email)
}

func FindUserBy(field string, value interface{}) (*User, error) {
	user := User{}
	err := db.Select(allFieldsExceptPassword).Where(map[string]interface{}{field: value}).First(&user).Error
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func FindUserByEmail(email string) (*User, error) {
	return FindUserBy("email", normalizeEmail(email))
}

func FindUserPassword(email string) (string, error) {
	user := &User{}
	err := db.Select("Password").First(user, "email = ?", normalizeEmail(email)).Error

	if err != nil {
		return "", err
	}
	return user.Password, nil
}

// CreateUser stores 'user' with a hashed password. ErrDuplicateEmail is
// returned if the email is taken.
func CreateUser(user *User) error {
	user.Email = normalizeEmail(user.Email)

	_, err := FindUserByEmail(user.Email)
	if err == nil {
		return ErrDuplicateEmail
	}

	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	passwordHash, err := auth.HashPassword(user.Password)
	if err != nil {
		return err
	}
	user.Password = passwordHash

	return insertUser(user)
}

// insertUser relies on the unique email index for signups that race past
// the lookup in CreateUser.
func insertUser(user *User) error {
	err := db.Create(user).Error
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return ErrDuplicateEmail
	}

	return err
}

// Authenticate returns the user for 'email' when 'password' matches.
// Unknown emails and wrong passwords both come back as (nil, nil).
func Authenticate(email, password string) (*User, error) {
	passwordHash, err := FindUserPassword(email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, err
	}

	if !auth.CheckPasswordHash(password, passwordHash) {
		return nil, nil
	}

	return FindUserByEmail(email)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
