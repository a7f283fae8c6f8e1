package models

var updatableContactFields = []string{"name",
	"phone",
	"email",
	"relationship",
	"updated_at",
}

// Contact is a trusted person who is alerted when its owner triggers an SOS.
type Contact struct {
	BaseModel
	UserEmail    string `json:"user" gorm:"not null;index"`
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Relationship string `json:"relationship" validate:"required"`
}

// ContactsFor returns every contact owned by 'email', oldest first.
func ContactsFor(email string) ([]Contact, error) {
	contacts := []Contact{}
	err := db.Scopes(ownedBy(normalizeEmail(email))).Order("id asc").Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}
