package password

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// MaxLength ограничение bcrypt на длину пароля в байтах
const MaxLength = 72

var (
	ErrEmpty   = errors.New("password is empty")
	ErrTooLong = errors.New("password must be no more than 72 bytes long")
)

// Hasher хеширует пароли защищенных ссылок
type Hasher struct {
	cost int
}

// New создает hasher со стандартной сложностью bcrypt
func New() *Hasher {
	return &Hasher{cost: bcrypt.DefaultCost}
}

// NewWithCost создает hasher с заданной сложностью
func NewWithCost(cost int) *Hasher {
	return &Hasher{cost: cost}
}

// Hash хеширует пароль с использованием bcrypt
func (h *Hasher) Hash(plain string) (string, error) {
	if len(plain) == 0 {
		return "", ErrEmpty
	}
	if len(plain) > MaxLength {
		return "", ErrTooLong
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(plain), h.cost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Verify проверяет соответствие пароля и хеша
func (h *Hasher) Verify(hashed, plain string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain))
}
