package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenmarket/market/internal/models"
)

// AuthService handles user registration and login. Users live in an
// in-process store; each user gets a generated marketplace address which is
// the caller identity the engine trusts.
type AuthService struct {
	mu     sync.Mutex
	users  map[string]*models.User
	nextID int
	secret []byte
}

// NewAuthService creates an auth service signing tokens with the given secret.
func NewAuthService(secret string) *AuthService {
	return &AuthService{
		users:  make(map[string]*models.User),
		nextID: 1,
		secret: []byte(secret),
	}
}

// Register creates a new user with a hashed password and a fresh address.
func (s *AuthService) Register(username, password string) (*models.User, error) {
	if username == "" {
		return nil, fmt.Errorf("username cannot be empty")
	}
	if password == "" {
		return nil, fmt.Errorf("password cannot be empty")
	}
	if len(username) > 50 {
		return nil, fmt.Errorf("username too long (max 50 characters)")
	}
	if len(password) > 100 {
		return nil, fmt.Errorf("password too long (max 100 characters)")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	address, err := newAddress()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.users[username]; exists {
		return nil, fmt.Errorf("username already taken")
	}
	user := &models.User{
		ID:           s.nextID,
		Username:     username,
		PasswordHash: string(hashedPassword),
		Address:      address,
		CreatedAt:    time.Now(),
	}
	s.nextID++
	s.users[username] = user
	return user, nil
}

// Login verifies credentials and generates a JWT carrying the user's address.
func (s *AuthService) Login(username, password string) (string, error) {
	s.mu.Lock()
	user, ok := s.users[username]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"address":  user.Address,
		"username": user.Username,
		"exp":      time.Now().Add(24 * time.Hour).Unix(),
	})

	tokenString, err := token.SignedString(s.secret)
	if err != nil {
		return "", err
	}
	return tokenString, nil
}

// AddressFromToken extracts the caller address from a JWT.
func (s *AuthService) AddressFromToken(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid token")
	}
	address, ok := claims["address"].(string)
	if !ok || address == "" {
		return "", fmt.Errorf("token has no address claim")
	}
	return address, nil
}

// newAddress generates a random 20-byte hex address.
func newAddress() (string, error) {
	var b [20]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("failed to generate address: %w", err)
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}
