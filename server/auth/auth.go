package auth

import (
	"fmt"
	"time"

	"github.com/Daskott/haven/server/auth/key"
	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"
)

const SESSION_ISSUER = "haven"

// HavenTokenClaims are carried by the session cookie. The subject is the user's email.
type HavenTokenClaims struct {
	Name string `json:"name"`
	jwt.StandardClaims
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NewSessionToken returns a signed token identifying 'email' that expires after 'ttl'.
func NewSessionToken(email, name string, ttl time.Duration, keyPair *key.KeyPair) (string, error) {
	now := time.Now()
	claims := HavenTokenClaims{
		Name: name,
		StandardClaims: jwt.StandardClaims{
			Subject:   email,
			Issuer:    SESSION_ISSUER,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
	}

	return EncodeJWT(claims, keyPair)
}

func EncodeJWT(claims HavenTokenClaims, keyPair *key.KeyPair) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod("RS256"), claims)
	token.Header["kid"] = keyPair.Kid

	tokenString, err := token.SignedString(keyPair.PrivateKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func DecodeJWT(tokenString string, keyPair *key.KeyPair) (*HavenTokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &HavenTokenClaims{}, func(token *jwt.Token) (interface{}, error) {
		// validate the alg is what you expect:
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		return keyPair.PublicKey, nil
	})

	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid jwt: %v", err)
	}

	tokenClaims, ok := token.Claims.(*HavenTokenClaims)
	if !ok {
		return nil, fmt.Errorf("unable to assert token.Claims to HavenTokenClaims")
	}

	return tokenClaims, nil
}
