package Token

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoSecret = errors.New("token secret not configured")
	ErrBadToken = errors.New("token invalid")
	ErrNoUserID = errors.New("token has no user id")
)

var (
	secret       []byte
	hourLifespan = 24
)

// Configure sets the signing secret and the token lifetime in hours.
func Configure(apiSecret string, lifespanHours int) {
	secret = []byte(apiSecret)
	if lifespanHours > 0 {
		hourLifespan = lifespanHours
	}
}

func GenerateToken(userID uint) (string, error) {
	if len(secret) == 0 {
		return "", ErrNoSecret
	}
	claims := jwt.MapClaims{}
	claims["authorized"] = true
	claims["user_id"] = userID
	claims["exp"] = time.Now().Add(time.Hour * time.Duration(hourLifespan)).Unix()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

func TokenValid(c *gin.Context) error {
	_, err := ExtractJWT(c)
	return err
}

// ExtractToken reads the token from the query string (EventSource clients)
// or from the Authorization bearer header.
func ExtractToken(c *gin.Context) string {
	if token := c.Query("token"); token != "" {
		return token
	}
	bearerToken := c.Request.Header.Get("Authorization")
	if parts := strings.Split(bearerToken, " "); len(parts) == 2 {
		return parts[1]
	}
	return ""
}

func ExtractJWT(c *gin.Context) (*jwt.Token, error) {
	return Parse(ExtractToken(c))
}

func Parse(tokenString string) (*jwt.Token, error) {
	if len(secret) == 0 {
		return nil, ErrNoSecret
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, ErrBadToken
	}
	return token, nil
}

func ExtractTokenID(c *gin.Context) (uint, error) {
	token, err := ExtractJWT(c)
	if err != nil {
		return 0, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, ErrBadToken
	}
	uid, err := strconv.ParseUint(fmt.Sprintf("%.0f", claims["user_id"]), 10, 32)
	if err != nil {
		return 0, ErrNoUserID
	}
	return uint(uid), nil
}
