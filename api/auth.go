package api

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	accessTokenCookie = "access_token"
	userIDKey         = "userID"
)

type JWT struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// LoadPublicKey 讀取 PEM 格式的 Ed25519 公鑰
func LoadPublicKey(path string) (ed25519.PublicKey, error) {
	const op = "LoadPublicKey"
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to read public key file, err=%w", op, err)
	}
	key, err := jwt.ParseEdPublicKeyFromPEM(data)
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse public key, err=%w", op, err)
	}
	publicKey, ok := key.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("[%s] Public key is not an Ed25519 key", op)
	}
	return publicKey, nil
}

func ParseAndValidateJWT(tokenString string, publicKey ed25519.PublicKey) (*JWT, error) {
	const op = "ParseJWT"
	token, err := jwt.ParseWithClaims(tokenString, &JWT{}, func(token *jwt.Token) (interface{}, error) {
		return publicKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%s: token is invalid", op)
	}
	claims, ok := token.Claims.(*JWT)
	if !ok {
		return nil, fmt.Errorf("%s: token claims are invalid", op)
	}
	return claims, nil
}

// accessToken 依序從 Authorization header 和 cookie 取得 access token
func accessToken(c *gin.Context) (string, bool) {
	if header := c.GetHeader("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if ok && strings.EqualFold(scheme, "Bearer") && token != "" {
			return token, true
		}
	}
	if cookie, err := c.Cookie(accessTokenCookie); err == nil && cookie != "" {
		return cookie, true
	}
	return "", false
}

// authenticate 解析 access token，成功時將使用者 ID 放入 context
// 沒有 token 的請求照常進入下一層，由 requireUser 決定是否拒絕
func (impl *ServerImpl) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := accessToken(c)
		if !ok {
			c.Next()
			return
		}
		token, err := ParseAndValidateJWT(tokenString, impl.publicKey)
		if err == nil {
			var userID uuid.UUID
			userID, err = uuid.Parse(token.Subject)
			if err == nil {
				c.Set(userIDKey, userID)
				c.Next()
				return
			}
		}
		impl.logger.Debug("Fail to parse and validate JWT", slog.Any("error", err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "Invalid access token."})
	}
}

// requireUser 要求請求已登入
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := currentUser(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{Message: "Authentication required."})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (uuid.UUID, bool) {
	value, ok := c.Get(userIDKey)
	if !ok {
		return uuid.Nil, false
	}
	userID, ok := value.(uuid.UUID)
	return userID, ok
}

func viewer(c *gin.Context) *uuid.UUID {
	if userID, ok := currentUser(c); ok {
		return &userID
	}
	return nil
}

var errMissingUser = errors.New("missing user in context")

func mustUser(c *gin.Context) uuid.UUID {
	userID, ok := currentUser(c)
	if !ok {
		// requireUser 已經保證有使用者
		panic(errMissingUser)
	}
	return userID
}
