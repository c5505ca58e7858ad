package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"observation/backend/config"
)

var (
	ErrTokenExpired = errors.New("链接已过期")
	ErrTokenInvalid = errors.New("链接无效")
)

// 链接用途
const (
	ScopeCalendar = "calendar" // Subject 为用户 ID
	ScopeExport   = "export"   // Subject 为活动 ID
)

const issuer = "observation"

// Claims 签名链接声明
type Claims struct {
	Scope string `json:"scope"`
	jwtv5.RegisteredClaims
}

// Manager 签名链接管理器
// 日历客户端订阅与导出下载无法携带登录态，以 URL 中的短期令牌授权
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewManager 创建签名链接管理器
func NewManager(cfg *config.LinkConfig) *Manager {
	return &Manager{
		secret: []byte(cfg.Secret),
		ttl:    cfg.TTL,
		now:    time.Now,
	}
}

// Enabled 未配置密钥时不签发也不接受任何令牌
func (m *Manager) Enabled() bool {
	return len(m.secret) > 0
}

// Generate 为 subject 签发指定用途的令牌
func (m *Manager) Generate(scope, subject string) (string, error) {
	if !m.Enabled() {
		return "", ErrTokenInvalid
	}

	now := m.now()
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwtv5.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   subject,
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(m.ttl)),
			Issuer:    issuer,
		},
	}

	token := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Verify 解析令牌并校验用途，返回 subject
func (m *Manager) Verify(tokenString, scope string) (string, error) {
	claims, err := m.ParseToken(tokenString)
	if err != nil {
		return "", err
	}
	if claims.Scope != scope || claims.Subject == "" {
		return "", ErrTokenInvalid
	}
	return claims.Subject, nil
}

// ParseToken 解析并验证 Token
func (m *Manager) ParseToken(tokenString string) (*Claims, error) {
	if !m.Enabled() {
		return nil, ErrTokenInvalid
	}

	token, err := jwtv5.ParseWithClaims(tokenString, &Claims{}, func(t *jwtv5.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtv5.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return m.secret, nil
	}, jwtv5.WithIssuer(issuer), jwtv5.WithTimeFunc(m.now))

	if err != nil {
		if errors.Is(err, jwtv5.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
