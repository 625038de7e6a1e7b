package auth

import (
	"errors"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"github.com/tiendamx/shop-backend/internal/models"
)

type TokenService struct {
	DB            *gorm.DB
	JWTSecret     []byte
	RefreshSecret []byte
}

// CheckCookie validates the access cookie, rotating through the refresh
// cookie when the access token has expired. It returns a fresh token pair
// when rotation happened (refresh empty otherwise) plus the actor's claims.
func (t *TokenService) CheckCookie(c echo.Context) (access, refresh string, claims jwt.MapClaims, err error) {
	asCookie, cerr := c.Cookie("accessToken")
	if cerr == nil && asCookie.Value != "" {
		token, perr := jwt.Parse(asCookie.Value, func(j *jwt.Token) (interface{}, error) {
			if _, ok := j.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("unexpected signing method")
			}
			return t.JWTSecret, nil
		})
		if perr == nil && token.Valid {
			mc, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				return "", "", nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
			}
			return asCookie.Value, "", mc, nil
		}
		if !errors.Is(perr, jwt.ErrTokenExpired) {
			return "", "", nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
		}
	}

	rfCookie, cerr := c.Cookie("refreshToken")
	if cerr != nil {
		return "", "", nil, echo.NewHTTPError(http.StatusUnauthorized, "missing auth cookie")
	}
	return t.RotateToken(rfCookie.Value)
}

// RotateToken exchanges a valid refresh token for a new pair, revoking the
// old one so every refresh token is single-use.
func (t *TokenService) RotateToken(raw string) (access, refresh string, claims jwt.MapClaims, err error) {
	claims, err = ValidateRefresh(raw, t.RefreshSecret, t.DB)
	if err != nil {
		return "", "", nil, echo.NewHTTPError(http.StatusUnauthorized, "invalid refresh token")
	}

	userID := uint(claims["sub"].(float64))
	role, _ := claims["role"].(string)

	access, err = SignAccessToken(userID, role, t.JWTSecret)
	if err != nil {
		return "", "", nil, err
	}

	refresh, jti, err := SignRefreshToken(userID, role, t.RefreshSecret)
	if err != nil {
		return "", "", nil, err
	}

	if err := t.DB.Model(&models.RefreshToken{}).
		Where("token = ?", Sha256Hex(raw)).
		Update("revoked", true).Error; err != nil {
		return "", "", nil, err
	}
	if err := SaveRefreshToken(t.DB, refresh, userID, role, jti); err != nil {
		return "", "", nil, err
	}

	return access, refresh, claims, nil
}

// RequireUser authenticates the request and puts userID/role into the echo
// context. Downstream handlers trust this identity without re-validating.
func (t *TokenService) RequireUser(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		access, refresh, claims, err := t.CheckCookie(c)
		if err != nil {
			return err
		}
		if refresh != "" {
			c.SetCookie(CreateCookie("accessToken", access, "/", time.Now().Add(AccessTokenTTL)))
			c.SetCookie(CreateCookie("refreshToken", refresh, "/", time.Now().Add(RefreshTokenTTL)))
		}
		setUserContext(c, claims)
		return next(c)
	}
}

func (t *TokenService) RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return t.RequireUser(func(c echo.Context) error {
		if Role(c) != "admin" {
			return echo.NewHTTPError(http.StatusForbidden, "not enough rights")
		}
		return next(c)
	})
}

func setUserContext(c echo.Context, claims jwt.MapClaims) {
	if sub, ok := claims["sub"].(float64); ok {
		c.Set("userID", uint(sub))
	}
	if role, ok := claims["role"].(string); ok {
		c.Set("role", role)
	}
}

// UserID returns the authenticated actor set by RequireUser.
func UserID(c echo.Context) uint {
	if v, ok := c.Get("userID").(uint); ok {
		return v
	}
	return 0
}

func Role(c echo.Context) string {
	if v, ok := c.Get("role").(string); ok {
		return v
	}
	return ""
}

func IsAdmin(c echo.Context) bool {
	return Role(c) == "admin"
}
