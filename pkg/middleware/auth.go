package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/platinummonkey/subscriptions/pkg/contextkeys"
	"github.com/platinummonkey/subscriptions/pkg/httputil"
	"github.com/platinummonkey/subscriptions/pkg/observability"
)

// Staff is the authenticated caller. Only users with IsStaff reach the
// admin site.
type Staff struct {
	UserID      int64
	Username    string
	IsStaff     bool
	IsSuperuser bool
	Permissions []string
}

// HasPermission reports whether the staff member holds perm.
// Superusers hold every permission.
func (s *Staff) HasPermission(perm string) bool {
	if s == nil {
		return false
	}
	if s.IsSuperuser {
		return true
	}
	for _, p := range s.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// StaffClaims are the JWT claims carried by admin tokens.
// The subject is the user id.
type StaffClaims struct {
	jwt.RegisteredClaims
	Username    string   `json:"username,omitempty"`
	IsStaff     bool     `json:"is_staff"`
	IsSuperuser bool     `json:"is_superuser,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// StaffAuth authenticates admin requests with HS256 bearer tokens
type StaffAuth struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewStaffAuth creates staff authentication middleware.
// An empty issuer disables the issuer check.
func NewStaffAuth(secret []byte, issuer string) *StaffAuth {
	return &StaffAuth{
		secret: secret,
		issuer: issuer,
		now:    time.Now,
	}
}

// IssueToken signs a token for staff that expires after ttl
func (a *StaffAuth) IssueToken(staff Staff, ttl time.Duration) (string, error) {
	now := a.now()
	claims := &StaffClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(staff.UserID, 10),
			Issuer:    a.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username:    staff.Username,
		IsStaff:     staff.IsStaff,
		IsSuperuser: staff.IsSuperuser,
		Permissions: staff.Permissions,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a signed token and returns the staff member it names
func (a *StaffAuth) ParseToken(tokenString string) (*Staff, error) {
	claims := &StaffClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	if a.issuer != "" && !claims.VerifyIssuer(a.issuer, true) {
		return nil, errors.New("unexpected token issuer")
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid token subject %q", claims.Subject)
	}

	return &Staff{
		UserID:      userID,
		Username:    claims.Username,
		IsStaff:     claims.IsStaff,
		IsSuperuser: claims.IsSuperuser,
		Permissions: claims.Permissions,
	}, nil
}

// Handler requires a valid bearer token from a staff user
func (a *StaffAuth) Handler(next http.Handler) http.Handler {
	return a.require(true, next)
}

// Authenticate requires a valid bearer token from any user
func (a *StaffAuth) Authenticate(next http.Handler) http.Handler {
	return a.require(false, next)
}

func (a *StaffAuth) require(staffOnly bool, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		staff, err := a.ParseToken(strings.TrimSpace(parts[1]))
		if err != nil {
			observability.FromContext(r.Context()).WithError(err).Debug("Rejected bearer token")
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		if staffOnly && !staff.IsStaff {
			httputil.WriteForbidden(w, "staff access required")
			return
		}

		ctx := contextkeys.WithStaff(r.Context(), staff)
		ctx = observability.WithStaffID(ctx, strconv.FormatInt(staff.UserID, 10))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// StaffFromContext returns the authenticated staff member, or nil
func StaffFromContext(ctx context.Context) *Staff {
	staff, _ := ctx.Value(contextkeys.StaffKey).(*Staff)
	return staff
}

// RequirePermission creates middleware that checks the staff member holds perm
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			staff := StaffFromContext(r.Context())
			if staff == nil {
				httputil.WriteForbidden(w, "authentication required")
				return
			}
			if !staff.HasPermission(perm) {
				httputil.WriteForbidden(w, "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
