package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/veritime/attendance-service/internal/util"
)

type contextKey string

const (
	ContextEmployeeID contextKey = "employeeID"
	ContextDeviceInfo contextKey = "deviceInfo"
)

// EmployeeAuth verifies the bearer token and puts the employee identity on
// the request context.
func EmployeeAuth(manager *util.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := manager.Verify(strings.TrimPrefix(header, "Bearer "))
			if err != nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ContextEmployeeID, claims.EmployeeID)
			ctx = context.WithValue(ctx, ContextDeviceInfo, claims.DeviceInfo)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// EmployeeFromContext returns the authenticated employee ID.
func EmployeeFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(ContextEmployeeID).(uuid.UUID)
	return id, ok
}

// DeviceInfoFromContext returns the device info claim, if present.
func DeviceInfoFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ContextDeviceInfo).(string)
	return v
}
