package settings

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// ErrNoAllowedOrigins indicates a CORS configuration with no usable origins.
var ErrNoAllowedOrigins = errors.New("settings.cors.no_allowed_origins")

// GameOriginCORS builds the CORS middleware for browser game clients. Origins
// must be explicit; the settings API is never served wide open because every
// request carries a bearer token.
func GameOriginCORS(allowedOrigins []string) (gin.HandlerFunc, error) {
	cleaned := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil, fmt.Errorf("settings.cors: %w", ErrNoAllowedOrigins)
	}
	return cors.New(cors.Config{
		AllowOrigins:  cleaned,
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}), nil
}
