/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/didip/tollbooth/v7"
	"github.com/didip/tollbooth/v7/limiter"
	"github.com/gin-gonic/gin"

	"github.com/blnkfinance/economy/config"
	"github.com/blnkfinance/economy/internal/apierror"
)

const (
	KeyHeader    = "X-Economy-Key"
	PlayerHeader = "X-Player-ID"
)

// publicPaths skip both the secret key and the rate limit.
var publicPaths = map[string]bool{
	"/":        true,
	"/health":  true,
	"/metrics": true,
}

// RateLimitMiddleware limits each client address, and each player behind it
// when the game client names one, to the configured request rate.
func RateLimitMiddleware(conf *config.Configuration) gin.HandlerFunc {
	rl := conf.RateLimit
	if rl.RequestsPerSecond == nil || rl.Burst == nil {
		return func(c *gin.Context) { c.Next() }
	}

	ttl := time.Hour
	if rl.CleanupIntervalSec != nil {
		ttl = time.Duration(*rl.CleanupIntervalSec) * time.Second
	}
	lmt := tollbooth.NewLimiter(*rl.RequestsPerSecond, &limiter.ExpirableOptions{DefaultExpirationTTL: ttl})
	lmt.SetBurst(*rl.Burst)

	return func(c *gin.Context) {
		if publicPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		keys := []string{c.ClientIP()}
		if player := c.GetHeader(PlayerHeader); player != "" {
			keys = append(keys, player)
		}
		if httpError := tollbooth.LimitByKeys(lmt, keys); httpError != nil {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(httpError.StatusCode, apierror.NewAPIError(apierror.ErrRateLimited, httpError.Message, nil))
			return
		}
		c.Next()
	}
}

// SecretKeyAuthMiddleware requires the configured secret key in the
// X-Economy-Key header when the server runs in secure mode.
func SecretKeyAuthMiddleware(conf *config.Configuration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !conf.Server.Secure || publicPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		secretKey := conf.Server.SecretKey
		if secretKey == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.NewAPIError(apierror.ErrInternalServer, "secret key is not configured", nil))
			return
		}

		clientSecret := c.GetHeader(KeyHeader)
		if clientSecret == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.NewAPIError(apierror.ErrUnauthorized, "authentication required. Use "+KeyHeader+" header", nil))
			return
		}

		if !secureCompare(secretKey, clientSecret) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apierror.NewAPIError(apierror.ErrUnauthorized, "invalid secret key", nil))
			return
		}

		c.Next()
	}
}

func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
