// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package auth authenticates inbound A2A and operator requests (spec
// section 4.4 security requirements), grounded on
// v2/auth/middleware.go and pkg/auth/jwt.go. Unlike the teacher, which
// validates against a JWKS fetched from an external identity provider,
// agents here share a single pre-distributed HS256 secret, so validation
// needs no network round-trip.
package auth

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Claims is the subset of JWT claims this system cares about.
type Claims struct {
	Subject   string
	AgentType string
	Role      string
}

// HasAnyRole reports whether claims carries one of the given roles.
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, r := range roles {
		if c.Role == r {
			return true
		}
	}
	return false
}

// TokenValidator validates a bearer token and returns its claims.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Claims, error)
}

// JWTValidator validates HS256 tokens signed with a shared secret (spec
// section 4.4: "agents authenticate with a pre-shared bearer token").
type JWTValidator struct {
	secret []byte
	issuer string
}

func NewJWTValidator(secret, issuer string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), issuer: issuer}
}

func (v *JWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	opts := []jwt.ParseOption{
		jwt.WithKey(jwa.HS256, v.secret),
		jwt.WithValidate(true),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	token, err := jwt.Parse([]byte(tokenString), opts...)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims := &Claims{Subject: token.Subject()}
	if at, ok := token.Get("agent_type"); ok {
		if s, ok := at.(string); ok {
			claims.AgentType = s
		}
	}
	if role, ok := token.Get("role"); ok {
		if s, ok := role.(string); ok {
			claims.Role = s
		}
	}
	return claims, nil
}

// IssueToken mints a bearer token for an agent. The CLI exposes no
// token-issuing subcommand; the tests are its only caller.
func (v *JWTValidator) IssueToken(subject, agentType, role string, ttl time.Duration) (string, error) {
	builder := jwt.NewBuilder().
		Subject(subject).
		IssuedAt(time.Now()).
		Expiration(time.Now().Add(ttl)).
		Claim("agent_type", agentType).
		Claim("role", role)
	if v.issuer != "" {
		builder = builder.Issuer(v.issuer)
	}
	token, err := builder.Build()
	if err != nil {
		return "", fmt.Errorf("build token: %w", err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, v.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// SharedKeyOrJWTValidator accepts either the raw shared API key or an HS256
// JWT signed with the shared secret (spec section 6 Auth: "A token is
// accepted if it equals the shared API key OR decodes as a valid HS256 JWT
// signed with the shared secret"). The shared-key comparison is
// constant-time to avoid leaking the key through response-timing.
type SharedKeyOrJWTValidator struct {
	apiKey string
	jwt    *JWTValidator
}

func NewSharedKeyOrJWTValidator(apiKey, jwtSecret, issuer string) *SharedKeyOrJWTValidator {
	return &SharedKeyOrJWTValidator{apiKey: apiKey, jwt: NewJWTValidator(jwtSecret, issuer)}
}

func (v *SharedKeyOrJWTValidator) ValidateToken(ctx context.Context, tokenString string) (*Claims, error) {
	if v.apiKey != "" && subtle.ConstantTimeCompare([]byte(tokenString), []byte(v.apiKey)) == 1 {
		return &Claims{Subject: "shared-api-key", Role: "service"}, nil
	}
	return v.jwt.ValidateToken(ctx, tokenString)
}
