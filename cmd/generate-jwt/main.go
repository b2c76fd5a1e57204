// Command generate-jwt prints a bearer token accepted by the oracle APIs.
// The secret and issuer come from the auth section of the configuration.
package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/castframework/cast1-sub000/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to the yaml configuration")
	subject := flag.String("subject", "registrar", "token subject (calling party)")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	auth := config.AppConfig.Auth
	if auth.JWTSecret == "" {
		log.Fatalf("auth.jwt_secret is empty, token verification is disabled")
	}

	now := time.Now()
	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(*ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    auth.Issuer,
		Subject:   *subject,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(auth.JWTSecret))
	if err != nil {
		log.Fatalf("Error generating token: %v", err)
	}

	fmt.Println("============================================================")
	fmt.Println("JWT Token Generated")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Println(tokenString)
	fmt.Println()
	fmt.Printf("  Subject: %s\n", *subject)
	fmt.Printf("  Issuer:  %s\n", auth.Issuer)
	fmt.Printf("  Expires: %s\n", claims.ExpiresAt.Time)
	fmt.Println()
	fmt.Printf("curl -H 'Authorization: Bearer %s' http://localhost:8080/api/health\n", tokenString)
}
