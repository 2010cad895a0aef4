package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/garnizeh/interviewer/api"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository/mock"
)

func addOperator(t *testing.T, store *mock.Store, email, password string) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	id, err := store.CreateOperator(context.Background(), &models.Operator{Name: "Ops", Email: email, PasswordHash: string(hash)})
	if err != nil {
		t.Fatalf("create operator: %v", err)
	}
	return id
}

func TestAuthHandlers(t *testing.T) {
	secret := "testsecret"
	tokenDur := 1 * time.Hour

	tests := []struct {
		name       string
		path       string
		body       any
		prepare    func(t *testing.T, s *mock.Store)
		wantStatus int
	}{
		{
			name:       "Signin_InvalidRequest",
			path:       "/signin",
			body:       "not a json",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signin_MissingFields_Email",
			path:       "/signin",
			body:       map[string]string{"password": "nop"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signin_MissingFields_Password",
			path:       "/signin",
			body:       map[string]string{"email": "missing@example.com"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Signin_MissingUser",
			path:       "/signin",
			body:       map[string]string{"email": "missing@example.com", "password": "nop"},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Signin_WrongPassword",
			path: "/signin",
			body: map[string]string{"email": "c@example.com", "password": "wrongpw"},
			prepare: func(t *testing.T, s *mock.Store) {
				addOperator(t, s, "c@example.com", "rightpw")
			},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "Signin_Success",
			path: "/signin",
			body: map[string]string{"email": "bob@example.com", "password": "hunter2"},
			prepare: func(t *testing.T, s *mock.Store) {
				addOperator(t, s, "bob@example.com", "hunter2")
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "Signout_OK",
			path:       "/signout",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := mock.NewStore()
			if tt.prepare != nil {
				tt.prepare(t, store)
			}
			handler := api.NewAuthHandler(store, secret, tokenDur)

			var bodyReader io.Reader
			if tt.body != nil {
				b, _ := json.Marshal(tt.body)
				bodyReader = bytes.NewReader(b)
			}
			req := httptest.NewRequest(http.MethodPost, tt.path, bodyReader)
			w := httptest.NewRecorder()

			switch tt.path {
			case "/signin":
				handler.Signin(w, req)
			case "/signout":
				handler.Signout(w, req)
			default:
				t.Fatalf("unknown path %s", tt.path)
			}

			res := w.Result()
			defer res.Body.Close()
			data, _ := io.ReadAll(res.Body)
			if res.StatusCode != tt.wantStatus {
				t.Fatalf("%s: expected status %d got %d body=%s", tt.name, tt.wantStatus, res.StatusCode, string(data))
			}

			if tt.wantStatus != http.StatusOK || tt.path != "/signin" {
				return
			}
			var ar struct {
				Token string `json:"token"`
			}
			if err := json.Unmarshal(data, &ar); err != nil || ar.Token == "" {
				t.Fatalf("missing token in %s", string(data))
			}
			tok, err := jwt.Parse(ar.Token, func(token *jwt.Token) (any, error) { return []byte(secret), nil })
			if err != nil {
				t.Fatalf("parse token: %v", err)
			}
			claims, ok := tok.Claims.(jwt.MapClaims)
			if !ok {
				t.Fatalf("unexpected claims type %T", tok.Claims)
			}
			if claims["email"] != "bob@example.com" {
				t.Fatalf("unexpected email claim %v", claims["email"])
			}
			if _, ok := claims["operator_id"].(float64); !ok {
				t.Fatalf("missing operator_id claim")
			}
			if expF, ok := claims["exp"].(float64); !ok || int64(expF) < time.Now().Unix() {
				t.Fatalf("invalid exp claim")
			}
		})
	}
}
