package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"boilerctl/internal/service"
)

func postJSON(r http.Handler, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func TestAuthHandlers_SignUp(t *testing.T) {
	auth := &mockAuth{signUpID: 42}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(r, "/auth/sign-up", `{"username":"operator","password":"hunter2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-up status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.ID != 42 {
		t.Fatalf("sign-up id = %d, want 42", resp.ID)
	}
	if auth.lastSignUpUsername != "operator" || auth.lastSignUpPassword != "hunter2" {
		t.Fatalf("service saw %q/%q", auth.lastSignUpUsername, auth.lastSignUpPassword)
	}

	// missing password fails binding
	w = postJSON(r, "/auth/sign-up", `{"username":"operator"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing password: status = %d, want 400", w.Code)
	}

	// service rejection surfaces as 400
	auth.signUpErr = errors.New("username already taken")
	w = postJSON(r, "/auth/sign-up", `{"username":"operator","password":"hunter2"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("rejected sign-up: status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "already taken") {
		t.Fatalf("rejected sign-up: body = %s", w.Body.String())
	}
}

func TestAuthHandlers_SignIn(t *testing.T) {
	auth := &mockAuth{genTokenToken: "tok123"}
	r := newTestRouter(&service.Service{Authorization: auth})

	w := postJSON(r, "/auth/sign-in", `{"username":"operator","password":"hunter2"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("sign-in status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token != "tok123" {
		t.Fatalf("sign-in token = %q, want tok123", resp.Token)
	}

	// malformed body
	w = postJSON(r, "/auth/sign-in", `{"username":1}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad body: status = %d, want 400", w.Code)
	}

	// wrong credentials collapse to one opaque 401
	auth.genTokenErr = errors.New("user not found")
	w = postJSON(r, "/auth/sign-in", `{"username":"ghost","password":"hunter2"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bad credentials: status = %d, want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), errInvalidCredentials) {
		t.Fatalf("bad credentials: body = %s", w.Body.String())
	}
	if strings.Contains(w.Body.String(), "not found") {
		t.Fatalf("401 body leaks the failure cause: %s", w.Body.String())
	}
}
