package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                            "/",
		"/metrics":                    "/metrics",
		"/v1/items/abc":               "/v1/items/:id",
		"/v1/files/abc/download":      "/v1/files/:id/download",
		"/v1/users/abc":               "/v1/users/:id",
		"/v1/users/me":                "/v1/users/me",
		"/v1/users/me/password":       "/v1/users/me/password",
		"/v1/users/signup":            "/v1/users/signup",
		"/v1/files/upload":            "/v1/files/upload",
		"/v1/password-recovery/a@b.c": "/v1/password-recovery/:email",
		"/v1/items?limit=10":          "/v1/items",
		"/admin/users/123":            "/admin/users/:id",
		"/admin/login":                "/admin/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
