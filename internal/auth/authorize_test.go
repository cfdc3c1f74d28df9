package auth

import "testing"

func principalFor(id string, superuser bool) *Principal {
	return &Principal{User: User{ID: id, Active: true, Superuser: superuser}}
}

func TestAuthorizeOwnership(t *testing.T) {
	owner := principalFor("user-a", false)
	stranger := principalFor("user-b", false)
	root := principalFor("user-root", true)
	item := &ResourceRef{ID: "item-1", OwnerID: "user-a"}

	cases := []struct {
		name      string
		principal *Principal
		action    Action
		resource  *ResourceRef
		want      Decision
	}{
		{"owner reads own", owner, ActionRead, item, Allowed},
		{"owner updates own", owner, ActionUpdate, item, Allowed},
		{"owner deletes own", owner, ActionDelete, item, Allowed},
		{"stranger reads", stranger, ActionRead, item, DeniedForbidden},
		{"stranger updates", stranger, ActionUpdate, item, DeniedForbidden},
		{"stranger deletes", stranger, ActionDelete, item, DeniedForbidden},
		{"superuser reads any", root, ActionRead, item, Allowed},
		{"superuser deletes any", root, ActionDelete, item, Allowed},
		{"anonymous", nil, ActionUpdate, item, Unauthenticated},
		{"missing resource", owner, ActionRead, nil, DeniedNotFound},
		{"anonymous missing resource", nil, ActionRead, nil, Unauthenticated},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Authorize(tc.principal, tc.action, tc.resource); got != tc.want {
				t.Fatalf("Authorize = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAuthorizeCreate(t *testing.T) {
	if got := AuthorizeCreate(principalFor("user-a", false)); got != Allowed {
		t.Fatalf("authenticated create = %v, want Allowed", got)
	}
	if got := AuthorizeCreate(nil); got != Unauthenticated {
		t.Fatalf("anonymous create = %v, want Unauthenticated", got)
	}
}

func TestAuthorizeSelfDelete(t *testing.T) {
	if got := AuthorizeSelfDelete(principalFor("user-a", false)); got != Allowed {
		t.Fatalf("regular self-delete = %v, want Allowed", got)
	}
	// Superusers cannot remove their own account through the self-service path.
	if got := AuthorizeSelfDelete(principalFor("user-root", true)); got != DeniedForbidden {
		t.Fatalf("superuser self-delete = %v, want DeniedForbidden", got)
	}
	if got := AuthorizeSelfDelete(nil); got != Unauthenticated {
		t.Fatalf("anonymous self-delete = %v, want Unauthenticated", got)
	}
}

func TestListScope(t *testing.T) {
	if owner, ok := ListScope(principalFor("user-a", false)); !ok || owner != "user-a" {
		t.Fatalf("regular scope = (%q,%v), want (user-a,true)", owner, ok)
	}
	if owner, ok := ListScope(principalFor("user-root", true)); !ok || owner != "" {
		t.Fatalf("superuser scope = (%q,%v), want (\"\",true)", owner, ok)
	}
	if _, ok := ListScope(nil); ok {
		t.Fatal("anonymous scope should not be ok")
	}
}

func TestDecisionErr(t *testing.T) {
	cases := map[Decision]error{
		Allowed:         nil,
		DeniedForbidden: ErrForbidden,
		DeniedNotFound:  ErrNotFound,
		Unauthenticated: ErrUnauthenticated,
	}
	for decision, want := range cases {
		if got := decision.Err(); got != want {
			t.Fatalf("Decision(%d).Err() = %v, want %v", decision, got, want)
		}
	}
}
