package domain

import "testing"

func TestUser_Validate(t *testing.T) {
	u := &User{Email: "a@example.com", Name: "A"}
	if err := u.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if u.Status != UserStatusActive {
		t.Errorf("Status = %q, want %q", u.Status, UserStatusActive)
	}
	if err := (&User{Name: "A"}).Validate(); err == nil {
		t.Error("missing email should fail")
	}
	if err := (&User{Email: "a@example.com"}).Validate(); err == nil {
		t.Error("missing name should fail")
	}
}

func TestUser_ToPublic(t *testing.T) {
	u := &User{ID: "u1", Email: "a@example.com", Name: "A", Phone: "+15551234567", PhoneVerified: true}
	p := u.ToPublic()
	if p.ID != "u1" || p.Email != u.Email || p.Phone != u.Phone || !p.PhoneVerified {
		t.Errorf("ToPublic = %+v", p)
	}
}
