package rbac

import (
	"errors"
	"testing"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name    string
		role    string
		wantErr bool
	}{
		{name: "Admin проходит", role: RoleAdmin, wantErr: false},
		{name: "Manager отклонён", role: RoleManager, wantErr: true},
		{name: "Employee отклонён", role: RoleEmployee, wantErr: true},
		{name: "пустая роль отклонена", role: "", wantErr: true},
		{name: "регистр имеет значение", role: "admin", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claim := model.Claim{Username: "alice", Role: tt.role}

			got, err := RequireRole(claim, RoleAdmin)
			if tt.wantErr {
				if !errors.Is(err, ErrForbidden) {
					t.Errorf("RequireRole(%q) ошибка = %v, хотели ErrForbidden", tt.role, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("RequireRole(%q) неожиданная ошибка: %v", tt.role, err)
			}
			if got != claim {
				t.Errorf("RequireRole() вернул %+v, хотели %+v без изменений", got, claim)
			}
		})
	}
}

func TestIsValidRole(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{RoleAdmin, true},
		{RoleManager, true},
		{RoleEmployee, true},
		{"admin", false},
		{"", false},
		{"Superuser", false},
	}

	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			if got := IsValidRole(tt.role); got != tt.want {
				t.Errorf("IsValidRole(%q) = %v, хотели %v", tt.role, got, tt.want)
			}
		})
	}
}

func TestRoles(t *testing.T) {
	for _, r := range Roles() {
		if !IsValidRole(r) {
			t.Errorf("Roles() содержит недопустимую роль %q", r)
		}
	}
	if len(Roles()) != 3 {
		t.Errorf("Roles() = %v, хотели 3 роли", Roles())
	}
}
