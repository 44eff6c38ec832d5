// Пакет rbac — роли пользователей и проверка ролевого доступа.
// Единственная проверка в системе — точное совпадение с требуемой ролью:
// операции либо открыты любому аутентифицированному пользователю,
// либо требуют роль Admin. Иерархии ролей нет.
package rbac

import (
	"errors"
	"fmt"

	"github.com/arturkryukov/container-manager/internal/domain/model"
)

// Роли пользователей.
const (
	RoleAdmin    = "Admin"
	RoleManager  = "Manager"
	RoleEmployee = "Employee"
)

// ErrForbidden — роль вызывающего не совпадает с требуемой.
var ErrForbidden = errors.New("недостаточно прав")

var validRoles = map[string]bool{
	RoleAdmin:    true,
	RoleManager:  true,
	RoleEmployee: true,
}

// Roles возвращает список допустимых ролей.
func Roles() []string {
	return []string{RoleAdmin, RoleManager, RoleEmployee}
}

// IsValidRole проверяет, является ли строка допустимой ролью.
func IsValidRole(role string) bool {
	return validRoles[role]
}

// RequireRole проверяет, что claim имеет ровно требуемую роль.
// Возвращает claim без изменений или ошибку, оборачивающую ErrForbidden.
func RequireRole(claim model.Claim, role string) (model.Claim, error) {
	if claim.Role != role {
		return claim, fmt.Errorf("%w: требуется роль %s", ErrForbidden, role)
	}
	return claim, nil
}
