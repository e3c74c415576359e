package domain

// Principal — аутентифицированный субъект запроса. Выдача и проверка токенов
// происходят выше по стеку; движок доверяет ID для проверок владения.
type Principal struct {
	ID    string
	Email string
	Role  string
}

// RoleAdmin открывает административные переходы статусов.
const RoleAdmin = "admin"

// IsAdmin сообщает, имеет ли принципал административную роль.
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}
