package api

// LoginRequest представляет запрос на аутентификацию администратора
type LoginRequest struct {
	Username string `json:"username"` // имя администратора
	Password string `json:"password"` // пароль администратора
}

// TokenResponse представляет ответ с токеном доступа
type TokenResponse struct {
	AccessToken string `json:"access_token"` // JWT access token
	ExpiresIn   int64  `json:"expires_in"`   // время жизни access token в секундах
}

// ErrorResponse представляет ответ с ошибкой
type ErrorResponse struct {
	Error   string `json:"error"`             // описание ошибки
	Message string `json:"message,omitempty"` // дополнительное сообщение
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status   string `json:"status"`   // "ok" или "degraded"
	Instance string `json:"instance"` // id локального инстанса
}
