package api

// credentialsRequest is the body of POST /auth/register and /auth/login.
type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResponse from POST /auth/login and /auth/register
type AuthResponse struct {
	Token   string  `json:"token"`
	User    APIUser `json:"user"`
	Message string  `json:"message,omitempty"`
}

// APIUser represents a user from the API.
type APIUser struct {
	ID    flexibleID `json:"id"`
	Email string     `json:"email"`
}

// SubscriptionsResponse from GET /subscriptions
type SubscriptionsResponse struct {
	Subscriptions []string `json:"subscriptions"`
}

// subscriptionRequest is the body of POST /subscriptions.
type subscriptionRequest struct {
	Ticker string `json:"ticker"`
}

// errorResponse is the body of a failed request.
type errorResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}
