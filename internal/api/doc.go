// Package api provides the REST session client of the price feed server.
//
// Endpoints (relative to the base URL, default http://localhost:5000/api):
//   - POST /auth/register, POST /auth/login
//   - GET /subscriptions, POST /subscriptions, DELETE /subscriptions/{ticker}
//
// Every request after login carries "Authorization: Bearer <token>".
package api
