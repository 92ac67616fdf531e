// Package httpapi exposes authcore.Engine over HTTP.
//
// Routes:
//
//	POST  /auth/register          JSON RegisterInput
//	POST  /auth/google/login      JSON {"accessToken"}
//	POST  /auth/login             JSON {"email","password"}
//	GET   /auth/refresh           JSON {"refreshToken"} (POST is accepted too)
//	GET   /auth/me                bearer access token
//	PATCH /auth/me                bearer access token, JSON EditInput
//	POST  /auth/logout            bearer access token, revokes every session
//	POST  /auth/verify            ?email=
//	PATCH /auth/verify            ?email=&token=
//	POST  /auth/forgot-password   ?email=
//	PATCH /auth/forgot-password   JSON {"email","token","password"}
//
// Every response is the envelope {statusCode, success, message, data}.
// The request fingerprint is the User-Agent header.
package httpapi
