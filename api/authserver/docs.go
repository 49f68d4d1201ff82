// Package authserver holds the Swagger document served at /swagger/.
// Regenerate with: swag init -g internal/auth/http/router.go -o api/authserver --outputTypes go
package authserver

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/fapiauth"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/par": {
            "post": {
                "description": "Stores an authorization request for the authenticated client and returns a single-use request_uri valid for 60 seconds.",
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["OAuth2"],
                "summary": "Pushed Authorization Request",
                "parameters": [
                    {"type": "string", "description": "Must be code", "name": "response_type", "in": "formData", "required": true},
                    {"type": "string", "description": "Registered redirect URI", "name": "redirect_uri", "in": "formData", "required": true},
                    {"type": "string", "description": "Space-delimited scopes", "name": "scope", "in": "formData", "required": true},
                    {"type": "string", "description": "Opaque client state", "name": "state", "in": "formData"},
                    {"type": "string", "description": "OpenID nonce", "name": "nonce", "in": "formData"},
                    {"type": "string", "description": "PKCE S256 challenge", "name": "code_challenge", "in": "formData", "required": true},
                    {"type": "string", "description": "Must be S256", "name": "code_challenge_method", "in": "formData", "required": true},
                    {"type": "string", "description": "private_key_jwt assertion", "name": "client_assertion", "in": "formData"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/authsdk.PARResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/authorize": {
            "get": {
                "description": "Issues an authorization code for a pushed request (request_uri) or an inline request. The code, state and iss are returned on the redirect URI.",
                "produces": ["application/json"],
                "tags": ["OAuth2"],
                "summary": "Authorization Endpoint",
                "parameters": [
                    {"type": "string", "description": "Client identifier", "name": "client_id", "in": "query", "required": true},
                    {"type": "string", "description": "request_uri returned by /par", "name": "request_uri", "in": "query"},
                    {"type": "string", "description": "Overrides the pushed state", "name": "state", "in": "query"}
                ],
                "responses": {
                    "302": {"description": "Redirect to the client", "headers": {"Location": {"type": "string"}}},
                    "400": {"description": "Client or redirect URI could not be established", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/token": {
            "post": {
                "description": "Exchanges an authorization code or a refresh token for tokens. Send a DPoP header to receive DPoP-bound tokens.",
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["OAuth2"],
                "summary": "OAuth2 Token Endpoint",
                "parameters": [
                    {"enum": ["authorization_code", "refresh_token"], "type": "string", "description": "Grant type", "name": "grant_type", "in": "formData", "required": true},
                    {"type": "string", "description": "Authorization code", "name": "code", "in": "formData"},
                    {"type": "string", "description": "Redirect URI used at /authorize", "name": "redirect_uri", "in": "formData"},
                    {"type": "string", "description": "PKCE verifier", "name": "code_verifier", "in": "formData"},
                    {"type": "string", "description": "Refresh token", "name": "refresh_token", "in": "formData"},
                    {"type": "string", "description": "Narrowed scope", "name": "scope", "in": "formData"},
                    {"type": "string", "description": "DPoP proof", "name": "DPoP", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.TokenResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "503": {"description": "Signing keys unavailable", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/introspect": {
            "post": {
                "description": "Reports whether an access token is active.",
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/json"],
                "tags": ["OAuth2"],
                "summary": "Token Introspection",
                "parameters": [
                    {"type": "string", "description": "Access token to introspect", "name": "token", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.IntrospectionResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/userinfo": {
            "get": {
                "security": [{"BearerAuth": []}],
                "description": "Returns the subject of the access token, plus profile claims with the profile scope.",
                "produces": ["application/json"],
                "tags": ["OpenID"],
                "summary": "OpenID UserInfo",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.UserInfoResponse"}},
                    "401": {"description": "Missing or invalid access token or DPoP proof", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}},
                    "403": {"description": "Token lacks openid or profile scope", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/.well-known/jwks.json": {
            "get": {
                "description": "Returns the JSON Web Key Set used to verify access and ID tokens.",
                "produces": ["application/json"],
                "tags": ["well-known"],
                "summary": "Get JWKS",
                "responses": {
                    "200": {"description": "The JSON Web Key Set", "headers": {"Cache-Control": {"type": "string"}}},
                    "503": {"description": "Signing keys not initialized", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/.well-known/openid-configuration": {
            "get": {
                "produces": ["application/json"],
                "tags": ["well-known"],
                "summary": "OpenID Provider Configuration",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/.well-known/fapi-configuration": {
            "get": {
                "produces": ["application/json"],
                "tags": ["well-known"],
                "summary": "FAPI Configuration",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/keys/info": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Keys"],
                "summary": "Signing key status",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Operator token required", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/keys/rotate": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["Keys"],
                "summary": "Rotate signing key",
                "responses": {
                    "200": {"description": "OK"},
                    "401": {"description": "Operator token required", "schema": {"$ref": "#/definitions/authsdk.ErrorResponse"}}
                }
            }
        },
        "/livez": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness Probe",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}}
            }
        },
        "/readyz": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Readiness Probe",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}},
                    "503": {"description": "One or more checks failed", "schema": {"$ref": "#/definitions/authsdk.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "authsdk.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid_grant"},
                "error_description": {"type": "string", "example": "invalid authorization grant"},
                "timestamp": {"type": "string", "example": "2025-01-01T12:00:00Z"}
            }
        },
        "authsdk.PARResponse": {
            "type": "object",
            "properties": {
                "request_uri": {"type": "string"},
                "expires_in": {"type": "integer", "example": 60}
            }
        },
        "authsdk.TokenResponse": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string", "example": "Bearer"},
                "expires_in": {"type": "integer", "example": 900},
                "refresh_token": {"type": "string"},
                "id_token": {"type": "string"},
                "scope": {"type": "string", "example": "openid accounts"}
            }
        },
        "authsdk.IntrospectionResponse": {
            "type": "object",
            "properties": {
                "active": {"type": "boolean"},
                "scope": {"type": "string"},
                "client_id": {"type": "string"},
                "token_type": {"type": "string"},
                "exp": {"type": "integer"},
                "iat": {"type": "integer"},
                "sub": {"type": "string"},
                "aud": {"type": "array", "items": {"type": "string"}},
                "iss": {"type": "string"},
                "jti": {"type": "string"}
            }
        },
        "authsdk.UserInfoResponse": {
            "type": "object",
            "properties": {
                "sub": {"type": "string", "example": "user_42"},
                "preferred_username": {"type": "string"},
                "name": {"type": "string"}
            }
        },
        "authsdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"},
                "uptime": {"type": "string", "example": "1h23m45s"},
                "version": {"type": "string", "example": "1.0.0"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Access token as \"Bearer {token}\" or \"DPoP {token}\", or the operator token for /keys.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "FAPI Authorization Server API",
	Description:      "FAPI 2.0 authorization server: pushed authorization requests, PKCE, sender-constrained tokens with DPoP,\nand client authentication by mutual TLS or private_key_jwt.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
