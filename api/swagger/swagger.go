package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Alumni Portal API",
        "description": "Member lifecycle, bookings and paid request workflows for the alumni association",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and session management"},
        {"name": "Onboarding", "description": "Registry-driven member import"},
        {"name": "Members", "description": "Member records, contacts and wallet"},
        {"name": "Events", "description": "Events and seat registration"},
        {"name": "Advising", "description": "Advising slot booking"},
        {"name": "Career", "description": "Career services timeslots"},
        {"name": "Memberships", "description": "Paid membership applications"},
        {"name": "Certificates", "description": "Paid certificate requests"},
        {"name": "Payments", "description": "Gateway callbacks"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Rotate refresh token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/onboarding/import": {
            "post": {
                "tags": ["Onboarding"],
                "summary": "Import a graduate from the academic registry",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ImportRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown registry key"},
                    "409": {"description": "Already imported"},
                    "422": {"description": "No usable qualifications"}
                }
            }
        },
        "/members": {
            "get": {
                "tags": ["Members"],
                "summary": "List members",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/members/{id}": {
            "get": {
                "tags": ["Members"],
                "summary": "Get member",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/members/{id}/approve": {
            "post": {
                "tags": ["Members"],
                "summary": "Approve pending member",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "409": {"description": "Invalid lifecycle transition"}
                }
            }
        },
        "/members/{id}/wallet": {
            "get": {
                "tags": ["Members"],
                "summary": "Read wallet balance",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events": {
            "get": {
                "tags": ["Events"],
                "summary": "List events",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Events"],
                "summary": "Create event",
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/events/{id}/register": {
            "post": {
                "tags": ["Events"],
                "summary": "Register for event",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Ticket issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Full, ended or already registered"}
                }
            },
            "delete": {
                "tags": ["Events"],
                "summary": "Cancel registration",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Seat released"}
                }
            }
        },
        "/events/{id}/availability": {
            "get": {
                "tags": ["Events"],
                "summary": "Read remaining capacity",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/advising/slots/{id}/book": {
            "post": {
                "tags": ["Advising"],
                "summary": "Book advising slot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Ticket issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Full, started or overlapping session"}
                }
            }
        },
        "/career/timeslots/{id}/subscribe": {
            "post": {
                "tags": ["Career"],
                "summary": "Subscribe to career timeslot",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "201": {"description": "Ticket issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Full or already subscribed"}
                }
            }
        },
        "/memberships/applications": {
            "post": {
                "tags": ["Memberships"],
                "summary": "Apply for membership plan",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ApplyRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Gateway charge failed"}
                }
            }
        },
        "/certificates/requests": {
            "post": {
                "tags": ["Certificates"],
                "summary": "Request certificate",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitCertificateRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "502": {"description": "Gateway charge failed"}
                }
            }
        },
        "/certificates/requests/{id}/download": {
            "get": {
                "tags": ["Certificates"],
                "summary": "Get signed download link",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Document not issued yet"}
                }
            }
        },
        "/payments/callback": {
            "post": {
                "tags": ["Payments"],
                "summary": "Gateway settlement callback",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GatewayCallback"}}
                ],
                "responses": {
                    "200": {"description": "Acknowledged"},
                    "404": {"description": "Unknown gateway reference"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["username", "password"]
        },
        "ImportRequest": {
            "type": "object",
            "properties": {
                "registry_key": {"type": "string"},
                "email": {"type": "string", "format": "email"},
                "mobile": {"type": "string"},
                "branch": {"type": "string"}
            },
            "required": ["registry_key", "email"]
        },
        "ApplyRequest": {
            "type": "object",
            "properties": {
                "plan_id": {"type": "string"},
                "idempotency_key": {"type": "string"}
            },
            "required": ["plan_id", "idempotency_key"]
        },
        "SubmitCertificateRequest": {
            "type": "object",
            "properties": {
                "type_id": {"type": "string"},
                "idempotency_key": {"type": "string"},
                "delivery_method": {"type": "string", "enum": ["HOME", "BRANCH"]},
                "delivery_address": {"type": "string"},
                "target_branch": {"type": "string"}
            },
            "required": ["type_id", "idempotency_key", "delivery_method"]
        },
        "GatewayCallback": {
            "type": "object",
            "properties": {
                "gateway_ref": {"type": "string"},
                "status": {"type": "string"}
            },
            "required": ["gateway_ref", "status"]
        },
        "PaymentSplit": {
            "type": "object",
            "properties": {
                "total_amount": {"type": "integer"},
                "wallet_amount": {"type": "integer"},
                "gateway_amount": {"type": "integer"},
                "remaining_amount": {"type": "integer"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
