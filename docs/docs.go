// Package docs swag 生成的接口文档（swag init -g docs.go -o docs）
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/notification/list": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "拉取通知",
                "parameters": [
                    {"type": "integer", "description": "游标：上一页最后一条 created_at（毫秒）", "name": "before", "in": "query"},
                    {"type": "integer", "description": "条数(默认20,最大100)", "name": "limit", "in": "query"},
                    {"type": "boolean", "description": "只看未读", "name": "unread_only", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {"$ref": "#/definitions/response.Response"},
                                {"type": "object", "properties": {"data": {"type": "array", "items": {"$ref": "#/definitions/service.NotificationDTO"}}}}
                            ]
                        }
                    }
                }
            }
        },
        "/notification/read": {
            "post": {
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["通知"],
                "summary": "标记通知已读",
                "parameters": [
                    {"description": "请求参数", "name": "req", "in": "body", "required": true, "schema": {"$ref": "#/definitions/pulse_sdk.MarkNotificationsReadReq"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/response.Response"}}
                }
            }
        },
        "/presence/{user_id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["在线状态"],
                "summary": "查询在线状态",
                "parameters": [
                    {"type": "integer", "description": "用户ID", "name": "user_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "allOf": [
                                {"$ref": "#/definitions/response.Response"},
                                {"type": "object", "properties": {"data": {"$ref": "#/definitions/pulse_sdk.PresenceDTO"}}}
                            ]
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "pulse_sdk.MarkNotificationsReadReq": {
            "type": "object",
            "required": ["ids"],
            "properties": {"ids": {"type": "array", "items": {"type": "string"}}}
        },
        "pulse_sdk.PresenceDTO": {
            "type": "object",
            "properties": {
                "connections": {"type": "integer"},
                "last_seen": {"type": "string"},
                "status": {"type": "string", "example": "online"},
                "user_id": {"type": "integer"}
            }
        },
        "response.Response": {
            "type": "object",
            "properties": {
                "code": {"type": "integer", "example": 0},
                "data": {"type": "object"},
                "msg": {"type": "string", "example": "success"}
            }
        },
        "service.NotificationDTO": {
            "type": "object",
            "properties": {
                "actor_id": {"type": "integer"},
                "created_at": {"type": "string"},
                "id": {"type": "string"},
                "payload": {"type": "object"},
                "read": {"type": "boolean"},
                "subject_id": {"type": "string"},
                "type": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"},
        "QueryToken": {"type": "apiKey", "name": "token", "in": "query"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:6789",
	BasePath:         "/api/v1",
	Schemes:          []string{"http", "https"},
	Title:            "Pulse SDK API",
	Description:      "实时网关附带的 REST 接口：通知拉取/已读、在线状态查询。实时事件走 /ws。",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
