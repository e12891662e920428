package utils

import (
	"context"

	"github.com/mmdatafocus/exchange_backend/appctx"
)

var (
	ContextKeyToken         = appctx.ContextKeyToken
	ContextKeyUsername      = appctx.ContextKeyUsername
	ContextKeyUserId        = appctx.ContextKeyUserId
	ContextKeyRole          = appctx.ContextKeyRole
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyConfigId      = appctx.ContextKeyConfigId
	ContextKeyIsAdmin       = appctx.ContextKeyIsAdmin
)

func GetTokenFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyToken)
}

func GetUsernameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyUsername)
}

func GetUserIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, ContextKeyUserId)
}

func GetRoleFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyRole)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func GetIsAdminFromContext(ctx context.Context) (bool, bool) {
	return appctx.GetBool(ctx, ContextKeyIsAdmin)
}

// SetSessionInContext stores everything the session middleware learned from the token.
func SetSessionInContext(ctx context.Context, claims *JwtCustomClaim, token string) context.Context {
	ctx = appctx.Set(ctx, ContextKeyToken, token)
	ctx = appctx.Set(ctx, ContextKeyUserId, claims.ID)
	ctx = appctx.Set(ctx, ContextKeyUsername, claims.Username)
	ctx = appctx.Set(ctx, ContextKeyRole, claims.Role)
	return appctx.Set(ctx, ContextKeyIsAdmin, claims.Role == "A")
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func SetConfigIdInContext(ctx context.Context, configId int) context.Context {
	return appctx.Set(ctx, ContextKeyConfigId, configId)
}
