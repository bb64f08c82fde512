package utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/mmdatafocus/batchtrace_backend/appctx"
)

func GetManufacturerIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyManufacturerId)
}

func SetManufacturerIdInContext(ctx context.Context, manufacturerId string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyManufacturerId, manufacturerId)
}

func GetSupplierIdFromContext(ctx context.Context) (int, bool) {
	return appctx.GetInt(ctx, appctx.ContextKeySupplierId)
}

func SetSupplierIdInContext(ctx context.Context, supplierId int) context.Context {
	return appctx.Set(ctx, appctx.ContextKeySupplierId, supplierId)
}

func GetUserNameFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyUserName)
}

func SetUserNameInContext(ctx context.Context, name string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyUserName, name)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, appctx.ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, id string) context.Context {
	return appctx.Set(ctx, appctx.ContextKeyCorrelationId, id)
}

// EnsureCorrelationId returns ctx unchanged if it already carries a correlation id,
// otherwise a child context with a fresh uuid.
func EnsureCorrelationId(ctx context.Context) (context.Context, string) {
	if v, ok := GetCorrelationIdFromContext(ctx); ok && v != "" {
		return ctx, v
	}
	id := uuid.NewString()
	return SetCorrelationIdInContext(ctx, id), id
}
