package dbctx

import (
	"context"

	"gorm.io/gorm"
)

// Context bundles a request context with an optional GORM transaction.
type Context struct {
	Ctx context.Context
	Tx  *gorm.DB
}

// Resolve returns the transaction when set, otherwise db scoped to the context.
func (c Context) Resolve(db *gorm.DB) *gorm.DB {
	tx := c.Tx
	if tx == nil {
		tx = db
	}
	if c.Ctx != nil {
		return tx.WithContext(c.Ctx)
	}
	return tx
}

// Bg returns a Context with no transaction.
func Bg(ctx context.Context) Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return Context{Ctx: ctx}
}
