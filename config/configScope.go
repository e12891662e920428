package config

import (
	"context"
	"strings"

	"github.com/mmdatafocus/exchange_backend/appctx"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConfigScopePlugin keeps member-facing requests inside one exchange config by
// scoping queries/updates/deletes to the request's config_id when the model has a config_id column.
//
// NOTE:
// - This does NOT apply to Raw SQL queries. Those must include config_id manually.
// - Admin/internal bypass is explicit via context flags.
type ConfigScopePlugin struct{}

func NewConfigScopePlugin() *ConfigScopePlugin { return &ConfigScopePlugin{} }

func (p *ConfigScopePlugin) Name() string { return "config_scope" }

func (p *ConfigScopePlugin) Initialize(db *gorm.DB) error {
	if err := db.Callback().Query().Before("gorm:query").Register("config_scope:query", configScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Row().Before("gorm:row").Register("config_scope:row", configScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Update().Before("gorm:update").Register("config_scope:update", configScopeCallback); err != nil {
		return err
	}
	if err := db.Callback().Delete().Before("gorm:delete").Register("config_scope:delete", configScopeCallback); err != nil {
		return err
	}
	return nil
}

func configScopeCallback(db *gorm.DB) {
	if db == nil || db.Statement == nil {
		return
	}
	ctx := db.Statement.Context
	if ctx == nil {
		return
	}
	if shouldBypassConfigScope(ctx) {
		return
	}
	configID, ok := configIdFromContext(ctx)
	if !ok {
		return
	}

	if db.Statement.Schema == nil {
		return
	}
	hasConfigID := false
	for _, f := range db.Statement.Schema.Fields {
		if strings.EqualFold(f.DBName, "config_id") {
			hasConfigID = true
			break
		}
	}
	if !hasConfigID {
		return
	}

	// Don't duplicate an explicit scope filter.
	if whereHasConfigID(db.Statement.Clauses["WHERE"]) {
		return
	}

	db.Statement.AddClause(clause.Where{
		Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: db.Statement.Table, Name: "config_id"},
				Value:  configID,
			},
		},
	})
}

func configIdFromContext(ctx context.Context) (int, bool) {
	if v, ok := appctx.GetInt(ctx, appctx.ContextKeyConfigId); ok && v > 0 {
		return v, true
	}
	return 0, false
}

func shouldBypassConfigScope(ctx context.Context) bool {
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeySkipConfigScope); ok && v {
		return true
	}
	if v, ok := appctx.GetBool(ctx, appctx.ContextKeyIsAdmin); ok && v {
		return true
	}
	return false
}

func whereHasConfigID(c clause.Clause) bool {
	if c.Expression == nil {
		return false
	}
	w, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	for _, e := range w.Exprs {
		if exprHasConfigID(e) {
			return true
		}
	}
	return false
}

func exprHasConfigID(e clause.Expression) bool {
	switch v := e.(type) {
	case clause.Eq:
		return colIsConfigID(v.Column)
	case clause.Neq:
		return colIsConfigID(v.Column)
	case clause.IN:
		return colIsConfigID(v.Column)
	case clause.AndConditions:
		for _, x := range v.Exprs {
			if exprHasConfigID(x) {
				return true
			}
		}
		return false
	case clause.OrConditions:
		for _, x := range v.Exprs {
			if exprHasConfigID(x) {
				return true
			}
		}
		return false
	case clause.Expr:
		// Best-effort for raw expressions.
		return strings.Contains(strings.ToLower(v.SQL), "config_id")
	default:
		return false
	}
}

func colIsConfigID(col any) bool {
	switch c := col.(type) {
	case string:
		return strings.EqualFold(c, "config_id")
	case clause.Column:
		return strings.EqualFold(c.Name, "config_id")
	default:
		return false
	}
}
