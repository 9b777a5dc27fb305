package repository

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// dialect-specific SQL over the dynamic_records.fields column. Keys always travel as
// bound parameters, never as SQL text.

const dialectPostgres = "postgres"

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == dialectPostgres
}

func sqlitePath(key string) string {
	return `$."` + key + `"`
}

// jsonTextExpr extracts fields[key] as text
func jsonTextExpr(db *gorm.DB, key string) clause.Expr {
	if isPostgres(db) {
		return clause.Expr{SQL: "(fields ->> ?::text)", Vars: []interface{}{key}}
	}
	return clause.Expr{SQL: "json_extract(fields, ?)", Vars: []interface{}{sqlitePath(key)}}
}

// jsonNumericExpr extracts fields[key] as a number; values that do not parse sort as NULL
func jsonNumericExpr(db *gorm.DB, key string) clause.Expr {
	if isPostgres(db) {
		return clause.Expr{
			SQL:  `(CASE WHEN (fields ->> ?::text) ~ '^-{0,1}[0-9]+(\.[0-9]+){0,1}$' THEN (fields ->> ?::text)::numeric END)`,
			Vars: []interface{}{key, key},
		}
	}
	return clause.Expr{SQL: "CAST(json_extract(fields, ?) AS REAL)", Vars: []interface{}{sqlitePath(key)}}
}

// jsonRemoveExpr yields fields with key removed
func jsonRemoveExpr(db *gorm.DB, key string) clause.Expr {
	if isPostgres(db) {
		return clause.Expr{SQL: "fields - ?::text", Vars: []interface{}{key}}
	}
	return clause.Expr{SQL: "json_remove(fields, ?)", Vars: []interface{}{sqlitePath(key)}}
}

// orderByExpr orders by expr with id as tie-break. It must be the only ORDER BY clause:
// gorm keeps just the last expression when clauses merge.
func orderByExpr(expr clause.Expr, desc bool) clause.OrderBy {
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	return clause.OrderBy{Expression: clause.Expr{
		SQL:                expr.SQL + dir + " NULLS LAST, id ASC",
		Vars:               expr.Vars,
		WithoutParentheses: true,
	}}
}
