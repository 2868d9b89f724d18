package option

import (
	"fmt"
	"regexp"
	"strings"

	"gorm.io/gorm"
)

// QueryOption mutates a query built by the generic repository.
type QueryOption interface {
	Apply(db *gorm.DB) *gorm.DB
}

type optionFunc func(db *gorm.DB) *gorm.DB

func (f optionFunc) Apply(db *gorm.DB) *gorm.DB {
	return f(db)
}

type Operator string

const (
	EQ  Operator = "="
	GT  Operator = ">"
	GTE Operator = ">="
	LT  Operator = "<"
	LTE Operator = "<="
)

type Condition struct {
	Field    string
	Operator Operator
	Value    any
}

var fieldPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ApplyOperator adds a comparison on a column. Unknown operators or column names
// outside [a-z0-9_] are ignored.
func ApplyOperator(cond Condition) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(cond.Field)
		if !fieldPattern.MatchString(field) {
			return db
		}
		switch cond.Operator {
		case EQ, GT, GTE, LT, LTE:
			return db.Where(fmt.Sprintf("%s %s ?", field, cond.Operator), cond.Value)
		default:
			return db
		}
	})
}

type QuerySortBy struct {
	Field string
	Desc  bool
	Allow map[string]bool
}

// WithSortBy orders by an allowed field. Without a field the first allowed one
// is used, newest first.
func WithSortBy(sort QuerySortBy) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		field := strings.TrimSpace(sort.Field)
		desc := sort.Desc
		if field == "" {
			for allowed := range sort.Allow {
				if field == "" || allowed < field {
					field = allowed
				}
			}
			desc = true
		}
		if field == "" || !sort.Allow[field] {
			return db
		}
		if desc {
			return db.Order(field + " DESC")
		}
		return db.Order(field + " ASC")
	})
}

func WithLimit(limit int) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return db
		}
		return db.Limit(limit)
	})
}

func WithPreload(associations ...string) QueryOption {
	return optionFunc(func(db *gorm.DB) *gorm.DB {
		for _, assoc := range associations {
			db = db.Preload(assoc)
		}
		return db
	})
}
