package storage

import (
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labforge/equipment-mgmt/internal/pkg/application/accessscope"
)

type ConditionFunc func(*Condition) *Condition

// Condition collects query predicates. All queries against scope-carrying
// tables alias the equipment table as "e" and the alerts table as "a", which
// is what the generated fragments refer to.
type Condition struct {
	ID          string
	EquipmentID string
	AlertID     string
	UnitID      string

	Active   *bool
	Resolved *bool

	Since time.Time

	scope *accessscope.Scope

	sortBy    string
	sortOrder string

	offset *int
	limit  *int
}

func WithID(id string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.ID = id
		return c
	}
}

func WithEquipmentID(equipmentID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.EquipmentID = equipmentID
		return c
	}
}

func WithAlertID(alertID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.AlertID = alertID
		return c
	}
}

func WithUnitID(unitID string) ConditionFunc {
	return func(c *Condition) *Condition {
		c.UnitID = unitID
		return c
	}
}

func WithActive(active bool) ConditionFunc {
	return func(c *Condition) *Condition {
		c.Active = &active
		return c
	}
}

func WithResolved(resolved bool) ConditionFunc {
	return func(c *Condition) *Condition {
		c.Resolved = &resolved
		return c
	}
}

func WithSince(ts time.Time) ConditionFunc {
	return func(c *Condition) *Condition {
		c.Since = ts
		return c
	}
}

// WithScope translates an actor's visibility scope into a query predicate.
// This is the only place where scope semantics meet SQL: unrestricted adds
// nothing, org and unit scopes add an equality filter, and a denied scope
// adds an always-false predicate so that queries return empty results rather
// than errors.
func WithScope(scope accessscope.Scope) ConditionFunc {
	return func(c *Condition) *Condition {
		c.scope = &scope
		return c
	}
}

func WithOffset(offset int) ConditionFunc {
	return func(c *Condition) *Condition {
		c.offset = &offset
		return c
	}
}

func WithLimit(limit int) ConditionFunc {
	return func(c *Condition) *Condition {
		c.limit = &limit
		return c
	}
}

func WithSortBy(sortBy string) ConditionFunc {
	return func(c *Condition) *Condition {
		switch strings.ToLower(sortBy) {
		case "name":
			c.sortBy = "e.name"
		case "equipment_id":
			c.sortBy = "e.equipment_id"
		case "created_on":
			c.sortBy = "a.created_on"
		case "severity":
			c.sortBy = "a.severity"
		}
		return c
	}
}

func WithSortDesc(desc bool) ConditionFunc {
	return func(c *Condition) *Condition {
		if desc {
			c.sortOrder = "DESC"
		} else {
			c.sortOrder = "ASC"
		}
		return c
	}
}

func (c Condition) Where() string {
	where := []string{}

	if c.ID != "" {
		where = append(where, "e.id = @id")
	}

	if c.EquipmentID != "" {
		where = append(where, "e.equipment_id = @equipment_id")
	}

	if c.AlertID != "" {
		where = append(where, "a.alert_id = @alert_id")
	}

	if c.UnitID != "" {
		where = append(where, "e.unit_id = @unit_id")
	}

	if c.Active != nil {
		where = append(where, "e.active = @active")
	}

	if c.Resolved != nil {
		where = append(where, "a.resolved = @resolved")
	}

	if !c.Since.IsZero() {
		where = append(where, "a.created_on >= @since")
	}

	if c.scope != nil {
		switch c.scope.Kind {
		case accessscope.KindUnrestricted:
			// no filter
		case accessscope.KindOrgScoped:
			where = append(where, "e.org_id = @scope_org")
		case accessscope.KindUnitScoped:
			where = append(where, "e.unit_id = @scope_unit")
		default:
			where = append(where, "1 = 0")
		}
	}

	if len(where) == 0 {
		return ""
	}

	return "WHERE " + strings.Join(where, " AND ")
}

func (c Condition) NamedArgs() pgx.NamedArgs {
	args := pgx.NamedArgs{}

	if c.ID != "" {
		args["id"] = c.ID
	}
	if c.EquipmentID != "" {
		args["equipment_id"] = c.EquipmentID
	}
	if c.AlertID != "" {
		args["alert_id"] = c.AlertID
	}
	if c.UnitID != "" {
		args["unit_id"] = c.UnitID
	}
	if c.Active != nil {
		args["active"] = *c.Active
	}
	if c.Resolved != nil {
		args["resolved"] = *c.Resolved
	}
	if !c.Since.IsZero() {
		args["since"] = c.Since.UTC()
	}
	if c.scope != nil {
		switch c.scope.Kind {
		case accessscope.KindOrgScoped:
			args["scope_org"] = c.scope.OrgID
		case accessscope.KindUnitScoped:
			args["scope_unit"] = c.scope.UnitID
		}
	}

	return args
}

func (c Condition) SortBy(def string) string {
	if c.sortBy == "" {
		return def
	}
	return c.sortBy
}

func (c Condition) SortOrder(def string) string {
	if c.sortOrder == "" {
		return def
	}
	return c.sortOrder
}

func (c Condition) Offset() int {
	if c.offset == nil {
		return 0
	}
	return *c.offset
}

func (c Condition) Limit() int {
	if c.limit == nil {
		return 0
	}
	return *c.limit
}

func newCondition(conditions ...ConditionFunc) *Condition {
	condition := &Condition{}
	for _, f := range conditions {
		f(condition)
	}
	return condition
}
