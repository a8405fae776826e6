package auth

import (
	"fmt"
	"strconv"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// FieldTable resolves one logical profile field from a stored document.
// Profile documents have accumulated several historical schemas, so each logical
// field is a priority-ordered list of JMESPath expressions; the first expression
// yielding a present, non-blank scalar wins.
type FieldTable struct {
	Name  string
	exprs []string
}

// NewFieldTable compiles every expression up front and panics on an invalid one.
// Tables are package-level values built at init.
func NewFieldTable(name string, exprs ...string) FieldTable {
	for _, e := range exprs {
		if _, err := jmespath.Compile(e); err != nil {
			panic(fmt.Sprintf("field table %s: invalid expression %q: %v", name, e, err))
		}
	}
	return FieldTable{Name: name, exprs: append([]string(nil), exprs...)}
}

// Keys returns the expressions in priority order.
func (t FieldTable) Keys() []string {
	return append([]string(nil), t.exprs...)
}

// Lookup returns the first non-blank value and the expression that produced it.
func (t FieldTable) Lookup(doc map[string]any) (value, key string, ok bool) {
	if len(doc) == 0 {
		return "", "", false
	}
	for _, expr := range t.exprs {
		raw, err := jmespath.Search(expr, doc)
		if err != nil || raw == nil {
			continue
		}
		if s, isScalar := scalarString(raw); isScalar && strings.TrimSpace(s) != "" {
			return s, expr, true
		}
	}
	return "", "", false
}

// Value is Lookup without the bookkeeping.
func (t FieldTable) Value(doc map[string]any) string {
	v, _, _ := t.Lookup(doc)
	return v
}

func scalarString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// Field tables in lookup priority order.
var (
	EmailField            = NewFieldTable("email", "email", "emailAddress")
	RoleField             = NewFieldTable("role", "role", "resourceRoleType", "userRole", "accountType")
	DisplayNameField      = NewFieldTable("display_name", "clientName", "name", "displayName")
	AvatarField           = NewFieldTable("avatar", "imageUrl", "imageurl", "profileImageURL", "profileImage", "photoURL")
	FallbackPasswordField = NewFieldTable("fallback_password", "devPassword", "password")
	PhoneField            = NewFieldTable("phone", "phone", "phoneNumber", "contactNumber")
)

// Write-side synonyms: a profile edit is duplicated under each key so every
// historical reader sees it.
var (
	DisplayNameWriteKeys = []string{"clientName", "name", "displayName"}
	EmailWriteKeys       = []string{"email"}
	PhoneWriteKeys       = []string{"phone", "phoneNumber"}
	RoleWriteKeys        = []string{"role"}
)
