package event

// Category is the canonical event taxonomy. Every historical event-type
// alias emitted by sensor firmware resolves to one of these five
// categories (or CategoryUnknown for strings nobody has seen before).
type Category string

const (
	CategoryFileAccess          Category = "file_access"
	CategoryModuleLoad          Category = "module_load"
	CategoryRansomware          Category = "ransomware"
	CategoryPrivilegeEscalation Category = "privilege_escalation"
	CategoryUserManagement      Category = "user_management"
	CategoryUnknown             Category = "unknown"
)

// Categories lists the five canonical categories in display order.
var Categories = []Category{
	CategoryFileAccess,
	CategoryModuleLoad,
	CategoryRansomware,
	CategoryPrivilegeEscalation,
	CategoryUserManagement,
}

// aliases maps every known event-type string, current and legacy, to its
// canonical category. Both the normalizer metrics and the aggregation
// service consult this table so the alias lists cannot drift apart
// between components.
var aliases = map[string]Category{
	// File access
	"file_access":       CategoryFileAccess,
	"file_access_event": CategoryFileAccess,
	"file_open":         CategoryFileAccess,
	"file":              CategoryFileAccess,

	// Kernel module loads
	"module_load":  CategoryModuleLoad,
	"module":       CategoryModuleLoad,
	"module_event": CategoryModuleLoad,
	"insmod":       CategoryModuleLoad,
	"insmod_event": CategoryModuleLoad,

	// Ransomware indicators
	"ransomware":          CategoryRansomware,
	"ransomware_event":    CategoryRansomware,
	"ransomware_detected": CategoryRansomware,

	// Privilege escalation
	"privilege_escalation": CategoryPrivilegeEscalation,
	"setuid":               CategoryPrivilegeEscalation,
	"setgid":               CategoryPrivilegeEscalation,
	"setuid_event":         CategoryPrivilegeEscalation,
	"setgid_event":         CategoryPrivilegeEscalation,
	"priv_esc":             CategoryPrivilegeEscalation,

	// User management
	"user_management": CategoryUserManagement,
	"useradd":         CategoryUserManagement,
	"userdel":         CategoryUserManagement,
	"usermod":         CategoryUserManagement,
	"useradd_event":   CategoryUserManagement,
	"usermod_event":   CategoryUserManagement,
}

// ResolveCategory maps an event-type string (any known alias) to its
// canonical category. Unrecognized strings resolve to CategoryUnknown.
func ResolveCategory(eventType string) Category {
	if c, ok := aliases[eventType]; ok {
		return c
	}
	return CategoryUnknown
}

// KnownAliases returns all event-type strings that resolve to the given
// category. Used by aggregation queries to group stored event_type values
// without re-stating alias lists in SQL.
func KnownAliases(c Category) []string {
	var out []string
	for alias, cat := range aliases {
		if cat == c {
			out = append(out, alias)
		}
	}
	return out
}
