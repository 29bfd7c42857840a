// Package tools holds the static tool catalogue: each tool's required scopes
// and description, and the scope gate applied before a tool runs.
package tools

import "github.com/jrsteele09/lm-mcp-gateway/scopes"

func read(category string) string  { return scopes.Category(category, scopes.ActionRead) }
func write(category string) string { return scopes.Category(category, scopes.ActionWrite) }
func admin(category string) string { return scopes.Category(category, scopes.ActionAdmin) }

// ScopeRequirements maps tool name to the category scopes it needs on top of
// the baseline tool access scope.
var ScopeRequirements = map[string][]string{
	// Alerts
	"list_alerts":       {read("alerts")},
	"get_alert":         {read("alerts")},
	"acknowledge_alert": {write("alerts")},
	"add_alert_note":    {write("alerts")},
	"escalate_alert":    {write("alerts")},

	// Alert rules
	"list_alert_rules":  {read("alertrules")},
	"get_alert_rule":    {read("alertrules")},
	"create_alert_rule": {write("alertrules")},
	"update_alert_rule": {write("alertrules")},
	"delete_alert_rule": {admin("alertrules")},

	// Collectors
	"list_collectors":       {read("collectors")},
	"get_collector":         {read("collectors")},
	"list_collector_groups": {read("collectors")},

	// Dashboards
	"list_dashboards":               {read("dashboards")},
	"get_dashboard":                 {read("dashboards")},
	"list_widgets":                  {read("dashboards")},
	"create_dashboard":              {write("dashboards")},
	"update_dashboard":              {write("dashboards")},
	"delete_dashboard":              {admin("dashboards")},
	"generate_dashboard_for_device": {read("devices"), write("dashboards")},

	// Devices
	"list_devices":            {read("devices")},
	"get_device":              {read("devices")},
	"list_device_groups":      {read("devices")},
	"get_device_datasources":  {read("devices")},
	"get_device_data":         {read("devices")},
	"create_device":           {write("devices")},
	"update_device":           {write("devices")},
	"create_device_group":     {write("devices")},
	"delete_device":           {admin("devices")},
	"delete_device_group":     {admin("devices")},
	"get_device_alert_status": {read("devices"), read("alerts")},

	// Escalation chains
	"list_escalation_chains":  {read("escalations")},
	"get_escalation_chain":    {read("escalations")},
	"create_escalation_chain": {write("escalations")},

	// Integrations
	"list_integrations": {read("integrations")},
	"get_integration":   {read("integrations")},

	// Logs
	"search_logs": {read("logs")},

	// Ops notes
	"list_ops_notes":  {read("ops")},
	"create_ops_note": {write("ops")},
	"delete_ops_note": {admin("ops")},

	// Reports
	"list_reports": {read("reports")},
	"get_report":   {read("reports")},
	"run_report":   {write("reports")},

	// Scheduled downtime
	"list_sdts":  {read("sdts")},
	"create_sdt": {write("sdts")},
	"delete_sdt": {write("sdts")},

	// Settings
	"get_portal_info": {read("settings")},
	"list_properties": {read("settings")},
	"update_property": {write("settings")},

	// Users
	"list_users":  {read("users")},
	"get_user":    {read("users")},
	"list_roles":  {read("users")},
	"create_user": {admin("users")},
	"update_user": {admin("users")},
	"delete_user": {admin("users")},

	// Websites
	"list_websites":            {read("websites")},
	"get_website":              {read("websites")},
	"list_website_checkpoints": {read("websites")},
	"create_website":           {write("websites")},
	"update_website":           {write("websites")},
	"delete_website":           {admin("websites")},
}

// NewScopeManager builds a scopes.Manager over ScopeRequirements.
func NewScopeManager() *scopes.Manager {
	return scopes.NewManager(ScopeRequirements)
}
