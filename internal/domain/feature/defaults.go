package feature

// DefaultFeatures is the catalog seeded at startup. Seeding never overwrites an
// existing entry, so admin changes survive restarts.
func DefaultFeatures() []Feature {
	return []Feature{
		{Code: "CRM_CORE", Name: "CRM", Description: "Contacts, companies and deal pipeline", Category: CategoryCRM, IsActive: true, IsPublic: true},
		{Code: "INVOICING", Name: "Invoicing", Description: "Quotes, invoices and payment tracking", Category: CategoryFinance, IsActive: true, IsPublic: true},
		{Code: "INVENTORY", Name: "Inventory", Description: "Stock levels, warehouses and transfers", Category: CategoryOperations, IsActive: true, IsPublic: true},
		{Code: "PROJECTS", Name: "Projects", Description: "Projects, tasks and time tracking", Category: CategoryOperations, IsActive: true, IsPublic: true},
		{Code: "AI_INSIGHTS", Name: "AI Insights", Description: "Forecasts and anomaly detection on workspace data", Category: CategoryAI, IsActive: true, IsPublic: true},
		{Code: "TEAM_CHAT", Name: "Team Chat", Description: "Workspace channels and direct messages", Category: CategoryCore, IsActive: true, IsPublic: true},
		{Code: "API_ACCESS", Name: "API Access", Description: "Personal access tokens and webhooks", Category: CategoryIntegration, IsActive: true, IsPublic: true},
		{Code: "AUDIT_LOG", Name: "Audit Log", Description: "Retained history of workspace changes", Category: CategoryCore, IsActive: true, IsPublic: false},
	}
}
