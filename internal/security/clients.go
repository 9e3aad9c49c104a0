package security

// In-memory client registry (replace with DB/config later). Every client is
// bound to a single tenant; tokens carry the tenant claim used to scope all
// order and payment queries.
type Client struct {
	ID       string
	Secret   string
	TenantID string
	Perms    []string // e.g. {"orders.read","orders.write"}
	Enabled  bool
}

var Clients = map[string]Client{
	"dashboard-demo": {
		ID: "dashboard-demo", Secret: "dashboard-demo-secret", TenantID: "tenant-demo",
		Perms:   []string{"orders.read", "orders.write", "orders.manage"},
		Enabled: true,
	},
	"kiosk-demo": {
		ID: "kiosk-demo", Secret: "kiosk-demo-secret", TenantID: "tenant-demo",
		Perms:   []string{"orders.read", "orders.write"},
		Enabled: true,
	},
	"svc-analytics": {
		ID: "svc-analytics", Secret: "ana-secret", TenantID: "tenant-demo",
		Perms:   []string{"orders.read"},
		Enabled: true,
	},
}
