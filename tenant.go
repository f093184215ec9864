package routeorm

import (
	"fmt"

	"github.com/spf13/cast"

	"gorm/routeorm/util/str"
)

// resolveTenant extracts the tenant id configured by cfg from rc, falling back
// to the default tenant.
func resolveTenant(cfg *TenantConfig, rc *RoutingContext) string {
	var tenant string
	switch cfg.Resolver {
	case TenantFromParameter:
		if v, ok := rc.LookupParam(cfg.TenantKey); ok && v != nil {
			tenant = cast.ToString(v)
		}
	case TenantFromAttribute:
		if v := rc.Attribute(cfg.TenantKey); v != nil {
			tenant = cast.ToString(v)
		}
	case TenantFromUser:
		if u := rc.UserInfo(); u != nil {
			tenant = fmt.Sprint(u)
		}
	default:
		tenant = rc.Header(cfg.TenantKey)
	}
	if str.IsBlank(tenant) {
		return cfg.DefaultTenant
	}
	return tenant
}

// tenantDataSource maps a tenant to its data source, falling back to the
// default tenant's mapping.
func tenantDataSource(cfg *TenantConfig, tenant string) (string, bool) {
	if ds, ok := cfg.DataSources[tenant]; ok && ds != "" {
		return ds, true
	}
	if ds, ok := cfg.DataSources[cfg.DefaultTenant]; ok && ds != "" {
		return ds, true
	}
	return "", false
}
