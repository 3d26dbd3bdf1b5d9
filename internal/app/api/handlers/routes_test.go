package handlers

import (
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func TestRegisterLicenseRoutes_RegistersEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/api/v1")
	RegisterLicenseRoutes(g, nil)
	RegisterMigrationRoutes(g, nil)
	RegisterAdminRoutes(g.Group("/admin"), nil, nil, nil)

	routes := r.Routes()
	contains := func(target string) bool {
		for _, rt := range routes {
			if rt.Method+" "+rt.Path == target {
				return true
			}
		}
		return false
	}

	require.True(t, contains("POST /api/v1/licenses"))
	require.True(t, contains("POST /api/v1/licenses/validate"))
	require.True(t, contains("POST /api/v1/licenses/check"))
	require.True(t, contains("POST /api/v1/licenses/deactivate"))
	require.True(t, contains("GET /api/v1/licenses/:id"))
	require.True(t, contains("GET /api/v1/licenses/key/:key"))
	require.True(t, contains("DELETE /api/v1/licenses/:id"))
	require.True(t, contains("POST /api/v1/licenses/:id/revoke"))
	require.True(t, contains("POST /api/v1/migrate"))
	require.True(t, contains("GET /api/v1/admin/email_queue/stats"))
	require.True(t, contains("POST /api/v1/admin/webhook_events/:id/retry"))
}
