package frameworks

import (
	"github.com/gin-gonic/gin"

	"vendorsec-backend/internal/shared/server/respond"
)

// RegisterRoutes attaches the catalog endpoints.
func RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/frameworks", func(c *gin.Context) {
		respond.OK(c, gin.H{"frameworks": All()})
	})
	rg.GET("/frameworks/:id/controls", func(c *gin.Context) {
		controls, err := Controls(c.Param("id"))
		if err != nil {
			respond.FromError(c, err)
			return
		}
		id, _ := Normalize(c.Param("id"))
		respond.OK(c, gin.H{"framework": id, "controls": controls})
	})
}
