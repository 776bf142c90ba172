package api

import (
	"github.com/gin-gonic/gin"

	"github.com/bgaipov/paycore"
	"github.com/bgaipov/paycore/api/middleware"
	"github.com/bgaipov/paycore/config"
)

type Api struct {
	paycore *paycore.Paycore
	router  *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/payments", a.CreatePayment)

	router.POST("/webhooks/provider", a.ProviderWebhook)

	router.POST("/reconciliation/run", a.RunReconciliation)
	router.GET("/reconciliation/reports", a.ListReports)
	router.GET("/reconciliation/reports/:report_id", a.GetReport)
	router.POST("/reconciliation/reports/:report_id/send", a.SendReport)

	return a.router
}

func NewAPI(p *paycore.Paycore) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{paycore: p, router: r}
}
