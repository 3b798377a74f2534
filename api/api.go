/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package api

import (
	"net/http"

	"github.com/blnkfinance/regpay"
	"github.com/blnkfinance/regpay/api/middleware"
	"github.com/blnkfinance/regpay/config"
	"github.com/blnkfinance/regpay/internal/apierror"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

// Api holds the gin router and the service its handlers call.
type Api struct {
	regpay *regpay.Regpay
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	return a.router
}

// NewAPI builds the HTTP surface. The callback route is guarded by the key
// shared with the payment provider; everything else by the secret key when the
// server runs in secure mode.
func NewAPI(r *regpay.Regpay, conf *config.Configuration, gatherer prometheus.Gatherer) *Api {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), otelgin.Middleware("regpay"), middleware.RateLimitMiddleware(conf))

	a := &Api{regpay: r, router: router}

	router.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})
	if gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	router.POST("/callbacks/:invoice_id", middleware.CallbackKeyMiddleware(conf), a.PaymentCallback)

	submitter := router.Group("/")
	if conf.Server.Secure {
		submitter.Use(middleware.SecretKeyAuthMiddleware(conf))
	}
	submitter.POST("/drafts", a.CreateDraft)
	submitter.GET("/drafts/:number", a.GetDraft)
	submitter.PUT("/drafts/:number", a.UpdateDraft)
	submitter.DELETE("/drafts/:number", a.DeleteDraft)
	submitter.POST("/drafts/:number/revert", a.RevertDraft)

	submitter.POST("/registrations", a.SubmitRegistration)
	submitter.GET("/registrations/:number", a.GetRegistration)
	submitter.POST("/searches", a.SubmitSearch)

	submitter.POST("/reviews/:number/approve", a.ApproveReview)
	submitter.POST("/reviews/:number/reject", a.RejectReview)

	submitter.GET("/payments/:invoice_id/events", a.GetPaymentEvents)

	return a
}

func errorResponse(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

func validationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"errors": err})
}
