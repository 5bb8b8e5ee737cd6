// Package gin mounts the smart account endpoints on a Gin engine.
// This package is a thin adapter that translates gin.Context to stdlib http
// patterns and delegates every request to the http package's Handler.
package gin

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	httpsa "github.com/mark3labs/smartaccount-go/http"
)

// RequestID is the Gin counterpart of httpsa.RequestID. The id is stored both
// in the Gin context under "request_id" and in the request context.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(httpsa.RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(httpsa.RequestIDHeader, id)
		c.Set("request_id", id)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), httpsa.RequestIDContextKey, id))
		c.Next()
	}
}

// RegisterRoutes mounts every endpoint of h on r.
//
// Example usage:
//
//	r := gin.Default()
//	r.Use(RequestID())
//	RegisterRoutes(r, httpsa.NewHandler(acc, l, httpsa.WithAuthenticator(auth)))
func RegisterRoutes(r gin.IRoutes, h *httpsa.Handler) {
	r.GET(httpsa.PathHealth, gin.WrapF(h.Health))
	r.GET(httpsa.PathAccount, gin.WrapF(h.Account))

	r.POST(httpsa.PathValidate, gin.WrapF(h.Validate))
	r.POST(httpsa.PathPay, gin.WrapF(h.SettleFee))
	r.POST(httpsa.PathPreparePaymaster, gin.WrapF(h.PrepareForFeeSponsor))
	r.POST(httpsa.PathExecute, gin.WrapF(h.Execute))
	r.POST(httpsa.PathExecuteFromOutside, gin.WrapF(h.ExecuteFromOutside))

	r.POST(httpsa.PathValidateOperation, gin.WrapF(h.ValidateOperation))
	r.POST(httpsa.PathExecuteOperation, gin.WrapF(h.ExecuteOperation))
	r.POST(httpsa.PathExecuteBatch, gin.WrapF(h.ExecuteBatch))

	r.POST(httpsa.PathIsValidSignature, gin.WrapF(h.IsValidSignature))
}
