/*
Copyright 2024 Paycore Authors.

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
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bgaipov/paycore"
	"github.com/bgaipov/paycore/internal/apierror"
	"github.com/bgaipov/paycore/model"
)

// ProviderWebhook receives payment notifications from the provider. The body
// is read raw and passed through untouched: verification runs over the exact
// wire bytes, and any transformation before it would break the signature.
func (a Api) ProviderWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	headers := make(map[string]string, len(c.Request.Header)+1)
	headers["host"] = c.Request.Host
	for name, values := range c.Request.Header {
		if len(values) > 0 {
			headers[strings.ToLower(name)] = values[0]
		}
	}

	query := make(map[string]string)
	for name, values := range c.Request.URL.Query() {
		if len(values) > 0 {
			query[name] = values[0]
		}
	}

	result, err := a.paycore.ProcessWebhook(c.Request.Context(), &paycore.WebhookRequest{
		Method:      c.Request.Method,
		Path:        c.Request.URL.Path,
		Headers:     headers,
		Query:       query,
		Body:        body,
		Signature:   c.GetHeader("signature"),
		ClientIP:    c.ClientIP(),
		ClientAgent: c.Request.UserAgent(),
	})
	if err != nil {
		switch {
		case errors.Is(err, paycore.ErrSignatureInvalid), errors.Is(err, paycore.ErrMissingSignature), errors.Is(err, paycore.ErrStaleTimestamp):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
		case errors.Is(err, paycore.ErrMalformedEnvelope):
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		case errors.Is(err, model.ErrNoOrderReference):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		default:
			logrus.Error(err)
			c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": "Failed to process webhook"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok", "outcome": result.Outcome})
}
