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
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/bgaipov/paycore"
	model2 "github.com/bgaipov/paycore/api/model"
	"github.com/bgaipov/paycore/internal/apierror"
)

func (a Api) CreatePayment(c *gin.Context) {
	var newPayment model2.CreatePayment
	if err := c.ShouldBindJSON(&newPayment); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newPayment.ValidateCreatePayment(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.paycore.CreatePayment(c.Request.Context(), newPayment.OrderID, paycore.CreatePaymentInput{
		Amount:      newPayment.Amount,
		Description: newPayment.Description,
		RedirectURL: newPayment.RedirectURL,
	})
	if err != nil {
		var rejected paycore.ErrGatewayRejected
		switch {
		case errors.As(err, &rejected):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Gateway rejected payment", "gateway_status": rejected.StatusCode})
		case errors.Is(err, paycore.ErrGatewayTimeout):
			c.JSON(http.StatusGatewayTimeout, gin.H{"error": "Gateway did not respond in time"})
		default:
			logrus.Error(err)
			c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, resp)
}
