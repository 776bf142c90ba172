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
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	model2 "github.com/bgaipov/paycore/api/model"
	"github.com/bgaipov/paycore/internal/apierror"
)

// RunReconciliation generates the settlement report for the requested date.
// Generation is idempotent per date; repeating the call returns the stored
// report.
func (a Api) RunReconciliation(c *gin.Context) {
	var req model2.RunReconciliation
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := req.ValidateRunReconciliation(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	report, generated, err := a.paycore.GenerateReport(c.Request.Context(), req.ParsedDate())
	if err != nil {
		logrus.Error(err)
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": "Failed to generate report"})
		return
	}

	status := http.StatusOK
	if generated {
		status = http.StatusCreated
	}
	c.JSON(status, report)
}

func (a Api) GetReport(c *gin.Context) {
	reportID, passed := c.Params.Get("report_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "report_id is required. pass id in the route /:report_id"})
		return
	}

	report, err := a.paycore.GetReport(c.Request.Context(), reportID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (a Api) ListReports(c *gin.Context) {
	var from, to *time.Time
	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'from' date, expected YYYY-MM-DD"})
			return
		}
		from = &parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid 'to' date, expected YYYY-MM-DD"})
			return
		}
		to = &parsed
	}

	reports, err := a.paycore.ListReports(c.Request.Context(), from, to, c.Query("status"))
	if err != nil {
		logrus.Error(err)
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": "Failed to list reports"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// SendReport delivers a stored report by email, optionally overriding the
// configured recipient.
func (a Api) SendReport(c *gin.Context) {
	reportID, passed := c.Params.Get("report_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "report_id is required. pass id in the route /:report_id"})
		return
	}

	var req model2.SendReport
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return
		}
		if err := req.ValidateSendReport(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
			return
		}
	}

	report, err := a.paycore.SendReport(c.Request.Context(), reportID, req.Email)
	if err != nil {
		logrus.Error(err)
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": "Failed to send report"})
		return
	}

	c.JSON(http.StatusOK, report)
}
