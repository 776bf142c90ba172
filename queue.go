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

package paycore

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"github.com/pkg/errors"

	"github.com/bgaipov/paycore/config"
	"github.com/bgaipov/paycore/internal/redisdb"
)

// Queue hands reconciliation work to the Redis-backed task queue.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// ReconciliationTaskPayload is the payload of one scheduled reconciliation
// run. Day is the yyyymmdd settlement date.
type ReconciliationTaskPayload struct {
	Day string `json:"day"`
}

// NewQueue initializes a Queue from the loaded configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redisdb.ParseRedisURL(conf.Redis.Dns)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	return &Queue{
		Client:    asynq.NewClient(queueOptions),
		Inspector: asynq.NewInspector(queueOptions),
	}
}

// EnqueueReconciliation schedules report generation and delivery for one
// settlement date. The task id embeds the date, so re-enqueuing the same day
// while a task is pending is a no-op; the report-per-date uniqueness in the
// database covers the window after the task completes.
func (q *Queue) EnqueueReconciliation(ctx context.Context, date time.Time) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	day := date.Format("20060102")
	payload, err := json.Marshal(ReconciliationTaskPayload{Day: day})
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID("reconciliation_" + day),
		asynq.Queue(cfg.Queue.ReconciliationQueue),
		asynq.MaxRetry(cfg.Queue.MaxRetryAttempts),
	}
	task := asynq.NewTask(cfg.Queue.ReconciliationQueue, payload, taskOptions...)

	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Printf(" [*] Reconciliation for %s already enqueued", day)
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued reconciliation: %s", day)
	return nil
}

// ProcessReconciliationTask is the worker-side handler. The scheduled daily
// task carries an empty payload and runs the previous calendar day with the
// delivery retry policy; a task enqueued for an explicit date runs that date
// and leans on asynq's own retry. Errors bubble up so asynq retries with its
// backoff; both steps tolerate being re-run.
func (p *Paycore) ProcessReconciliationTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconciliationTaskPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return err
		}
	}

	if payload.Day == "" {
		report, err := p.RunDailyReconciliation(ctx)
		if err != nil {
			return err
		}
		log.Println(" [*] Reconciliation completed", report.ReportDate.Format("20060102"))
		return nil
	}

	date, err := time.Parse("20060102", payload.Day)
	if err != nil {
		return err
	}

	report, _, err := p.GenerateReport(ctx, date)
	if err != nil {
		return err
	}
	if _, err := p.SendReport(ctx, report.ReportID, ""); err != nil {
		return err
	}

	log.Println(" [*] Reconciliation completed", payload.Day)
	return nil
}
