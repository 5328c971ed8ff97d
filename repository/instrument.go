/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tomoncle/anystore/types"
)

const tracerName = "github.com/tomoncle/anystore/repository"

// Metric status labels.
const (
	StatusOK         = "ok"
	StatusNotFound   = "not_found"
	StatusInvalid    = "invalid"
	StatusStorageErr = "error"
)

// Metrics holds the repository collectors.
type Metrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the repository collectors with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "anystore",
				Subsystem: "repository",
				Name:      "operations_total",
				Help:      "Total number of repository operations.",
			},
			[]string{"entity", "backend", "operation", "status"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "anystore",
				Subsystem: "repository",
				Name:      "operation_duration_seconds",
				Help:      "Latency of repository operations.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"entity", "backend", "operation"},
		),
	}
	if err := reg.Register(m.operations); err != nil {
		return nil, err
	}
	if err := reg.Register(m.duration); err != nil {
		return nil, err
	}
	return m, nil
}

// Operations exposes the counter, mainly for tests.
func (m *Metrics) Operations() *prometheus.CounterVec { return m.operations }

func (m *Metrics) observe(entity string, kind Kind, op, status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(entity, kind.Name(), op, status).Inc()
	m.duration.WithLabelValues(entity, kind.Name(), op).Observe(elapsed.Seconds())
}

func statusOf(err error, found bool) string {
	switch {
	case err == nil && found:
		return StatusOK
	case err == nil:
		return StatusNotFound
	case IsValidation(err):
		return StatusInvalid
	default:
		return StatusStorageErr
	}
}

type instrumented struct {
	next    Repository
	metrics *Metrics
	tracer  trace.Tracer
}

// Instrument wraps repo so every operation is counted, timed and traced
// through the global OpenTelemetry tracer provider. A nil metrics value
// only traces.
func Instrument(repo Repository, metrics *Metrics) Repository {
	if repo == nil {
		return nil
	}
	if _, ok := repo.(*instrumented); ok {
		return repo
	}
	return &instrumented{next: repo, metrics: metrics, tracer: otel.Tracer(tracerName)}
}

// Unwrap returns the decorated repository.
func (r *instrumented) Unwrap() Repository { return r.next }

func (r *instrumented) start(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := r.tracer.Start(ctx, r.next.Entity()+"."+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("anystore.entity", r.next.Entity()),
			attribute.String("anystore.backend", r.next.Kind().Name()),
			attribute.String("anystore.operation", op),
		))
	return ctx, span, time.Now()
}

func (r *instrumented) finish(span trace.Span, op string, began time.Time, err error, found bool) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	r.metrics.observe(r.next.Entity(), r.next.Kind(), op, statusOf(err, found), time.Since(began))
}

func (r *instrumented) Create(ctx context.Context, data types.Record) (types.Record, error) {
	ctx, span, began := r.start(ctx, OpCreate)
	rec, err := r.next.Create(ctx, data)
	r.finish(span, OpCreate, began, err, true)
	return rec, err
}

func (r *instrumented) FindAll(ctx context.Context, opts *types.QueryOptions) (*types.Pagination, error) {
	ctx, span, began := r.start(ctx, OpFindAll)
	page, err := r.next.FindAll(ctx, opts)
	if page != nil {
		span.SetAttributes(attribute.Int64("anystore.total", page.Pagination.Total))
	}
	r.finish(span, OpFindAll, began, err, true)
	return page, err
}

func (r *instrumented) FindByID(ctx context.Context, id any) (types.Record, error) {
	ctx, span, began := r.start(ctx, OpFindByID)
	rec, err := r.next.FindByID(ctx, id)
	r.finish(span, OpFindByID, began, err, rec != nil)
	return rec, err
}

func (r *instrumented) FindByFilter(ctx context.Context, filter types.Filter) ([]types.Record, error) {
	ctx, span, began := r.start(ctx, OpFindByFilter)
	recs, err := r.next.FindByFilter(ctx, filter)
	r.finish(span, OpFindByFilter, began, err, true)
	return recs, err
}

func (r *instrumented) Update(ctx context.Context, id any, data types.Record) (types.Record, error) {
	ctx, span, began := r.start(ctx, OpUpdate)
	rec, err := r.next.Update(ctx, id, data)
	r.finish(span, OpUpdate, began, err, rec != nil)
	return rec, err
}

func (r *instrumented) Delete(ctx context.Context, id any) (bool, error) {
	ctx, span, began := r.start(ctx, OpDelete)
	ok, err := r.next.Delete(ctx, id)
	r.finish(span, OpDelete, began, err, ok)
	return ok, err
}

func (r *instrumented) Count(ctx context.Context, filter types.Filter) (int64, error) {
	ctx, span, began := r.start(ctx, OpCount)
	n, err := r.next.Count(ctx, filter)
	r.finish(span, OpCount, began, err, true)
	return n, err
}

func (r *instrumented) UpdateMany(ctx context.Context, filter types.Filter, data types.Record) (int64, error) {
	ctx, span, began := r.start(ctx, OpUpdateMany)
	n, err := r.next.UpdateMany(ctx, filter, data)
	span.SetAttributes(attribute.Int64("anystore.affected", n))
	r.finish(span, OpUpdateMany, began, err, true)
	return n, err
}

func (r *instrumented) DeleteMany(ctx context.Context, filter types.Filter) (int64, error) {
	ctx, span, began := r.start(ctx, OpDeleteMany)
	n, err := r.next.DeleteMany(ctx, filter)
	span.SetAttributes(attribute.Int64("anystore.affected", n))
	r.finish(span, OpDeleteMany, began, err, true)
	return n, err
}

func (r *instrumented) ExecuteQuery(ctx context.Context, query any, params ...any) ([]types.Record, error) {
	ctx, span, began := r.start(ctx, OpExecuteQuery)
	rows, err := r.next.ExecuteQuery(ctx, query, params...)
	r.finish(span, OpExecuteQuery, began, err, true)
	return rows, err
}

func (r *instrumented) MapFields(rec types.Record) types.Record { return r.next.MapFields(rec) }

func (r *instrumented) FormatResponse(data []types.Record, opts *types.QueryOptions) []types.Record {
	return r.next.FormatResponse(data, opts)
}

func (r *instrumented) Entity() string { return r.next.Entity() }

func (r *instrumented) Kind() Kind { return r.next.Kind() }
