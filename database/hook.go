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


package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fatih/color"
	"github.com/uptrace/bun"
)

var silent atomic.Bool

// Silence mutes QueryHook and SlowQueryHook output, e.g. during tests.
func Silence(on bool) { silent.Store(on) }

var (
	queryColors = map[string]*color.Color{
		"SELECT": color.New(color.FgGreen),
		"INSERT": color.New(color.FgBlue),
		"UPDATE": color.New(color.FgYellow),
		"DELETE": color.New(color.FgMagenta),
	}
	slowColors = map[string]*color.Color{
		"SELECT": color.New(color.BgGreen, color.FgHiWhite),
		"INSERT": color.New(color.BgBlue, color.FgHiWhite),
		"UPDATE": color.New(color.BgYellow, color.FgHiWhite),
		"DELETE": color.New(color.BgMagenta, color.FgHiWhite),
	}
	otherQuery = color.New(color.FgRed)
	otherSlow  = color.New(color.BgRed, color.FgHiWhite)
	tagColor   = color.New(color.FgCyan)
	slowTag    = color.New(color.FgYellow)
	errColor   = color.New(color.BgRed)
)

func paint(palette map[string]*color.Color, fallback *color.Color, event *bun.QueryEvent) string {
	if c, ok := palette[event.Operation()]; ok {
		return c.Sprint(event.Query)
	}
	return fallback.Sprint(event.Query)
}

// QueryHook prints every query coloured by operation. The env variable named
// by EnvName overrides Enabled: "0" or empty disables, "2" also prints
// queries that succeeded.
type QueryHook struct {
	EnvName string
	Enabled bool
	Verbose bool
	Writer  io.Writer
}

var _ bun.QueryHook = (*QueryHook)(nil)

// NewQueryHook prints failed queries to w, or every query when verbose.
func NewQueryHook(w io.Writer, verbose bool) *QueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &QueryHook{EnvName: "ANYSTORE_SQL_LOG", Enabled: true, Verbose: verbose, Writer: w}
}

func (h *QueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *QueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if silent.Load() {
		return
	}
	enabled, verbose := h.Enabled, h.Verbose
	if env, ok := os.LookupEnv(h.EnvName); ok {
		enabled = env != "" && env != "0"
		verbose = env == "2"
	}
	if !enabled {
		return
	}
	if !verbose && (event.Err == nil || errors.Is(event.Err, sql.ErrNoRows) || errors.Is(event.Err, sql.ErrTxDone)) {
		return
	}

	now := time.Now()
	line := []interface{}{
		now.Format(timeLayout),
		tagColor.Sprintf("%-10s", "[SQL]"),
		fmt.Sprintf("%12s", now.Sub(event.StartTime).Round(time.Microsecond)),
		paint(queryColors, otherQuery, event),
	}
	if event.Err != nil {
		line = append(line, errColor.Sprintf(" %s: %s ", reflect.TypeOf(event.Err), event.Err))
	}
	_, _ = fmt.Fprintln(h.Writer, line...)
}

// SlowQueryHook prints successful queries slower than Threshold. The env
// variable named by EnvName overrides Enabled; "1" enables.
type SlowQueryHook struct {
	EnvName   string
	Enabled   bool
	Threshold time.Duration
	Writer    io.Writer
}

var _ bun.QueryHook = (*SlowQueryHook)(nil)

// NewSlowQueryHook reports queries over threshold to w.
func NewSlowQueryHook(threshold time.Duration, w io.Writer) *SlowQueryHook {
	if w == nil {
		w = os.Stdout
	}
	return &SlowQueryHook{EnvName: "ANYSTORE_SLOW_SQL_LOG", Enabled: true, Threshold: threshold, Writer: w}
}

func (h *SlowQueryHook) BeforeQuery(ctx context.Context, _ *bun.QueryEvent) context.Context {
	return ctx
}

func (h *SlowQueryHook) AfterQuery(_ context.Context, event *bun.QueryEvent) {
	if silent.Load() || event.Err != nil {
		return
	}
	enabled := h.Enabled
	if env, ok := os.LookupEnv(h.EnvName); ok {
		enabled = strings.TrimSpace(env) == "1"
	}
	if !enabled {
		return
	}
	elapsed := time.Since(event.StartTime)
	if elapsed <= h.Threshold {
		return
	}
	_, _ = fmt.Fprintln(h.Writer,
		time.Now().Format(timeLayout),
		slowTag.Sprintf("%-10s", "[SLOW SQL]"),
		fmt.Sprintf("%12s", elapsed.Round(time.Microsecond)),
		paint(slowColors, otherSlow, event),
	)
}

const timeLayout = "2006-01-02 15:04:05.000"
