// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package execution implements the Execution Dispatcher (C7): it maps a
// client-chosen language to a sandbox runtime, calls the external
// sandbox's /execute endpoint, and normalizes the response.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/wingedpig/collabhub/internal/realtime"
)

// ErrUnsupportedLanguage is returned for any language outside the closed
// set in languageTable (spec.md §4.7).
var ErrUnsupportedLanguage = errors.New("unsupported_language")

// OverallTimeout bounds the full sandbox round-trip (spec.md §4.7).
const OverallTimeout = 15 * time.Second

type languageSpec struct {
	Runtime  string // sandbox's language identifier
	Version  string
	Filename string
}

// languageTable is the closed set of supported languages (spec.md §4.7).
var languageTable = map[string]languageSpec{
	"javascript": {Runtime: "javascript", Version: "18.15.0", Filename: "main.js"},
	"python":     {Runtime: "python", Version: "3.10.0", Filename: "main.py"},
	"java":       {Runtime: "java", Version: "15.0.2", Filename: "Main.java"},
	"cpp":        {Runtime: "cpp", Version: "10.2.0", Filename: "main.cpp"},
	"c":          {Runtime: "c", Version: "10.2.0", Filename: "main.c"},
	"typescript": {Runtime: "typescript", Version: "5.0.3", Filename: "main.ts"},
	"php":        {Runtime: "php", Version: "8.2.3", Filename: "main.php"},
	"ruby":       {Runtime: "ruby", Version: "3.0.1", Filename: "main.rb"},
	"go":         {Runtime: "go", Version: "1.16.2", Filename: "main.go"},
	"rust":       {Runtime: "rust", Version: "1.68.2", Filename: "main.rs"},
	"kotlin":     {Runtime: "kotlin", Version: "1.8.20", Filename: "Main.kt"},
	"swift":      {Runtime: "swift", Version: "5.3.3", Filename: "main.swift"},
	"csharp":     {Runtime: "csharp", Version: "6.12.0", Filename: "Main.cs"},
}

const defaultFilename = "main.txt"

// sandboxFile is one entry of the sandbox's files array.
type sandboxFile struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// sandboxRequest is the body of POST {base}/execute (spec.md §4.7).
type sandboxRequest struct {
	Language       string        `json:"language"`
	Version        string        `json:"version"`
	Files          []sandboxFile `json:"files"`
	Stdin          string        `json:"stdin"`
	CompileTimeout int           `json:"compile_timeout"`
	RunTimeout     int           `json:"run_timeout"`
}

// sandboxStage mirrors one compile/run stage of a sandbox response.
type sandboxStage struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
	Code   int    `json:"code"`
}

// sandboxResponse is the raw shape returned by the external sandbox.
type sandboxResponse struct {
	Language string        `json:"language"`
	Version  string        `json:"version"`
	Compile  *sandboxStage `json:"compile"`
	Run      sandboxStage  `json:"run"`
}

// Runtime is one entry of GET /runtimes.
type Runtime struct {
	Language string   `json:"language"`
	Version  string   `json:"version"`
	Aliases  []string `json:"aliases"`
}

// Dispatcher calls the external sandbox service. It satisfies
// realtime.Dispatcher without realtime needing to import this package.
type Dispatcher struct {
	client *resty.Client

	mu             sync.Mutex
	runtimesCache  []Runtime
	runtimesFetched time.Time
}

// NewDispatcher builds a Dispatcher bound to the sandbox's base URL.
func NewDispatcher(baseURL string) *Dispatcher {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(OverallTimeout).
		SetHeader("Content-Type", "application/json")
	return &Dispatcher{client: client}
}

// Execute implements realtime.Dispatcher: dispatch one run request,
// racing it against the overall 15s timeout carried on ctx.
func (d *Dispatcher) Execute(ctx context.Context, language, code, input string) (realtime.ExecutionResult, error) {
	spec, ok := languageTable[language]
	if !ok {
		return realtime.ExecutionResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	filename := spec.Filename
	if filename == "" {
		filename = defaultFilename
	}

	reqBody := sandboxRequest{
		Language:       spec.Runtime,
		Version:        spec.Version,
		Files:          []sandboxFile{{Name: filename, Content: code}},
		Stdin:          input,
		CompileTimeout: 10000,
		RunTimeout:     3000,
	}

	g, gctx := errgroup.WithContext(ctx)
	var sandboxResp sandboxResponse
	g.Go(func() error {
		var result sandboxResponse
		resp, err := d.client.R().
			SetContext(gctx).
			SetBody(reqBody).
			SetResult(&result).
			Post("/execute")
		if err != nil {
			return err
		}
		if resp.IsError() {
			return fmt.Errorf("sandbox returned %s", resp.Status())
		}
		sandboxResp = result
		return nil
	})

	if err := g.Wait(); err != nil {
		return realtime.ExecutionResult{}, err
	}

	return normalize(sandboxResp), nil
}

// normalize maps a raw sandbox response onto the wire result shape
// (spec.md §4.7).
func normalize(resp sandboxResponse) realtime.ExecutionResult {
	compile := realtime.RunOutput{}
	if resp.Compile != nil {
		compile = realtime.RunOutput(*resp.Compile)
	}
	run := realtime.RunOutput(resp.Run)

	errText := run.Stderr
	if errText == "" {
		errText = compile.Stderr
	}
	exitCode := run.Code
	if resp.Compile != nil && resp.Compile.Code != 0 {
		exitCode = resp.Compile.Code
	}

	return realtime.ExecutionResult{
		Success:       run.Code == 0 && compile.Code == 0,
		Language:      resp.Language,
		Version:       resp.Version,
		Compile:       compile,
		Run:           run,
		Output:        run.Stdout,
		Error:         errText,
		ExitCode:      exitCode,
		ExecutionTime: time.Now(),
	}
}

// Runtimes returns the sandbox's available language/version pairs
// (GET /runtimes), caching for 60s to absorb client listing refreshes.
func (d *Dispatcher) Runtimes(ctx context.Context) ([]Runtime, error) {
	d.mu.Lock()
	if time.Since(d.runtimesFetched) < 60*time.Second && d.runtimesCache != nil {
		cached := d.runtimesCache
		d.mu.Unlock()
		return cached, nil
	}
	d.mu.Unlock()

	var result []Runtime
	resp, err := d.client.R().SetContext(ctx).SetResult(&result).Get("/runtimes")
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("sandbox returned %s", resp.Status())
	}

	d.mu.Lock()
	d.runtimesCache = result
	d.runtimesFetched = time.Now()
	d.mu.Unlock()

	return result, nil
}
