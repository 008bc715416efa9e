// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package builder walks a project directory, extracts every Python file in
// parallel (consulting the persistent cache), merges the per-file results
// into a single ProgramModel, runs the registered framework integrations
// to populate entrypoints and global handlers, and injects the synthetic
// call edges a whole-program view needs but no single file can see on its
// own (Django/DRF class-based view dispatch).
package builder

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"github.com/kraklabs/excflow/internal/cache"
	"github.com/kraklabs/excflow/internal/extract"
	"github.com/kraklabs/excflow/internal/integrations"
	"github.com/kraklabs/excflow/internal/integrations/django"
	"github.com/kraklabs/excflow/internal/pymodel"
)

// DefaultExcludeDirs lists the directory names skipped during the walk
// when a project does not configure its own exclusions.
var DefaultExcludeDirs = []string{
	"__pycache__",
	".venv",
	"venv",
	"site-packages",
	"node_modules",
	".git",
	"dist",
	"build",
	"tests",
	"test",
}

// ProgressFunc reports build progress; stage is a short label such as
// "parsing" or "detecting".
type ProgressFunc func(done, total int, stage string)

// Options configures a Build run.
type Options struct {
	ProjectDir  string
	ExcludeDirs []string // overrides DefaultExcludeDirs when non-nil
	UseCache    bool
	Registry    *integrations.Registry
	Progress    ProgressFunc
	MaxWorkers  int // 0 selects min(32, runtime.NumCPU()+4)
}

// Stats summarizes one Build run for reporting.
type Stats struct {
	FilesTotal    int
	FilesParsed   int
	FilesCached   int
	ParseErrors   int
	InjectedEdges int
}

type workItem struct {
	absPath string
	relPath string
}

type fileOutcome struct {
	relPath    string
	extraction extract.FileExtraction
	fromCache  bool
	info       os.FileInfo
	source     []byte
}

// Build discovers every Python file under opts.ProjectDir, extracts it
// (using the cache when enabled), merges the results into a ProgramModel,
// runs framework detection, and injects synthetic dispatch edges.
func Build(ctx context.Context, opts Options) (*pymodel.ProgramModel, Stats, error) {
	exclude := opts.ExcludeDirs
	if exclude == nil {
		exclude = DefaultExcludeDirs
	}

	items, err := discoverFiles(opts.ProjectDir, exclude)
	if err != nil {
		return nil, Stats{}, err
	}

	model := pymodel.NewProgramModel()
	stats := Stats{FilesTotal: len(items)}
	if len(items) == 0 {
		return model, stats, nil
	}

	var c *cache.Cache
	if opts.UseCache {
		c, err = cache.Open(opts.ProjectDir)
		if err != nil {
			return nil, stats, err
		}
		defer c.Close()
	}

	outcomes, parseErrors := extractParallel(ctx, items, c, opts.MaxWorkers, opts.Progress)
	stats.ParseErrors = parseErrors

	// Cache writes happen single-threaded after every worker has finished,
	// matching the teacher's post-loop commit pass: the underlying sqlite
	// connection pool is capped at one connection anyway, so interleaving
	// writes with in-flight reads only adds needless contention.
	if c != nil {
		for _, o := range outcomes {
			if o.fromCache {
				stats.FilesCached++
				continue
			}
			if err := c.Put(filepath.Join(opts.ProjectDir, o.relPath), o.info, o.source, o.extraction); err != nil {
				continue
			}
		}
	}

	for _, o := range outcomes {
		stats.FilesParsed++
		mergeExtraction(model, o.relPath, o.extraction)
	}

	if opts.Registry != nil {
		detectEntrypoints(model, outcomes, opts.Registry, opts.Progress)
		correlateDjangoURLs(model, opts.Registry, outcomes)
	}

	stats.InjectedEdges = injectDjangoDispatchCalls(model)

	return model, stats, nil
}

func discoverFiles(projectDir string, excludeDirs []string) ([]workItem, error) {
	excluded := make(map[string]bool, len(excludeDirs))
	for _, d := range excludeDirs {
		excluded[d] = true
	}

	var items []workItem
	err := filepath.WalkDir(projectDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() {
			if path != projectDir && (excluded[name] || (strings.HasPrefix(name, ".") && name != ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(name, ".py") {
			return nil
		}
		rel, err := filepath.Rel(projectDir, path)
		if err != nil {
			return nil
		}
		if shouldExcludePath(rel, excluded) {
			return nil
		}
		items = append(items, workItem{absPath: path, relPath: filepath.ToSlash(rel)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool { return items[i].relPath < items[j].relPath })
	return items, nil
}

func shouldExcludePath(relPath string, excluded map[string]bool) bool {
	for _, part := range strings.Split(filepath.ToSlash(relPath), "/") {
		if excluded[part] {
			return true
		}
		if strings.HasPrefix(part, ".") && part != "." {
			return true
		}
	}
	return false
}

func workerCount(requested, files int) int {
	if requested > 0 {
		return requested
	}
	n := runtime.NumCPU() + 4
	if n > 32 {
		n = 32
	}
	if n > files {
		n = files
	}
	if n < 1 {
		n = 1
	}
	return n
}

// extractParallel runs extraction over items using a bounded worker pool,
// in the channel/WaitGroup shape the ingestion pipeline this analyzer's
// file-walk is modeled on uses for its own parallel parse step.
func extractParallel(ctx context.Context, items []workItem, c *cache.Cache, maxWorkers int, progress ProgressFunc) ([]fileOutcome, int) {
	numWorkers := workerCount(maxWorkers, len(items))

	jobs := make(chan int, len(items))
	results := make(chan struct {
		index   int
		outcome fileOutcome
		err     error
	}, len(items))

	var errorCount int
	var errMu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				select {
				case <-ctx.Done():
					return
				default:
				}

				item := items[i]
				outcome, err := extractOne(item, c)
				if err != nil {
					errMu.Lock()
					errorCount++
					errMu.Unlock()
				}
				results <- struct {
					index   int
					outcome fileOutcome
					err     error
				}{index: i, outcome: outcome, err: err}
			}
		}()
	}

	for i := range items {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]fileOutcome, len(items))
	total := len(items)
	processed := 0
	for r := range results {
		outcomes[r.index] = r.outcome
		processed++
		if progress != nil {
			progress(processed, total, "parsing")
		}
	}

	out := make([]fileOutcome, 0, len(outcomes))
	for _, o := range outcomes {
		if o.relPath != "" {
			out = append(out, o)
		}
	}
	return out, errorCount
}

func extractOne(item workItem, c *cache.Cache) (fileOutcome, error) {
	info, err := os.Stat(item.absPath)
	if err != nil {
		return fileOutcome{}, err
	}

	source, err := os.ReadFile(item.absPath) //nolint:gosec // G304: path comes from a directory walk under the caller-supplied project root
	if err != nil {
		return fileOutcome{}, err
	}

	// Source is always read, even on a cache hit: entrypoint/global-handler
	// detection works off raw source and is not itself cached, so a cached
	// structural extraction still needs the bytes available for that pass.
	if c != nil {
		if extraction, ok := c.Get(item.absPath, info); ok {
			return fileOutcome{relPath: item.relPath, extraction: extraction, fromCache: true, info: info, source: source}, nil
		}
	}

	extraction, err := extract.Extract(source, item.absPath, item.relPath)
	if err != nil {
		return fileOutcome{}, err
	}

	return fileOutcome{relPath: item.relPath, extraction: extraction, info: info, source: source}, nil
}

func mergeExtraction(model *pymodel.ProgramModel, relPath string, extraction extract.FileExtraction) {
	for _, fn := range extraction.Functions {
		model.Functions[fn.Key()] = fn
	}
	for _, cls := range extraction.Classes {
		model.AddClassToHierarchy(cls)
	}
	model.RaiseSites = append(model.RaiseSites, extraction.RaiseSites...)
	model.CatchSites = append(model.CatchSites, extraction.CatchSites...)
	model.CallSites = append(model.CallSites, extraction.CallSites...)
	if extraction.ImportMap != nil {
		model.ImportMaps[relPath] = extraction.ImportMap
	}
	for key, t := range extraction.ReturnTypes {
		model.ReturnTypes[key] = t
	}
	for fw := range extraction.DetectedFrameworks {
		model.DetectedFrameworks[fw] = true
	}
}

// detectEntrypoints runs every registered framework integration against
// each file's raw source, the same per-file pass extract_from_directory
// performs with its custom detectors after the main merge loop.
func detectEntrypoints(model *pymodel.ProgramModel, outcomes []fileOutcome, reg *integrations.Registry, progress ProgressFunc) {
	total := len(outcomes)
	for i, o := range outcomes {
		model.Entrypoints = append(model.Entrypoints, reg.DetectEntrypoints(o.source, o.relPath)...)
		model.GlobalHandlers = append(model.GlobalHandlers, reg.DetectGlobalHandlers(o.source, o.relPath)...)
		if progress != nil {
			progress(i+1, total, "detecting")
		}
	}
}

// correlateDjangoURLs resolves Django's "<drf:ClassName>" placeholder
// paths DetectEntrypoints must leave behind, by handing django's
// cross-file correlator every file's raw source once the whole project
// has been scanned. A no-op when the django integration isn't active.
func correlateDjangoURLs(model *pymodel.ProgramModel, reg *integrations.Registry, outcomes []fileOutcome) {
	active := false
	for _, integration := range reg.All() {
		if integration.Name() == "django" {
			active = true
			break
		}
	}
	if !active {
		return
	}

	sources := make(map[string][]byte, len(outcomes))
	for _, o := range outcomes {
		sources[o.relPath] = o.source
	}
	model.Entrypoints = django.CorrelateURLPatterns(model.Entrypoints, sources)
}

// djangoDispatchMethods lists the HTTP verb and DRF action handlers a
// class-based view may define; each one present becomes a synthetic call
// edge from the view class to that method.
var djangoDispatchMethods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true,
	"delete": true, "head": true, "options": true, "trace": true,
	"list": true, "create": true, "retrieve": true,
	"update": true, "partial_update": true, "destroy": true,
}

// injectDjangoDispatchCalls adds one synthetic CallSite per HTTP/action
// method defined on a Django/DRF class-based view entrypoint, since no
// single file's AST shows the framework wiring that routes a request into
// one of these methods. Must run after model.Entrypoints is fully
// populated (i.e. after detectEntrypoints), since it only looks at
// entrypoints whose metadata already carries framework=="django" and
// view_type=="class".
func injectDjangoDispatchCalls(model *pymodel.ProgramModel) int {
	injected := 0
	for _, ep := range model.Entrypoints {
		if ep.Metadata["framework"] != "django" || ep.Metadata["view_type"] != "class" {
			continue
		}

		viewClass := ep.Function
		for _, fn := range model.Functions {
			if !fn.IsMethod || fn.ContainingClass != viewClass || !djangoDispatchMethods[fn.Name] {
				continue
			}

			callerQualified := pymodel.FuncKey(ep.File, viewClass)
			calleeQualified := fn.Key()

			model.CallSites = append(model.CallSites, pymodel.CallSite{
				File:            ep.File,
				Line:            ep.Line,
				CallerFunction:  viewClass,
				CallerQualified: callerQualified,
				CalleeName:      fn.Name,
				CalleeQualified: calleeQualified,
				IsMethodCall:    true,
				ResolutionKind:  pymodel.ResolutionImplicitDispatch,
			})
			injected++
		}
	}
	return injected
}
