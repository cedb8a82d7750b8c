package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/providers"
	"github.com/jackzampolin/folio/internal/schema"
)

// pageSeparator joins page contents into the document-level text.
const pageSeparator = "\n<hr><hr>\n"

type extraction struct {
	values       map[string]any
	perPage      map[int]map[string]any
	issues       []ValidationIssue
	counts       Counts
	inputTokens  int
	outputTokens int
	logprobs     []LogprobPage
}

// extractionTask is one extraction request. page is 0 for the document
// level task.
type extractionTask struct {
	page   int
	schema map[string]any
	input  providers.ExtractionInput
}

// contribution is what a finished task adds to the extracted object.
type contribution struct {
	task       extractionTask
	values     map[string]any
	unresolved []schema.Issue
	resp       *providers.Response
	err        error
}

// extract runs the per-page and document-level extraction tasks and folds
// their results once all of them have settled.
func (r *run) extract(ctx context.Context, pages []Page) (extraction, error) {
	docSchema, pageSchema := schema.Split(r.cfg.Schema, r.cfg.ExtractPerPage)

	tasks, err := r.extractionTasks(ctx, pages, docSchema, pageSchema)
	if err != nil {
		return extraction{}, err
	}

	results := make([]contribution, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, task := range tasks {
		g.Go(func() error {
			results[i] = r.runExtraction(gctx, task)
			if results[i].err != nil && r.cfg.ErrorMode == ErrorModeThrow {
				return results[i].err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return extraction{}, err
	}

	return fold(results), nil
}

// extractionTasks builds one task per page for the per-page half and one
// task for the document half.
func (r *run) extractionTasks(ctx context.Context, pages []Page, docSchema, pageSchema map[string]any) ([]extractionTask, error) {
	useImages := (r.cfg.DirectImageExtraction || r.cfg.ExtractOnly) && !r.doc.Structured()
	hybrid := r.cfg.EnableHybridExtraction && !r.doc.Structured()

	var images [][][]byte
	if useImages || hybrid {
		var err error
		if images, err = r.allPageImages(ctx); err != nil {
			return nil, err
		}
	}

	texts := make([]string, 0, len(pages))
	for _, p := range pages {
		texts = append(texts, p.Content)
	}

	var tasks []extractionTask
	if pageSchema != nil {
		switch {
		case useImages || hybrid:
			for i, p := range r.doc.Pages {
				input := providers.ExtractionInput{Images: images[i]}
				if hybrid {
					input.Text = pageText(pages, p.Number)
				}
				tasks = append(tasks, extractionTask{page: p.Number, schema: pageSchema, input: input})
			}
		default:
			for _, p := range pages {
				if p.Status == PageStatusError || strings.TrimSpace(p.Content) == "" {
					r.logger.Debug("skipping per-page extraction", "page", p.Page, "status", p.Status)
					continue
				}
				tasks = append(tasks, extractionTask{
					page:   p.Page,
					schema: pageSchema,
					input:  providers.ExtractionInput{Text: p.Content},
				})
			}
		}
	}

	if docSchema != nil {
		var input providers.ExtractionInput
		if useImages || hybrid {
			for _, sections := range images {
				input.Images = append(input.Images, sections...)
			}
		}
		if !useImages {
			input.Text = strings.Join(texts, pageSeparator)
		}
		if len(input.Images) == 0 && strings.TrimSpace(strings.ReplaceAll(input.Text, pageSeparator, "")) == "" {
			r.logger.Warn("no recognized text to extract from, skipping document extraction")
		} else {
			tasks = append(tasks, extractionTask{schema: docSchema, input: input})
		}
	}
	return tasks, nil
}

// allPageImages normalizes every page not yet normalized, under the
// concurrency cap. A page that fails to normalize is sent as rendered.
func (r *run) allPageImages(ctx context.Context) ([][][]byte, error) {
	images := make([][][]byte, len(r.doc.Pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, p := range r.doc.Pages {
		g.Go(func() error {
			sections, err := r.pageImages(gctx, i)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				r.logger.Warn("normalization failed, using rendered image", "page", p.Number, "error", err)
				sections = [][]byte{p.Image}
			}
			images[i] = sections
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return images, nil
}

func pageText(pages []Page, number int) string {
	for _, p := range pages {
		if p.Page == number {
			return p.Content
		}
	}
	return ""
}

// runExtraction sends one task under retry and validates the answer
// against the task's schema.
func (r *run) runExtraction(ctx context.Context, task extractionTask) contribution {
	logger := r.logger.With("page", task.page)
	resp, err := runRetries(ctx, logger, r.cfg.MaxRetries, r.cfg.RetryDelay, task.page,
		func(ctx context.Context) (*providers.Response, error) {
			return r.extractor.GetCompletion(ctx, providers.ModeExtraction, &providers.Args{
				Input:  task.input,
				Schema: task.schema,
				Prompt: r.cfg.ExtractionPrompt,
			})
		})
	if err != nil {
		logger.Error("extraction failed", "error", err)
		if task.page == 0 {
			err = fmt.Errorf("document extraction failed: %w", err)
		} else {
			err = fmt.Errorf("extraction failed for page %d: %w", task.page, err)
		}
		return contribution{task: task, err: err}
	}

	extracted := resp.Extracted
	if extracted == nil {
		extracted = map[string]any{}
	}
	res, err := schema.Validate(task.schema, extracted)
	if err != nil {
		return contribution{task: task, resp: resp, err: fmt.Errorf("%w: %v", ErrInvalidConfig, err)}
	}
	if !res.Valid() {
		logger.Warn("extracted data repaired",
			"issues", len(res.Issues),
			"unresolved", len(res.Unresolved))
	}

	values, ok := res.Value.(map[string]any)
	if !ok {
		values = map[string]any{}
	}
	return contribution{task: task, values: values, unresolved: res.Unresolved, resp: resp}
}

// fold merges the task contributions into one extracted object. Per-page
// fields become page-sorted lists with null values left out; document
// fields are copied as they are.
func fold(results []contribution) extraction {
	ext := extraction{
		values:  map[string]any{},
		perPage: map[int]map[string]any{},
	}

	lists := map[string][]PageValue{}
	for _, c := range results {
		if c.resp != nil {
			ext.inputTokens += c.resp.InputTokens
			ext.outputTokens += c.resp.OutputTokens
		}
		if c.err != nil {
			ext.counts.Failed++
			continue
		}
		ext.counts.Successful++

		var page *int
		if c.task.page != 0 {
			n := c.task.page
			page = &n
		}
		if c.resp != nil && len(c.resp.Logprobs) > 0 {
			ext.logprobs = append(ext.logprobs, LogprobPage{Page: page, Value: c.resp.Logprobs})
		}
		for _, issue := range c.unresolved {
			ext.issues = append(ext.issues, ValidationIssue{Page: page, Issue: issue})
		}

		if page == nil {
			for k, v := range c.values {
				ext.values[k] = v
			}
			continue
		}
		for k, v := range c.values {
			if v == nil {
				continue
			}
			lists[k] = append(lists[k], PageValue{Page: *page, Value: v})
			if ext.perPage[*page] == nil {
				ext.perPage[*page] = map[string]any{}
			}
			ext.perPage[*page][k] = v
		}
	}

	for k, list := range lists {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Page < list[j].Page })
		ext.values[k] = list
	}
	return ext
}

// attachPageValues copies each page's per-page fields onto its Page record.
func attachPageValues(pages []Page, perPage map[int]map[string]any) {
	for i := range pages {
		if v, ok := perPage[pages[i].Page]; ok {
			pages[i].Extracted = v
		}
	}
}
