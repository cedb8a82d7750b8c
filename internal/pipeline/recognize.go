package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/folio/internal/providers"
)

type recognition struct {
	pages    []Page
	counts   Counts
	logprobs []LogprobPage
}

type pageResult struct {
	page     Page
	logprobs []providers.TokenLogprob
	err      error
}

// recognize produces one Page per document page, in document order.
func (r *run) recognize(ctx context.Context) (recognition, error) {
	if r.doc.Structured() {
		pages := make([]Page, len(r.doc.Pages))
		for i, p := range r.doc.Pages {
			pages[i] = Page{
				Page:          p.Number,
				Status:        PageStatusSuccess,
				Content:       p.Text,
				ContentLength: len(p.Text),
			}
		}
		return recognition{pages: pages}, nil
	}

	var (
		results []pageResult
		err     error
	)
	if r.cfg.MaintainFormat {
		results, err = r.recognizeSequential(ctx)
	} else {
		results, err = r.recognizeConcurrent(ctx)
	}
	if err != nil {
		return recognition{}, err
	}

	var rec recognition
	rec.pages = make([]Page, len(results))
	for i, res := range results {
		rec.pages[i] = res.page
		if res.err != nil {
			rec.counts.Failed++
			continue
		}
		rec.counts.Successful++
		if len(res.logprobs) > 0 {
			n := res.page.Page
			rec.logprobs = append(rec.logprobs, LogprobPage{Page: &n, Value: res.logprobs})
		}
	}
	return rec, nil
}

// recognizeSequential feeds each page the content of the one before it and
// stops after the first failure.
func (r *run) recognizeSequential(ctx context.Context) ([]pageResult, error) {
	var (
		results []pageResult
		prior   string
	)
	for i := range r.doc.Pages {
		res := r.recognizePage(ctx, i, prior)
		if res.err != nil && r.cfg.ErrorMode == ErrorModeThrow {
			return nil, res.err
		}
		results = append(results, res)
		if res.err != nil {
			r.logger.Warn("stopping after failed page", "page", res.page.Page)
			break
		}
		prior = res.page.Content
	}
	return results, nil
}

func (r *run) recognizeConcurrent(ctx context.Context) ([]pageResult, error) {
	results := make([]pageResult, len(r.doc.Pages))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i := range r.doc.Pages {
		g.Go(func() error {
			results[i] = r.recognizePage(gctx, i, "")
			if results[i].err != nil && r.cfg.ErrorMode == ErrorModeThrow {
				return results[i].err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// recognizePage normalizes page i and sends it to the model under retry.
// A failure is reported both as an ERROR page and as the returned error.
func (r *run) recognizePage(ctx context.Context, i int, prior string) pageResult {
	number := r.doc.Pages[i].Number
	logger := r.logger.With("page", number)

	fail := func(err error) pageResult {
		logger.Error("failed to process page", "error", err)
		return pageResult{
			page: Page{
				Page:   number,
				Status: PageStatusError,
				Error:  fmt.Sprintf("failed to process page %d: %v", number, err),
			},
			err: fmt.Errorf("failed to process page %d: %w", number, err),
		}
	}

	images, err := r.pageImages(ctx, i)
	if err != nil {
		return fail(err)
	}

	resp, err := runRetries(ctx, logger, r.cfg.MaxRetries, r.cfg.RetryDelay, number,
		func(ctx context.Context) (*providers.Response, error) {
			return r.complete(ctx, number, images, prior)
		})
	if err != nil {
		return fail(err)
	}

	content := formatMarkdown(resp.Content)
	logger.Debug("page recognized",
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens,
		"content_length", len(content))
	return pageResult{
		page: Page{
			Page:          number,
			Status:        PageStatusSuccess,
			Content:       content,
			ContentLength: len(content),
			InputTokens:   resp.InputTokens,
			OutputTokens:  resp.OutputTokens,
		},
		logprobs: resp.Logprobs,
	}
}

var errNoResponse = errors.New("page function returned no response")

func (r *run) complete(ctx context.Context, number int, images [][]byte, prior string) (*providers.Response, error) {
	if fn := r.cfg.CustomPageFunc; fn != nil {
		resp, err := fn(ctx, PageInput{
			Images:         images,
			PageNumber:     number,
			MaintainFormat: r.cfg.MaintainFormat,
			PriorPage:      prior,
		})
		if err == nil && resp == nil {
			err = errNoResponse
		}
		return resp, err
	}
	return r.recognizer.GetCompletion(ctx, providers.ModeRecognition, &providers.Args{
		Images:         images,
		MaintainFormat: r.cfg.MaintainFormat,
		PriorPage:      prior,
		Prompt:         r.cfg.Prompt,
	})
}
