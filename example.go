package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// ErrShape marks batches whose fields disagree with the declared window or
// vocabulary sizes.
var ErrShape = errors.New("data shape mismatch")

// Example is one center token with its window of context and negative tokens.
type Example struct {
	Center   int   `json:"center"`
	Context  []int `json:"context"`
	Negative []int `json:"negative"`
}

// Batch holds equal-length columns of centers, contexts and negatives.
type Batch struct {
	Center   []int
	Context  [][]int
	Negative [][]int
}

func (b Batch) Len() int {
	return len(b.Center)
}

// Validate checks every row against the window size and every ID against
// the vocabulary.
func (b Batch) Validate(window, vocab int) error {
	if len(b.Context) != len(b.Center) || len(b.Negative) != len(b.Center) {
		return fmt.Errorf("%w: %d centers, %d context rows, %d negative rows",
			ErrShape, len(b.Center), len(b.Context), len(b.Negative))
	}
	inVocab := func(id int) bool { return id >= 0 && id < vocab }

	for i, c := range b.Center {
		if !inVocab(c) {
			return fmt.Errorf("%w: center %d at row %d outside vocabulary of %d", ErrShape, c, i, vocab)
		}
		if len(b.Context[i]) != window {
			return fmt.Errorf("%w: row %d has %d context ids, want %d", ErrShape, i, len(b.Context[i]), window)
		}
		if len(b.Negative[i]) != window {
			return fmt.Errorf("%w: row %d has %d negative ids, want %d", ErrShape, i, len(b.Negative[i]), window)
		}
		for j := 0; j < window; j++ {
			if !inVocab(b.Context[i][j]) {
				return fmt.Errorf("%w: context %d at row %d outside vocabulary of %d", ErrShape, b.Context[i][j], i, vocab)
			}
			if !inVocab(b.Negative[i][j]) {
				return fmt.Errorf("%w: negative %d at row %d outside vocabulary of %d", ErrShape, b.Negative[i][j], i, vocab)
			}
		}
	}
	return nil
}

// BatchSource delivers batches one at a time, in order.
type BatchSource interface {
	Next() (Batch, error)
}

// Cycler walks a finite example collection in fixed-size batches and starts
// over once it is exhausted. The final batch of each pass may be short.
type Cycler struct {
	examples  []Example
	batchSize int
	pos       int
	passes    int
}

// NewCycler creates a Cycler over examples. It fails on an empty
// collection or a non-positive batch size.
func NewCycler(examples []Example, batchSize int) (*Cycler, error) {
	if len(examples) == 0 {
		return nil, errors.New("no training examples")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &Cycler{examples: examples, batchSize: batchSize}, nil
}

// Next returns the next batch, wrapping to the start after the last one.
func (c *Cycler) Next() (Batch, error) {
	end := c.pos + c.batchSize
	if end > len(c.examples) {
		end = len(c.examples)
	}
	b := makeBatch(c.examples[c.pos:end])

	c.pos = end
	if c.pos == len(c.examples) {
		c.pos = 0
		c.passes++
	}
	return b, nil
}

// Passes reports how many full passes over the data have completed.
func (c *Cycler) Passes() int {
	return c.passes
}

func makeBatch(examples []Example) Batch {
	b := Batch{
		Center:   make([]int, len(examples)),
		Context:  make([][]int, len(examples)),
		Negative: make([][]int, len(examples)),
	}
	for i, ex := range examples {
		b.Center[i] = ex.Center
		b.Context[i] = ex.Context
		b.Negative[i] = ex.Negative
	}
	return b
}

type batchResult struct {
	batch Batch
	err   error
}

// Prefetcher pulls batches from a source on a single goroutine so the next
// batch is ready when the loop asks for it. Delivery order is the source order.
type Prefetcher struct {
	out  chan batchResult
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// Prefetch reads batches from src on one goroutine, keeping up to depth
// ready ahead of the consumer.
func Prefetch(src BatchSource, depth int) *Prefetcher {
	if depth < 1 {
		depth = 1
	}
	p := &Prefetcher{
		out:  make(chan batchResult, depth),
		done: make(chan struct{}),
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(p.out)
		for {
			b, err := src.Next()
			select {
			case p.out <- batchResult{batch: b, err: err}:
			case <-p.done:
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return p
}

// Next returns the next batch in the order src produced it.
func (p *Prefetcher) Next() (Batch, error) {
	r, ok := <-p.out
	if !ok {
		return Batch{}, errors.New("prefetcher closed")
	}
	return r.batch, r.err
}

// Close stops the background goroutine and waits for it to exit.
func (p *Prefetcher) Close() {
	p.once.Do(func() { close(p.done) })
	p.wg.Wait()
}

const (
	FormatAuto     = "auto"
	FormatTFRecord = "tfrecord"
	FormatJSONL    = "jsonl"
)

func resolveFormat(path, format string) (string, error) {
	switch format {
	case FormatTFRecord, FormatJSONL:
		return format, nil
	case FormatAuto, "":
		switch strings.ToLower(filepath.Ext(path)) {
		case ".jsonl", ".json", ".ndjson":
			return FormatJSONL, nil
		}
		return FormatTFRecord, nil
	}
	return "", fmt.Errorf("unknown data format %q", format)
}

// ReadExamples loads every example from path.
func ReadExamples(path, format string) ([]Example, error) {
	f, err := resolveFormat(path, format)
	if err != nil {
		return nil, err
	}
	if f == FormatJSONL {
		return ReadJSONLExamples(path)
	}
	return ReadTFRecordExamples(path)
}
