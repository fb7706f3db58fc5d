package loader

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"slices"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"milprep/internal/cohort"
	"milprep/internal/features"
	"milprep/internal/logging"
)

// ErrFullBagBatchSize indicates full-bag mode with a batch size other than one.
// Full bags differ in length and cannot share a batch.
var ErrFullBagBatchSize = errors.New("full-bag mode requires batch size 1")

// Sampling selects how per-draw generators are seeded.
type Sampling int

const (
	// SamplingEntropy seeds every draw from the runtime source.
	SamplingEntropy Sampling = iota
	// SamplingSeeded derives every draw from (Seed, epoch, patient index).
	SamplingSeeded
)

// ParseSampling maps a configuration value to a Sampling mode.
func ParseSampling(value string) (Sampling, error) {
	switch value {
	case "", "entropy":
		return SamplingEntropy, nil
	case "seeded":
		return SamplingSeeded, nil
	default:
		return 0, fmt.Errorf("unknown sampling mode %q", value)
	}
}

func (s Sampling) String() string {
	if s == SamplingSeeded {
		return "seeded"
	}
	return "entropy"
}

// Options configures a Loader.
type Options struct {
	// Categories fixes the one-hot order. Empty means InferCategories(records).
	Categories []string
	// BagSize is the fixed instance count per bag; 0 uses full bags.
	BagSize   int
	BatchSize int
	// Shuffle reorders patients each epoch. Instances are never reordered here.
	Shuffle bool
	// Workers bounds concurrent bag assembly; <= 0 means GOMAXPROCS.
	Workers  int
	Sampling Sampling
	Seed     uint64
	// Store reads archives; nil means features.FileStore{}.
	Store  features.Reader
	Logger *slog.Logger
}

// Loader yields batches of bags with their true instance counts and one-hot
// targets. It is safe to iterate from several goroutines; each Batches call
// is its own epoch.
type Loader struct {
	records    []cohort.PatientRecord
	categories []string
	targets    [][]float32
	opts       Options
	logger     *slog.Logger
	epoch      atomic.Uint64
}

// InferCategories returns the sorted unique known labels of records.
func InferCategories(records []cohort.PatientRecord) []string {
	var categories []string
	for _, rec := range records {
		if label, ok := rec.GroundTruth.Label(); ok {
			categories = append(categories, label)
		}
	}
	slices.Sort(categories)
	return slices.Compact(categories)
}

// New validates opts and one-hot encodes the ground truth of records.
// Unknown ground truth and labels outside Categories encode as all zeros.
func New(records []cohort.PatientRecord, opts Options) (*Loader, error) {
	if opts.BatchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", opts.BatchSize)
	}
	if opts.BagSize < 0 {
		return nil, fmt.Errorf("bag size must not be negative, got %d", opts.BagSize)
	}
	if opts.BagSize == 0 && opts.BatchSize != 1 {
		return nil, fmt.Errorf("%w: got %d", ErrFullBagBatchSize, opts.BatchSize)
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.GOMAXPROCS(0)
	}
	if opts.Store == nil {
		opts.Store = features.FileStore{}
	}

	categories := slices.Clone(opts.Categories)
	if len(categories) == 0 {
		categories = InferCategories(records)
	}
	index := make(map[string]int, len(categories))
	for i, c := range categories {
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate category %q", c)
		}
		index[c] = i
	}

	logger := logging.NewComponentLogger(opts.Logger, "loader")
	targets := make([][]float32, len(records))
	var unencodable []cohort.PatientID
	for i, rec := range records {
		row := make([]float32, len(categories))
		if label, ok := rec.GroundTruth.Label(); ok {
			if c, found := index[label]; found {
				row[c] = 1
			} else {
				unencodable = append(unencodable, rec.ID)
			}
		}
		targets[i] = row
	}
	if len(unencodable) > 0 {
		attrs := logging.Subjects(logging.FieldPatientIDs, unencodable)
		logging.WarnWithContext(logger, "ground truth outside the category set", "unencodable_labels",
			append(attrs,
				logging.String(logging.FieldImpact, "targets of these patients are all zero"),
				logging.String(logging.FieldErrorHint, "pass the training categories to every loader"),
			)...,
		)
	}

	return &Loader{
		records:    slices.Clone(records),
		categories: categories,
		targets:    targets,
		opts:       opts,
		logger:     logger,
	}, nil
}

// Categories returns the one-hot order.
func (l *Loader) Categories() []string { return slices.Clone(l.categories) }

// Targets returns the one-hot matrix, one row per record.
func (l *Loader) Targets() [][]float32 {
	out := make([][]float32, len(l.targets))
	for i, row := range l.targets {
		out[i] = slices.Clone(row)
	}
	return out
}

// Records returns the patient records in construction order.
func (l *Loader) Records() []cohort.PatientRecord { return slices.Clone(l.records) }

// Len returns the number of patients.
func (l *Loader) Len() int { return len(l.records) }

// NumBatches returns the number of batches per epoch.
func (l *Loader) NumBatches() int {
	return (len(l.records) + l.opts.BatchSize - 1) / l.opts.BatchSize
}

// Item assembles the bag of record index as drawn in epoch 0. It does not
// advance the epoch counter.
func (l *Loader) Item(ctx context.Context, index int) (features.Bag, int, []float32, error) {
	if index < 0 || index >= len(l.records) {
		return features.Bag{}, 0, nil, fmt.Errorf("index %d out of range [0, %d)", index, len(l.records))
	}
	bag, count, err := l.draw(ctx, 0, index)
	if err != nil {
		return features.Bag{}, 0, nil, err
	}
	return bag, count, slices.Clone(l.targets[index]), nil
}

// Batches returns a lazy sequence over one epoch. Every call starts a new
// epoch; iteration stops at the first error, which is yielded with a nil batch.
func (l *Loader) Batches(ctx context.Context) iter.Seq2[*Batch, error] {
	return func(yield func(*Batch, error) bool) {
		epoch := l.epoch.Add(1) - 1
		order := l.order(epoch)
		logging.WithContext(ctx, l.logger).Debug("loader epoch started",
			logging.Int64("epoch", int64(epoch)),
			logging.Int("patients", len(order)),
			logging.Int("batches", l.NumBatches()),
		)
		for start := 0; start < len(order); start += l.opts.BatchSize {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			end := min(start+l.opts.BatchSize, len(order))
			batch, err := l.assemble(ctx, epoch, order[start:end])
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

func (l *Loader) order(epoch uint64) []int {
	order := make([]int, len(l.records))
	for i := range order {
		order[i] = i
	}
	if !l.opts.Shuffle {
		return order
	}
	var rng *rand.Rand
	if l.opts.Sampling == SamplingSeeded {
		rng = rand.New(rand.NewPCG(l.opts.Seed, epoch))
	} else {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
	return order
}

func (l *Loader) assemble(ctx context.Context, epoch uint64, indices []int) (*Batch, error) {
	batch := &Batch{
		Bags:     make([]features.Bag, len(indices)),
		Counts:   make([]int, len(indices)),
		Targets:  make([][]float32, len(indices)),
		Patients: make([]cohort.PatientID, len(indices)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.opts.Workers)
	for slot, index := range indices {
		batch.Targets[slot] = slices.Clone(l.targets[index])
		batch.Patients[slot] = l.records[index].ID
		g.Go(func() error {
			bag, count, err := l.draw(gctx, epoch, index)
			if err != nil {
				return err
			}
			batch.Bags[slot] = bag
			batch.Counts[slot] = count
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batch, nil
}

// draw reads one patient's bag and applies fixed-size sampling.
func (l *Loader) draw(ctx context.Context, epoch uint64, index int) (features.Bag, int, error) {
	rec := l.records[index]
	bag, err := features.Assemble(ctx, l.opts.Store, rec.FeatureFiles)
	if err != nil {
		return features.Bag{}, 0, fmt.Errorf("patient %s: %w", rec.ID, err)
	}
	if l.opts.BagSize == 0 {
		return bag, bag.Rows, nil
	}
	fixed, count := features.ToFixedSize(bag, l.opts.BagSize, l.rng(epoch, index))
	return fixed, count, nil
}

func (l *Loader) rng(epoch uint64, index int) *rand.Rand {
	if l.opts.Sampling == SamplingSeeded {
		return rand.New(rand.NewPCG(l.opts.Seed^(epoch*0x9e3779b97f4a7c15), uint64(index)))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}
